package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return c.err
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn)
	incident := models.NewIncident("tourist-1", models.KindPanic, models.PriorityHigh, "", time.Now())

	err := p.Publish(context.Background(), NewEvent(EventTypeStatusChanged, incident, "created -> locating"))

	require.NoError(t, err)
	assert.Equal(t, "tourist_safety.incident.status_changed", conn.subject)
	var got Event
	require.NoError(t, json.Unmarshal(conn.data, &got))
	assert.Equal(t, incident.ID, got.IncidentID)
	assert.Equal(t, models.StatusCreated, got.Status)
}

func TestNATSPublisher_Error(t *testing.T) {
	p := NewNATSPublisher(&fakeConn{err: errors.New("nats: connection closed")})
	incident := models.NewIncident("tourist-1", models.KindPanic, models.PriorityHigh, "", time.Now())

	err := p.Publish(context.Background(), NewEvent(EventTypeIncidentDegraded, incident, ""))

	assert.ErrorContains(t, err, "connection closed")
}
