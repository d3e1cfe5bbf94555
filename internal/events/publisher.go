package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// Типы событий жизненного цикла инцидента
const (
	EventTypeStatusChanged      = "incident.status_changed"
	EventTypeResponderAssigned  = "incident.responder_assigned"
	EventTypeLocationUpdated    = "incident.location_updated"
	EventTypePriorityEscalated  = "incident.priority_escalated"
	EventTypeIncidentDegraded   = "incident.degraded"
	EventTypeDispatchUnassigned = "incident.unassigned"
)

const subjectPrefix = "tourist_safety"

// Event - событие для внешних подписчиков (панель полиции, аналитика)
type Event struct {
	ID         uuid.UUID     `json:"id"`
	Type       string        `json:"type"`
	IncidentID uuid.UUID     `json:"incident_id"`
	SubjectID  string        `json:"subject_id,omitempty"`
	Status     models.Status `json:"status"`
	Detail     string        `json:"detail,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewEvent заполняет id и время события
func NewEvent(eventType string, incident *models.Incident, detail string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		IncidentID: incident.ID,
		SubjectID:  incident.SubjectID,
		Status:     incident.Status,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
}

// Subject - тема NATS для типа события
func Subject(eventType string) string {
	return subjectPrefix + "." + eventType
}

// Conn - то, что нужно от соединения NATS
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher публикует события в NATS. Доставка best-effort: ошибка не откатывает изменение инцидента.
type NATSPublisher struct {
	conn Conn
}

func NewNATSPublisher(conn Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(Subject(event.Type), payload); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}
	return nil
}

// NopPublisher используется, когда NATS не настроен
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
