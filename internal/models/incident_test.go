package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(s Status) *Status       { return &s }
func priorityPtr(p Priority) *Priority { return &p }

func newTestIncident() *Incident {
	return NewIncident("u1", KindPanic, PriorityHigh, "", time.Unix(1700000000, 0))
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusLocating, true},
		{StatusCreated, StatusNotifying, false},
		{StatusLocating, StatusNotifying, true},
		{StatusNotifying, StatusDispatching, true},
		{StatusDispatching, StatusResponding, true},
		{StatusDispatching, StatusResolved, false},
		{StatusResponding, StatusResolved, true},
		{StatusResponding, StatusDispatching, false},
		{StatusNotifying, StatusCancelled, true},
		{StatusResolved, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestApplyUpdate_ForwardTransitionsSetTimestampsOnce(t *testing.T) {
	inc := newTestIncident()
	now := time.Unix(1700000100, 0)

	for _, s := range []Status{StatusLocating, StatusNotifying, StatusDispatching, StatusResponding} {
		require.NoError(t, inc.ApplyUpdate(IncidentUpdate{Status: statusPtr(s)}, now))
	}
	require.NotNil(t, inc.FirstResponseAt)
	assert.Equal(t, now, *inc.FirstResponseAt)

	err := inc.ApplyUpdate(IncidentUpdate{FirstResponseAt: &now}, now)
	assert.ErrorIs(t, err, ErrTimestampImmutable)
}

func TestApplyUpdate_SkippingStatesRejected(t *testing.T) {
	inc := newTestIncident()
	before := inc.Clone()

	err := inc.ApplyUpdate(IncidentUpdate{Status: statusPtr(StatusResolved)}, time.Now())

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, before, inc)
}

func TestApplyUpdate_TerminalIncidentIsStale(t *testing.T) {
	inc := newTestIncident()
	require.NoError(t, inc.ApplyUpdate(IncidentUpdate{Status: statusPtr(StatusCancelled)}, time.Now()))
	require.NotNil(t, inc.CancelledAt)
	before := inc.Clone()

	err := inc.ApplyUpdate(IncidentUpdate{Priority: priorityPtr(PriorityCritical)}, time.Now())
	assert.ErrorIs(t, err, ErrStaleIncident)

	err = inc.AddNotification(NotificationRecord{}, time.Now())
	assert.ErrorIs(t, err, ErrStaleIncident)

	err = inc.AddResponder(AssignedResponder{ResponderID: "resp-001"}, time.Now())
	assert.ErrorIs(t, err, ErrStaleIncident)

	assert.Equal(t, before, inc)
}

func TestApplyUpdate_PriorityNeverDowngrades(t *testing.T) {
	inc := newTestIncident()

	require.NoError(t, inc.ApplyUpdate(IncidentUpdate{Priority: priorityPtr(PriorityCritical)}, time.Now()))
	err := inc.ApplyUpdate(IncidentUpdate{Priority: priorityPtr(PriorityLow)}, time.Now())

	assert.ErrorIs(t, err, ErrPriorityDowngrade)
	assert.Equal(t, PriorityCritical, inc.Priority)
}

func TestApplyUpdate_VersionConflict(t *testing.T) {
	inc := newTestIncident()

	err := inc.ApplyUpdate(IncidentUpdate{Status: statusPtr(StatusLocating), ExpectedVersion: inc.Version + 5}, time.Now())

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, StatusCreated, inc.Status)
}

func TestApplyUpdate_TimestampOutsideTransitionRejected(t *testing.T) {
	inc := newTestIncident()
	now := time.Now()

	err := inc.ApplyUpdate(IncidentUpdate{ResolvedAt: &now}, now)

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, inc.ResolvedAt)
}

func TestApplyFix_AccuracyOnlyImproves(t *testing.T) {
	inc := newTestIncident()
	low := Location{Point: Point{Latitude: 26.14, Longitude: 91.73}, Accuracy: AccuracyLow}
	high := Location{Point: Point{Latitude: 26.15, Longitude: 91.74}, Accuracy: AccuracyHigh}
	otherHigh := Location{Point: Point{Latitude: 26.16, Longitude: 91.75}, Accuracy: AccuracyHigh}
	medium := Location{Point: Point{Latitude: 26.17, Longitude: 91.76}, Accuracy: AccuracyMedium}

	assert.True(t, inc.ApplyFix(low), "first fix is always accepted")
	assert.True(t, inc.ApplyFix(high))
	assert.False(t, inc.ApplyFix(otherHigh), "equal accuracy goes to history only")
	assert.False(t, inc.ApplyFix(medium))

	assert.Equal(t, high, inc.Location)
	assert.Len(t, inc.LocationHistory, 4)
}

func TestAddResponder_Idempotent(t *testing.T) {
	inc := newTestIncident()
	r := AssignedResponder{ResponderID: "resp-001", Type: ResponderPolice}

	require.NoError(t, inc.AddResponder(r, time.Now()))
	require.NoError(t, inc.AddResponder(r, time.Now()))

	assert.Len(t, inc.Responders, 1)
}

func TestAccuracyFromMeters(t *testing.T) {
	assert.Equal(t, AccuracyUnknown, AccuracyFromMeters(0))
	assert.Equal(t, AccuracyHigh, AccuracyFromMeters(35))
	assert.Equal(t, AccuracyMedium, AccuracyFromMeters(250))
	assert.Equal(t, AccuracyLow, AccuracyFromMeters(5000))
}
