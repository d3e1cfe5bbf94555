package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(s models.Status) *models.Status { return &s }

func createIncident(t *testing.T, s *MemoryIncidentStore, subject string) *models.Incident {
	t.Helper()
	incident := models.NewIncident(subject, models.KindPanic, models.PriorityHigh, "", time.Now())
	require.NoError(t, s.Create(context.Background(), incident))
	return incident
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	// Подготовка
	s := NewMemoryIncidentStore()
	incident := createIncident(t, s, "tourist-1")

	// Действие
	got, err := s.Get(context.Background(), incident.ID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, incident.ID, got.ID)
	assert.Equal(t, models.StatusCreated, got.Status)

	got.Status = models.StatusResolved
	again, _ := s.Get(context.Background(), incident.ID)
	assert.Equal(t, models.StatusCreated, again.Status, "caller must not mutate stored state")
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryIncidentStore()
	incident := createIncident(t, s, "tourist-1")

	err := s.Create(context.Background(), incident)

	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryIncidentStore()

	_, err := s.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_UpdateOnTerminalIsStale(t *testing.T) {
	s := NewMemoryIncidentStore()
	incident := createIncident(t, s, "tourist-1")
	_, err := s.Update(context.Background(), incident.ID, models.IncidentUpdate{Status: statusPtr(models.StatusCancelled)})
	require.NoError(t, err)
	before, _ := s.Get(context.Background(), incident.ID)

	_, err = s.Update(context.Background(), incident.ID, models.IncidentUpdate{Status: statusPtr(models.StatusLocating)})

	assert.ErrorIs(t, err, models.ErrStaleIncident)
	after, _ := s.Get(context.Background(), incident.ID)
	assert.Equal(t, before, after)
}

func TestMemoryStore_FailedUpdateLeavesRecordUntouched(t *testing.T) {
	s := NewMemoryIncidentStore()
	incident := createIncident(t, s, "tourist-1")
	low := models.PriorityLow

	_, err := s.Update(context.Background(), incident.ID, models.IncidentUpdate{
		Status:   statusPtr(models.StatusLocating),
		Priority: &low,
	})

	assert.ErrorIs(t, err, models.ErrPriorityDowngrade)
	got, _ := s.Get(context.Background(), incident.ID)
	assert.Equal(t, models.StatusCreated, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_AppendsRespectTerminalState(t *testing.T) {
	s := NewMemoryIncidentStore()
	incident := createIncident(t, s, "tourist-1")
	ctx := context.Background()

	require.NoError(t, s.AppendResponder(ctx, incident.ID, models.AssignedResponder{ResponderID: "resp-001"}))
	require.NoError(t, s.AppendResponder(ctx, incident.ID, models.AssignedResponder{ResponderID: "resp-001"}))
	require.NoError(t, s.AppendNotification(ctx, incident.ID, models.NotificationRecord{ID: uuid.New()}))
	_, err := s.Update(ctx, incident.ID, models.IncidentUpdate{Status: statusPtr(models.StatusCancelled)})
	require.NoError(t, err)

	assert.ErrorIs(t, s.AppendResponder(ctx, incident.ID, models.AssignedResponder{ResponderID: "resp-002"}), models.ErrStaleIncident)
	assert.ErrorIs(t, s.AppendNotification(ctx, incident.ID, models.NotificationRecord{ID: uuid.New()}), models.ErrStaleIncident)
	require.NoError(t, s.AppendAudit(ctx, incident.ID, models.AuditEntry{Step: "notify", Message: "late result"}))

	got, _ := s.Get(ctx, incident.ID)
	assert.Len(t, got.Responders, 1)
	assert.Len(t, got.Notifications, 1)
	require.Len(t, got.Audit, 1)
	assert.False(t, got.Audit[0].At.IsZero())
}

func TestMemoryStore_ConcurrentUpdatesSerialize(t *testing.T) {
	s := NewMemoryIncidentStore()
	incident := createIncident(t, s, "tourist-1")
	ctx := context.Background()

	// ровно один переход в locating должен пройти проверку версии
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for n := 0; n < 20; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, incident.ID, models.IncidentUpdate{
				Status:          statusPtr(models.StatusLocating),
				ExpectedVersion: 1,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, _ := s.Get(ctx, incident.ID)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryIncidentStore()
	ctx := context.Background()
	first := createIncident(t, s, "tourist-1")
	time.Sleep(time.Millisecond)
	second := createIncident(t, s, "tourist-1")
	createIncident(t, s, "tourist-2")
	degraded := true
	_, err := s.Update(ctx, first.ID, models.IncidentUpdate{Degraded: &degraded})
	require.NoError(t, err)

	mine, err := s.List(ctx, models.IncidentFilter{SubjectID: "tourist-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")

	onlyDegraded, err := s.List(ctx, models.IncidentFilter{DegradedOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyDegraded, 1)
	assert.Equal(t, first.ID, onlyDegraded[0].ID)

	limited, err := s.List(ctx, models.IncidentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
