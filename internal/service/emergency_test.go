package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shenikar/safety_alert_dispatch/internal/auth"
	"github.com/shenikar/safety_alert_dispatch/internal/config"
	"github.com/shenikar/safety_alert_dispatch/internal/directory"
	"github.com/shenikar/safety_alert_dispatch/internal/events"
	"github.com/shenikar/safety_alert_dispatch/internal/location"
	"github.com/shenikar/safety_alert_dispatch/internal/metrics"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/shenikar/safety_alert_dispatch/internal/notify"
	"github.com/shenikar/safety_alert_dispatch/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "tourist-1"

var (
	guwahatiPoint = models.Point{Latitude: 26.1445, Longitude: 91.7362}
	// середина Бенгальского залива, экипажей нет
	nowherePoint = models.Point{Latitude: 15.0, Longitude: 88.0}
)

// sinkFunc - канал доставки из функции
type sinkFunc func(ctx context.Context, msg models.Message) error

func (f sinkFunc) Send(ctx context.Context, msg models.Message) error { return f(ctx, msg) }

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// flakyStore - хранилище в памяти с управляемыми сбоями
type flakyStore struct {
	*repository.MemoryIncidentStore
	createFailures       atomic.Int32
	updateFailures       atomic.Int32
	notificationFailures atomic.Int32
}

var errConnReset = errors.New("connection reset by peer")

func (s *flakyStore) Create(ctx context.Context, incident *models.Incident) error {
	if s.createFailures.Add(-1) >= 0 {
		return errConnReset
	}
	return s.MemoryIncidentStore.Create(ctx, incident)
}

func (s *flakyStore) Update(ctx context.Context, id uuid.UUID, u models.IncidentUpdate) (*models.Incident, error) {
	if s.updateFailures.Add(-1) >= 0 {
		return nil, errConnReset
	}
	return s.MemoryIncidentStore.Update(ctx, id, u)
}

func (s *flakyStore) AppendNotification(ctx context.Context, id uuid.UUID, rec models.NotificationRecord) error {
	if s.notificationFailures.Add(-1) >= 0 {
		return errConnReset
	}
	return s.MemoryIncidentStore.AppendNotification(ctx, id, rec)
}

type testEnv struct {
	o         *Orchestrator
	store     *flakyStore
	directory *directory.Directory
	fanout    *notify.Fanout
	tokens    *auth.TokenResolver
	events    *recordingEvents
	smsSent   atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		LocationTimeout:           time.Second,
		LocationRetries:           1,
		NotifyTimeout:             time.Second,
		DirectoryTimeout:          time.Second,
		DispatchInitialRadiusKm:   5,
		DispatchMaxExpansions:     3,
		DispatchTopK:              2,
		DispatchRequeryRounds:     2,
		StoreMaxAttempts:          3,
		StoreRetryBaseDelay:       time.Millisecond,
		SnapshotCacheTTL:          time.Minute,
		EmergencyServiceChannel:   string(models.ChannelWebhook),
		EmergencyServiceRecipient: "dispatch-center",
	}

	env := &testEnv{
		store:  &flakyStore{MemoryIncidentStore: repository.NewMemoryIncidentStore()},
		tokens: auth.NewTokenResolver("test-secret"),
		events: &recordingEvents{},
	}

	env.directory = directory.NewDirectory(nil, logger)
	require.NoError(t, env.directory.Seed(directory.DefaultRoster()))

	m := metrics.New(prometheus.NewRegistry())
	env.fanout = notify.NewFanout(cfg.NotifyTimeout, 0, m, logger)
	env.fanout.Register(models.ChannelSMS, sinkFunc(func(ctx context.Context, msg models.Message) error {
		env.smsSent.Add(1)
		return nil
	}))
	env.fanout.Register(models.ChannelWebhook, sinkFunc(func(ctx context.Context, msg models.Message) error {
		return nil
	}))

	contacts := repository.NewStaticContactBook()
	contacts.Put(testSubject, []models.Recipient{{Name: "Mom", Channel: models.ChannelSMS, Address: "+91-9999999999"}})

	env.o = NewOrchestrator(Dependencies{
		Store:     env.store,
		Directory: env.directory,
		Fanout:    env.fanout,
		Resolver:  location.NewResolver(nil, ""),
		Contacts:  contacts,
		Identity:  env.tokens,
		Events:    env.events,
		Metrics:   m,
	}, cfg, logger)
	t.Cleanup(env.o.Close)
	return env
}

func (e *testEnv) token(t *testing.T, id string, role models.Role) string {
	t.Helper()
	token, err := e.tokens.IssueToken(id, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) trigger(t *testing.T, point models.Point) uuid.UUID {
	t.Helper()
	p := point
	id, err := e.o.Trigger(context.Background(), TriggerRequest{
		SubjectID: testSubject,
		Kind:      models.KindPanic,
		Location:  &models.LocationHint{Point: &p, Accuracy: models.AccuracyHigh},
	})
	require.NoError(t, err)
	e.o.Wait()
	return id
}

func hasAudit(audit []models.AuditEntry, substr string) bool {
	for _, a := range audit {
		if strings.Contains(a.Message, substr) {
			return true
		}
	}
	return false
}

func TestTrigger_ReachesRespondingWithDistinctResponders(t *testing.T) {
	// Подготовка
	env := newTestEnv(t)

	// Действие
	id := env.trigger(t, guwahatiPoint)
	snapshot, err := env.o.GetStatus(context.Background(), id)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusResponding, snapshot.Status)
	assert.Equal(t, models.AccuracyHigh, snapshot.Location.Accuracy)
	require.NotNil(t, snapshot.FirstResponseAt)
	assert.False(t, snapshot.Unassigned)

	require.Len(t, snapshot.Responders, 2)
	assert.NotEqual(t, snapshot.Responders[0].Type, snapshot.Responders[1].Type)
	for _, r := range snapshot.Responders {
		assert.Equal(t, models.AvailabilityAssigned, r.Availability)
		assert.NotEmpty(t, r.Name)
	}

	require.Len(t, snapshot.Notifications, 2)
	assert.Equal(t, snapshot.Notifications[0].AttemptID, snapshot.Notifications[1].AttemptID)
	assert.Equal(t, int32(1), env.smsSent.Load())
	assert.True(t, snapshot.Notifications[1].Recipient.EmergencyService)

	assert.Equal(t, 2, env.events.count(events.EventTypeResponderAssigned))
	assert.True(t, hasAudit(snapshot.Audit, "alert raised"))
}

func TestTrigger_NoHintUsesDefaultRegion(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.o.Trigger(context.Background(), TriggerRequest{SubjectID: testSubject, Kind: models.KindMedical})
	require.NoError(t, err)
	env.o.Wait()

	incident, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.AccuracyLow, incident.Location.Accuracy)
	assert.Equal(t, models.PriorityHigh, incident.Priority)
	assert.Equal(t, models.StatusResponding, incident.Status)
}

func TestTrigger_NoRespondersLeavesIncidentUnassigned(t *testing.T) {
	env := newTestEnv(t)

	id := env.trigger(t, nowherePoint)
	snapshot, err := env.o.GetStatus(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, models.StatusDispatching, snapshot.Status)
	assert.True(t, snapshot.Unassigned)
	assert.Empty(t, snapshot.Responders)
	assert.Nil(t, snapshot.FirstResponseAt)
	assert.Len(t, snapshot.Notifications, 2, "notifications go out even without responders")
	assert.Equal(t, 1, env.events.count(events.EventTypeDispatchUnassigned))
}

// northOf - точка в km километрах к северу по меридиану
func northOf(p models.Point, km float64) models.Point {
	return models.Point{Latitude: p.Latitude + km/111.195, Longitude: p.Longitude}
}

func countAudit(audit []models.AuditEntry, substr string) int {
	n := 0
	for _, a := range audit {
		if strings.Contains(a.Message, substr) {
			n++
		}
	}
	return n
}

func TestDispatch_ResponderInsideInitialRadiusStopsExpansion(t *testing.T) {
	// Подготовка: один экипаж в R0, второй только после расширения
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.directory.Seed([]models.Responder{
		{ID: "near", Name: "Coast Guard Post", Type: models.ResponderPolice, Position: northOf(nowherePoint, 1.1)},
		{ID: "far", Name: "Offshore Medical", Type: models.ResponderMedical, Position: northOf(nowherePoint, 16.7)},
	}))

	// Действие
	id := env.trigger(t, nowherePoint)

	// Проверки
	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResponding, incident.Status)
	require.Len(t, incident.Responders, 1)
	assert.Equal(t, "near", incident.Responders[0].ResponderID)
	assert.Zero(t, countAudit(incident.Audit, "widening search"))
	assert.True(t, hasAudit(incident.Audit, "only 1 of 2 responders available within 5.0 km"))

	far, err := env.directory.Get(ctx, "far")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, far.Status)
}

func TestDispatch_WidensRadiusUntilResponderFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.directory.Seed([]models.Responder{
		{ID: "rescue-39", Name: "Island Rescue", Type: models.ResponderRescue, Position: northOf(nowherePoint, 39)},
	}))

	id := env.trigger(t, nowherePoint)

	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResponding, incident.Status)
	assert.False(t, incident.Unassigned)
	require.Len(t, incident.Responders, 1)
	assert.Equal(t, "rescue-39", incident.Responders[0].ResponderID)
	// 5 -> 10 -> 20 -> 40
	assert.Equal(t, 3, countAudit(incident.Audit, "widening search"))
	assert.True(t, hasAudit(incident.Audit, "widening search to 40.0 km"))
}

func TestDispatch_ResponderBeyondMaxRadiusLeavesUnassigned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.directory.Seed([]models.Responder{
		{ID: "rescue-41", Name: "Island Rescue", Type: models.ResponderRescue, Position: northOf(nowherePoint, 41)},
	}))

	id := env.trigger(t, nowherePoint)

	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDispatching, incident.Status)
	assert.True(t, incident.Unassigned)
	assert.Empty(t, incident.Responders)
	assert.Equal(t, 3, countAudit(incident.Audit, "widening search"))
	assert.True(t, hasAudit(incident.Audit, "no responders available within 40.0 km"))

	r, err := env.directory.Get(ctx, "rescue-41")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, r.Status)
}

func TestNotify_SkipsFanoutForClosedIncident(t *testing.T) {
	// Подготовка: инцидент отменен между определением позиции и рассылкой
	env := newTestEnv(t)
	ctx := context.Background()
	incident := models.NewIncident(testSubject, models.KindPanic, models.PriorityHigh, "", time.Now())
	require.NoError(t, env.store.Create(ctx, incident))
	_, err := env.o.Cancel(ctx, incident.ID, "changed my mind")
	require.NoError(t, err)

	// Действие
	updated, ok := env.o.notify(ctx, incident)

	// Проверки
	assert.False(t, ok)
	assert.Nil(t, updated)
	assert.Zero(t, env.smsSent.Load())

	stored, err := env.store.Get(ctx, incident.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Notifications)
	assert.True(t, hasAudit(stored.Audit, "pipeline stopped: incident already closed"))
}

func TestClose_DuringNotificationMarksIncidentDegraded(t *testing.T) {
	// Подготовка: SMS-канал висит до отмены контекста
	env := newTestEnv(t)
	ctx := context.Background()
	entered := make(chan struct{})
	var once sync.Once
	env.fanout.Register(models.ChannelSMS, sinkFunc(func(ctx context.Context, msg models.Message) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return ctx.Err()
	}))

	id, err := env.o.Trigger(ctx, TriggerRequest{
		SubjectID: testSubject,
		Kind:      models.KindPanic,
		Location:  &models.LocationHint{Point: &guwahatiPoint, Accuracy: models.AccuracyHigh},
	})
	require.NoError(t, err)

	// Действие
	<-entered
	env.o.Close()

	// Проверки
	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotifying, incident.Status)
	assert.True(t, incident.Degraded)
	assert.Contains(t, incident.DegradedReason, "interrupted by shutdown")
	require.Len(t, incident.Notifications, 2, "every attempted delivery keeps its record")
	assert.True(t, hasAudit(incident.Audit, "pipeline interrupted by shutdown"))
	assert.Empty(t, incident.Responders)

	degraded, err := env.o.DegradedIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, degraded, 1)
	assert.Equal(t, id, degraded[0].IncidentID)
	assert.Equal(t, "notify", degraded[0].Stage)
	assert.Equal(t, 1, env.events.count(events.EventTypeIncidentDegraded))
}

func TestTrigger_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	badPoint := models.Point{Latitude: 120, Longitude: 0}

	tests := []struct {
		name string
		req  TriggerRequest
	}{
		{"empty subject", TriggerRequest{SubjectID: "  ", Kind: models.KindPanic}},
		{"unknown kind", TriggerRequest{SubjectID: testSubject, Kind: "alien"}},
		{"unknown priority", TriggerRequest{SubjectID: testSubject, Kind: models.KindPanic, Priority: "urgent"}},
		{"latitude out of range", TriggerRequest{SubjectID: testSubject, Kind: models.KindPanic, Location: &models.LocationHint{Point: &badPoint}}},
		{"description too long", TriggerRequest{SubjectID: testSubject, Kind: models.KindPanic, Description: strings.Repeat("a", maxDescriptionLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := env.o.Trigger(context.Background(), tt.req)

			assert.ErrorIs(t, err, models.ErrInvalidRequest)
			assert.Equal(t, uuid.Nil, id)
		})
	}

	incidents, err := env.store.List(context.Background(), models.IncidentFilter{})
	require.NoError(t, err)
	assert.Empty(t, incidents)
}

func TestTrigger_CreateFailureIsDegraded(t *testing.T) {
	// Подготовка
	env := newTestEnv(t)
	env.store.createFailures.Store(10)

	// Действие
	id, err := env.o.Trigger(context.Background(), TriggerRequest{SubjectID: testSubject, Kind: models.KindPanic})

	// Проверки
	assert.ErrorIs(t, err, models.ErrPipelineDegraded)
	assert.Equal(t, uuid.Nil, id)

	degraded, err := env.o.DegradedIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, degraded, 1)
	assert.Equal(t, "create", degraded[0].Stage)
	assert.Equal(t, testSubject, degraded[0].SubjectID)
}

func TestTrigger_TransientStoreFailuresAreRetried(t *testing.T) {
	env := newTestEnv(t)
	env.store.updateFailures.Store(2)

	id := env.trigger(t, guwahatiPoint)

	incident, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResponding, incident.Status)
	assert.False(t, incident.Degraded)
}

func TestTrigger_PersistentStoreFailureMarksDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.store.notificationFailures.Store(100)

	id := env.trigger(t, guwahatiPoint)

	incident, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotifying, incident.Status, "pipeline stops at the failing stage")
	assert.True(t, incident.Degraded)
	assert.Contains(t, incident.DegradedReason, "notify")
	assert.Empty(t, incident.Responders)

	degraded, err := env.o.DegradedIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, degraded, 1)
	assert.Equal(t, id, degraded[0].IncidentID)
	assert.Equal(t, models.StatusNotifying, degraded[0].Status)
	assert.Equal(t, 1, env.events.count(events.EventTypeIncidentDegraded))
}

func TestCancel_IdempotentAndReleasesResponders(t *testing.T) {
	// Подготовка
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.trigger(t, guwahatiPoint)
	before, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, before.Responders)

	// Действие
	status, err := env.o.Cancel(ctx, id, "false alarm")
	require.NoError(t, err)
	again, err := env.o.Cancel(ctx, id, "")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status)
	assert.Equal(t, models.StatusCancelled, again)

	after, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, after.CancelledAt)
	assert.Equal(t, "false alarm", after.CancelReason)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, before.FirstResponseAt, after.FirstResponseAt)

	for _, r := range before.Responders {
		rec, err := env.directory.Get(ctx, r.ResponderID)
		require.NoError(t, err)
		assert.Equal(t, models.AvailabilityAvailable, rec.Status)
	}
}

func TestCancel_UnknownIncident(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.o.Cancel(context.Background(), uuid.New(), "")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancel_DuringNotificationRecordsLateResultsInAudit(t *testing.T) {
	// Подготовка
	env := newTestEnv(t)
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	env.fanout.Register(models.ChannelSMS, sinkFunc(func(ctx context.Context, msg models.Message) error {
		close(entered)
		<-release
		return nil
	}))

	id, err := env.o.Trigger(ctx, TriggerRequest{
		SubjectID: testSubject,
		Kind:      models.KindSecurity,
		Location:  &models.LocationHint{Point: &guwahatiPoint},
	})
	require.NoError(t, err)

	// Действие
	<-entered
	status, err := env.o.Cancel(ctx, id, "found my friends")
	close(release)
	env.o.Wait()

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status)

	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, incident.Status)
	assert.Empty(t, incident.Notifications, "results after close never reach the record")
	assert.Empty(t, incident.Responders)
	assert.True(t, hasAudit(incident.Audit, "late notification result"))

	for _, r := range directory.DefaultRoster() {
		rec, err := env.directory.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AvailabilityAvailable, rec.Status)
	}
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.trigger(t, guwahatiPoint)
	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, incident.Responders)
	assignedID := incident.Responders[0].ResponderID

	t.Run("missing token", func(t *testing.T) {
		_, err := env.o.UpdateStatus(ctx, id, models.StatusResolved, "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
	t.Run("forged token", func(t *testing.T) {
		_, err := env.o.UpdateStatus(ctx, id, models.StatusResolved, "not-a-jwt")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
	t.Run("tourist may not resolve", func(t *testing.T) {
		_, err := env.o.UpdateStatus(ctx, id, models.StatusResolved, env.token(t, testSubject, models.RoleTourist))
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
	t.Run("unassigned responder may not resolve", func(t *testing.T) {
		_, err := env.o.UpdateStatus(ctx, id, models.StatusResolved, env.token(t, "resp-004", models.RoleResponder))
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
	t.Run("only resolved is accepted", func(t *testing.T) {
		_, err := env.o.UpdateStatus(ctx, id, models.StatusCancelled, env.token(t, assignedID, models.RoleResponder))
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
	t.Run("assigned responder resolves", func(t *testing.T) {
		status, err := env.o.UpdateStatus(ctx, id, models.StatusResolved, env.token(t, assignedID, models.RoleResponder))
		require.NoError(t, err)
		assert.Equal(t, models.StatusResolved, status)

		resolved, err := env.store.Get(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, resolved.ResolvedAt)

		rec, err := env.directory.Get(ctx, assignedID)
		require.NoError(t, err)
		assert.Equal(t, models.AvailabilityAvailable, rec.Status)
	})
	t.Run("closed incident is stale", func(t *testing.T) {
		_, err := env.o.UpdateStatus(ctx, id, models.StatusResolved, env.token(t, "op-1", models.RoleOperator))
		assert.ErrorIs(t, err, models.ErrStaleIncident)
	})
}

func TestUpdateStatus_ResolveBeforeRespondingRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.trigger(t, nowherePoint)

	_, err := env.o.UpdateStatus(context.Background(), id, models.StatusResolved, env.token(t, "op-1", models.RoleOperator))

	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestEscalate_PriorityOnlyRises(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.trigger(t, guwahatiPoint)

	snapshot, err := env.o.Escalate(ctx, id, models.PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, snapshot.Priority)

	_, err = env.o.Escalate(ctx, id, models.PriorityLow)
	assert.ErrorIs(t, err, models.ErrPriorityDowngrade)

	_, err = env.o.Cancel(ctx, id, "")
	require.NoError(t, err)
	_, err = env.o.Escalate(ctx, id, models.PriorityCritical)
	assert.ErrorIs(t, err, models.ErrStaleIncident)
}

func TestUpdateLocation_OnlyMoreAccurateFixBecomesActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.o.Trigger(ctx, TriggerRequest{
		SubjectID: testSubject,
		Kind:      models.KindPanic,
		Location:  &models.LocationHint{Region: "shillong"},
	})
	require.NoError(t, err)
	env.o.Wait()

	precise := models.Point{Latitude: 25.5790, Longitude: 91.8930}
	snapshot, err := env.o.UpdateLocation(ctx, id, models.LocationHint{Point: &precise, AccuracyMeters: 20})
	require.NoError(t, err)
	assert.Equal(t, models.AccuracyHigh, snapshot.Location.Accuracy)
	assert.Equal(t, precise, snapshot.Location.Point)

	snapshot, err = env.o.UpdateLocation(ctx, id, models.LocationHint{Region: "guwahati"})
	require.NoError(t, err)
	assert.Equal(t, precise, snapshot.Location.Point, "less accurate report only goes to history")

	incident, err := env.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, incident.LocationHistory, 3)

	_, err = env.o.UpdateLocation(ctx, id, models.LocationHint{})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestListIncidents_FiltersBySubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.trigger(t, nowherePoint)
	second := env.trigger(t, nowherePoint)

	snapshots, err := env.o.ListIncidents(ctx, models.IncidentFilter{SubjectID: testSubject})
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	ids := []uuid.UUID{snapshots[0].ID, snapshots[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{first, second}, ids)

	_, err = env.o.ListIncidents(ctx, models.IncidentFilter{Status: "bogus"})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestNearbyResponders(t *testing.T) {
	env := newTestEnv(t)
	medical := models.ResponderMedical

	candidates, err := env.o.NearbyResponders(context.Background(), guwahatiPoint, 5, &medical)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "resp-002", candidates[0].ID)

	bogus := models.ResponderType("navy")
	_, err = env.o.NearbyResponders(context.Background(), guwahatiPoint, 5, &bogus)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

type memoryCache struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*models.IncidentSnapshot
	ttls      map[uuid.UUID]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		snapshots: make(map[uuid.UUID]*models.IncidentSnapshot),
		ttls:      make(map[uuid.UUID]time.Duration),
	}
}

func (c *memoryCache) Get(ctx context.Context, id uuid.UUID) (*models.IncidentSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots[id], nil
}

func (c *memoryCache) Set(ctx context.Context, snapshot *models.IncidentSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapshot.ID] = snapshot
	c.ttls[snapshot.ID] = ttl
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, id)
	return nil
}

func TestGetStatus_CachesWithStatusDependentTTL(t *testing.T) {
	env := newTestEnv(t)
	cache := newMemoryCache()
	env.o.cache = cache
	ctx := context.Background()
	id := env.trigger(t, guwahatiPoint)

	_, err := env.o.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, activeSnapshotTTL, cache.ttls[id])

	_, err = env.o.Cancel(ctx, id, "")
	require.NoError(t, err)
	cached, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, cached, "cancel invalidates the snapshot")

	snapshot, err := env.o.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snapshot.Status)
	assert.Equal(t, time.Minute, cache.ttls[id])
}

func TestGetStatus_UnknownIncident(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.o.GetStatus(context.Background(), uuid.New())

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWithStoreRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("domain errors are not retried", func(t *testing.T) {
		calls := 0
		err := env.o.withStoreRetry(ctx, "test", func(ctx context.Context) error {
			calls++
			return models.ErrStaleIncident
		})
		assert.ErrorIs(t, err, models.ErrStaleIncident)
		assert.Equal(t, 1, calls)
	})
	t.Run("exhausted attempts are degraded", func(t *testing.T) {
		calls := 0
		err := env.o.withStoreRetry(ctx, "test", func(ctx context.Context) error {
			calls++
			return errConnReset
		})
		assert.ErrorIs(t, err, models.ErrPipelineDegraded)
		assert.ErrorIs(t, err, errConnReset)
		assert.Equal(t, 3, calls)
	})
	t.Run("transient failure recovers", func(t *testing.T) {
		calls := 0
		err := env.o.withStoreRetry(ctx, "test", func(ctx context.Context) error {
			calls++
			if calls < 2 {
				return errConnReset
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
}

func TestSelectCandidates_PrefersDistinctTypes(t *testing.T) {
	cand := func(id string, rtype models.ResponderType, eta float64) models.Candidate {
		return models.Candidate{
			Responder:               models.Responder{ID: id, Type: rtype},
			EstimatedArrivalMinutes: eta,
		}
	}
	candidates := []models.Candidate{
		cand("p1", models.ResponderPolice, 1),
		cand("p2", models.ResponderPolice, 2),
		cand("m1", models.ResponderMedical, 3),
		cand("f1", models.ResponderFire, 4),
	}

	picked := selectCandidates(candidates, 2, nil, nil)
	require.Len(t, picked, 2)
	assert.Equal(t, "p1", picked[0].ID)
	assert.Equal(t, "m1", picked[1].ID)

	// police уже закреплен, p1 занят
	picked = selectCandidates(candidates, 2, map[models.ResponderType]bool{models.ResponderPolice: true}, map[string]bool{"p1": true})
	require.Len(t, picked, 2)
	assert.Equal(t, "m1", picked[0].ID)
	assert.Equal(t, "f1", picked[1].ID)

	// одного типа не хватает - добираем по времени прибытия
	picked = selectCandidates(candidates[:2], 2, nil, nil)
	require.Len(t, picked, 2)
	assert.Equal(t, "p2", picked[1].ID)

	assert.Empty(t, selectCandidates(candidates, 0, nil, nil))
}
