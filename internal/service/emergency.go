package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/config"
	"github.com/shenikar/safety_alert_dispatch/internal/events"
	"github.com/shenikar/safety_alert_dispatch/internal/metrics"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// Снимок активного инцидента живет недолго: статус и ETA меняются каждые секунды
const activeSnapshotTTL = 2 * time.Second

const maxDescriptionLength = 1000

// Dependencies - коллабораторы оркестратора. Events, Cache и Metrics необязательны.
type Dependencies struct {
	Store     IncidentStore
	Directory ResponderDirectory
	Fanout    NotificationFanout
	Resolver  LocationResolver
	Contacts  ContactBook
	Identity  IdentityResolver
	Events    EventPublisher
	Cache     SnapshotCache
	Metrics   *metrics.Metrics
}

// Orchestrator владеет машиной состояний инцидента и ведет конвейер
// locate -> notify -> dispatch отдельно для каждого вызова.
type Orchestrator struct {
	store     IncidentStore
	directory ResponderDirectory
	fanout    NotificationFanout
	resolver  LocationResolver
	contacts  ContactBook
	identity  IdentityResolver
	events    EventPublisher
	cache     SnapshotCache
	metrics   *metrics.Metrics

	cfg    config.Config
	logger *logrus.Logger
	now    func() time.Time

	// конвейеры живут дольше HTTP-запроса, поэтому у них свой контекст
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	degradedMu sync.Mutex
	degraded   map[uuid.UUID]models.DegradedIncident
}

var _ EmergencyService = (*Orchestrator)(nil)

// NewOrchestrator возвращает конкретный тип, а не EmergencyService: владельцу процесса
// нужны Close и Wait для остановки фоновых конвейеров. Хэндлеры получают его как EmergencyService.
func NewOrchestrator(deps Dependencies, cfg *config.Config, logger *logrus.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:     deps.Store,
		directory: deps.Directory,
		fanout:    deps.Fanout,
		resolver:  deps.Resolver,
		contacts:  deps.Contacts,
		identity:  deps.Identity,
		events:    deps.Events,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		cfg:       withDefaults(cfg),
		logger:    logger,
		now:       time.Now,
		baseCtx:   ctx,
		stop:      cancel,
		degraded:  make(map[uuid.UUID]models.DegradedIncident),
	}
	if o.events == nil {
		o.events = events.NopPublisher{}
	}
	return o
}

// withDefaults заполняет незаданные параметры конвейера значениями по умолчанию
func withDefaults(cfg *config.Config) config.Config {
	c := config.Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.LocationTimeout <= 0 {
		c.LocationTimeout = 3 * time.Second
	}
	if c.LocationRetries < 0 {
		c.LocationRetries = 0
	}
	if c.DirectoryTimeout <= 0 {
		c.DirectoryTimeout = 3 * time.Second
	}
	if c.DispatchInitialRadiusKm <= 0 {
		c.DispatchInitialRadiusKm = 5
	}
	if c.DispatchMaxExpansions < 0 {
		c.DispatchMaxExpansions = 0
	}
	if c.DispatchTopK < 1 {
		c.DispatchTopK = 2
	}
	if c.DispatchRequeryRounds < 0 {
		c.DispatchRequeryRounds = 0
	}
	if c.StoreMaxAttempts < 1 {
		c.StoreMaxAttempts = 3
	}
	if c.StoreRetryBaseDelay <= 0 {
		c.StoreRetryBaseDelay = 100 * time.Millisecond
	}
	if c.SnapshotCacheTTL <= 0 {
		c.SnapshotCacheTTL = 5 * time.Minute
	}
	if c.EmergencyServiceChannel == "" {
		c.EmergencyServiceChannel = string(models.ChannelWebhook)
	}
	if c.EmergencyServiceRecipient == "" {
		c.EmergencyServiceRecipient = "emergency-dispatch"
	}
	return c
}

// Wait дожидается завершения всех запущенных конвейеров
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close останавливает конвейеры и ждет их выхода
func (o *Orchestrator) Close() {
	o.stop()
	o.wg.Wait()
}

// Trigger создает инцидент, переводит его в locating и сразу возвращает id.
// Остальные шаги выполняются асинхронно.
func (o *Orchestrator) Trigger(ctx context.Context, req TriggerRequest) (uuid.UUID, error) {
	log := o.logger.WithFields(logrus.Fields{
		"service":    "emergency",
		"method":     "Trigger",
		"subject_id": req.SubjectID,
		"kind":       req.Kind,
	})
	log.Info("Emergency alert received")

	if err := validateTrigger(&req); err != nil {
		log.WithError(err).Warn("Rejected invalid emergency alert")
		return uuid.Nil, err
	}

	incident := models.NewIncident(req.SubjectID, req.Kind, req.Priority, req.Description, o.now())
	log = log.WithField("incident_id", incident.ID)

	err := o.withStoreRetry(ctx, "create", func(ctx context.Context) error {
		return o.store.Create(ctx, incident)
	})
	if err != nil {
		log.WithError(err).Error("Failed to persist incident")
		if errors.Is(err, models.ErrPipelineDegraded) {
			o.markDegraded(incident, "create", err)
		}
		return uuid.Nil, fmt.Errorf("service: could not create incident: %w", err)
	}
	o.metrics.IncTriggered(incident.Kind)
	o.audit(ctx, incident.ID, "trigger", fmt.Sprintf("%s alert raised by %s with priority %s", incident.Kind, incident.SubjectID, incident.Priority))

	locating := models.StatusLocating
	updated, err := o.update(ctx, incident.ID, "trigger", models.IncidentUpdate{Status: &locating})
	if err != nil {
		// запись уже существует, поэтому id все равно выдаем
		o.handleStageError(incident, "trigger", err)
		return incident.ID, nil
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runPipeline(updated, req.Location)
	}()

	log.Info("Incident created, pipeline started")
	return incident.ID, nil
}

func validateTrigger(req *TriggerRequest) error {
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if req.SubjectID == "" {
		return fmt.Errorf("%w: subject id is required", models.ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown incident kind %q", models.ErrInvalidRequest, req.Kind)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityHigh
	}
	if !req.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", models.ErrInvalidRequest, req.Priority)
	}
	if len(req.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description is too long", models.ErrInvalidRequest)
	}
	return req.Location.Validate()
}

// Cancel переводит инцидент в cancelled. Для закрытого инцидента возвращает текущий статус без ошибки.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID, reason string) (models.Status, error) {
	log := o.logger.WithFields(logrus.Fields{
		"service":     "emergency",
		"method":      "Cancel",
		"incident_id": id,
	})
	log.Info("Attempting to cancel incident")

	incident, err := o.get(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to load incident for cancel")
		return "", fmt.Errorf("service: could not cancel incident: %w", err)
	}
	if incident.Status.Terminal() {
		log.WithField("status", incident.Status).Info("Incident already closed, cancel is a no-op")
		return incident.Status, nil
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by user"
	}
	cancelled := models.StatusCancelled
	updated, err := o.update(ctx, id, "cancel", models.IncidentUpdate{Status: &cancelled, CancelReason: &reason})
	if err != nil {
		if errors.Is(err, models.ErrStaleIncident) {
			// инцидент закрыли параллельно
			if current, gerr := o.get(ctx, id); gerr == nil {
				return current.Status, nil
			}
		}
		if errors.Is(err, models.ErrPipelineDegraded) {
			o.markDegraded(incident, "cancel", err)
		}
		log.WithError(err).Error("Failed to cancel incident")
		return "", fmt.Errorf("service: could not cancel incident: %w", err)
	}

	// побочные эффекты после фиксации не должны зависеть от отмены запроса
	after := context.WithoutCancel(ctx)
	o.releaseAll(after, updated)
	o.audit(after, id, "cancel", "incident cancelled: "+reason)

	log.Info("Incident cancelled")
	return updated.Status, nil
}

// UpdateStatus - переход responding -> resolved по запросу закрепленного экипажа или оператора
func (o *Orchestrator) UpdateStatus(ctx context.Context, id uuid.UUID, next models.Status, actorToken string) (models.Status, error) {
	log := o.logger.WithFields(logrus.Fields{
		"service":     "emergency",
		"method":      "UpdateStatus",
		"incident_id": id,
		"next_status": next,
	})

	if actorToken == "" {
		return "", fmt.Errorf("service: actor token is required: %w", models.ErrUnauthorized)
	}
	actor, err := o.identity.Resolve(ctx, actorToken)
	if err != nil {
		log.WithError(err).Warn("Actor token rejected")
		return "", fmt.Errorf("service: could not verify actor: %w", err)
	}
	log = log.WithFields(logrus.Fields{"actor_id": actor.ID, "actor_role": actor.Role})

	if !next.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", models.ErrInvalidRequest, next)
	}

	incident, err := o.get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("service: could not update status: %w", err)
	}
	if incident.Status.Terminal() {
		return "", fmt.Errorf("service: incident %s is %s: %w", id, incident.Status, models.ErrStaleIncident)
	}
	if next != models.StatusResolved || !incident.Status.CanTransitionTo(next) {
		return "", fmt.Errorf("service: %s -> %s: %w", incident.Status, next, models.ErrInvalidTransition)
	}
	assigned := actor.Role == models.RoleResponder && incident.HasResponder(actor.ID)
	if !assigned && !actor.CanCloseAnyIncident() {
		log.Warn("Actor is not allowed to close this incident")
		return "", fmt.Errorf("service: actor %s may not close incident %s: %w", actor.ID, id, models.ErrForbidden)
	}

	updated, err := o.update(ctx, id, "resolve", models.IncidentUpdate{Status: &next})
	if err != nil {
		if errors.Is(err, models.ErrPipelineDegraded) {
			o.markDegraded(incident, "resolve", err)
		}
		log.WithError(err).Error("Failed to resolve incident")
		return "", fmt.Errorf("service: could not update status: %w", err)
	}

	after := context.WithoutCancel(ctx)
	o.releaseAll(after, updated)
	o.audit(after, id, "resolve", fmt.Sprintf("incident resolved by %s (%s)", actor.ID, actor.Role))

	log.Info("Incident resolved")
	return updated.Status, nil
}

// GetStatus возвращает снимок состояния. Ничего не изменяет.
func (o *Orchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*models.IncidentSnapshot, error) {
	log := o.logger.WithFields(logrus.Fields{
		"service":     "emergency",
		"method":      "GetStatus",
		"incident_id": id,
	})

	if o.cache != nil {
		cached, err := o.cache.Get(ctx, id)
		if err != nil {
			log.WithError(err).Warn("Failed to get snapshot from cache")
		} else if cached != nil {
			log.Debug("Snapshot served from cache")
			return cached, nil
		}
	}

	incident, err := o.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: could not get incident status: %w", err)
	}
	snapshot := o.snapshot(ctx, incident)

	if o.cache != nil {
		ttl := activeSnapshotTTL
		if incident.Status.Terminal() {
			ttl = o.cfg.SnapshotCacheTTL
		}
		if err := o.cache.Set(ctx, snapshot, ttl); err != nil {
			log.WithError(err).Warn("Failed to cache snapshot")
		}
	}
	return snapshot, nil
}

// UpdateLocation принимает более позднюю позицию. Активной она становится, только если точнее текущей.
func (o *Orchestrator) UpdateLocation(ctx context.Context, id uuid.UUID, hint models.LocationHint) (*models.IncidentSnapshot, error) {
	log := o.logger.WithFields(logrus.Fields{
		"service":     "emergency",
		"method":      "UpdateLocation",
		"incident_id": id,
	})
	if hint.Point == nil && hint.Region == "" {
		return nil, fmt.Errorf("%w: location update needs coordinates or a region", models.ErrInvalidRequest)
	}

	rctx, cancel := context.WithTimeout(ctx, o.cfg.LocationTimeout)
	fix, err := o.resolver.Resolve(rctx, &hint)
	cancel()
	if err != nil {
		log.WithError(err).Warn("Failed to resolve location update")
		if errors.Is(err, models.ErrInvalidRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}

	updated, err := o.update(ctx, id, "location_update", models.IncidentUpdate{Location: &fix})
	if err != nil {
		return nil, fmt.Errorf("service: could not update location: %w", err)
	}

	msg := fmt.Sprintf("location report %s (%s) kept in history", fix.Label, fix.Accuracy)
	if sameFix(updated.Location, fix) {
		msg = fmt.Sprintf("active location replaced by %s (%s)", fix.Label, fix.Accuracy)
	}
	o.audit(ctx, id, "location_update", msg)
	o.publish(ctx, events.EventTypeLocationUpdated, updated, msg)
	log.Info(msg)
	return o.snapshot(ctx, updated), nil
}

// Escalate повышает приоритет; понижение отклоняется
func (o *Orchestrator) Escalate(ctx context.Context, id uuid.UUID, priority models.Priority) (*models.IncidentSnapshot, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidRequest, priority)
	}
	updated, err := o.update(ctx, id, "escalate", models.IncidentUpdate{Priority: &priority})
	if err != nil {
		return nil, fmt.Errorf("service: could not escalate incident: %w", err)
	}
	o.audit(ctx, id, "escalate", "priority set to "+string(priority))
	o.publish(ctx, events.EventTypePriorityEscalated, updated, string(priority))
	return o.snapshot(ctx, updated), nil
}

// ListIncidents возвращает снимки инцидентов, новые первыми
func (o *Orchestrator) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.IncidentSnapshot, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidRequest, filter.Status)
	}
	incidents, err := o.store.List(ctx, filter.Normalize())
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"service": "emergency",
			"method":  "ListIncidents",
		}).WithError(err).Error("Failed to list incidents")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}
	snapshots := make([]*models.IncidentSnapshot, 0, len(incidents))
	for _, incident := range incidents {
		snapshots = append(snapshots, o.snapshot(ctx, incident))
	}
	return snapshots, nil
}

// NearbyResponders - поиск свободных экипажей для оператора, ничего не закрепляет
func (o *Orchestrator) NearbyResponders(ctx context.Context, center models.Point, radiusKm float64, rtype *models.ResponderType) ([]models.Candidate, error) {
	if rtype != nil && !rtype.Valid() {
		return nil, fmt.Errorf("%w: unknown responder type %q", models.ErrInvalidRequest, *rtype)
	}
	qctx, cancel := context.WithTimeout(ctx, o.cfg.DirectoryTimeout)
	defer cancel()
	candidates, err := o.directory.Query(qctx, center, radiusKm, rtype)
	if err != nil {
		return nil, fmt.Errorf("service: could not query responders: %w", err)
	}
	return candidates, nil
}

// DegradedIncidents объединяет пометки из хранилища и из памяти процесса:
// если хранилище недоступно, оператор все равно увидит проблемные инциденты.
func (o *Orchestrator) DegradedIncidents(ctx context.Context) ([]models.DegradedIncident, error) {
	merged := make(map[uuid.UUID]models.DegradedIncident)

	stored, err := o.store.List(ctx, models.IncidentFilter{DegradedOnly: true, Limit: models.MaxListLimit})
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"service": "emergency",
			"method":  "DegradedIncidents",
		}).WithError(err).Warn("Failed to list degraded incidents from store, using local registry")
	}
	for _, incident := range stored {
		merged[incident.ID] = models.DegradedIncident{
			IncidentID: incident.ID,
			SubjectID:  incident.SubjectID,
			Status:     incident.Status,
			Reason:     incident.DegradedReason,
			At:         incident.UpdatedAt,
		}
	}

	o.degradedMu.Lock()
	for id, entry := range o.degraded {
		// статус из хранилища свежее, чем на момент пометки
		if existing, ok := merged[id]; ok {
			entry.Status = existing.Status
		}
		merged[id] = entry
	}
	o.degradedMu.Unlock()

	result := make([]models.DegradedIncident, 0, len(merged))
	for _, entry := range merged {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].At.After(result[j].At)
	})
	return result, nil
}

func sameFix(a, b models.Location) bool {
	return a.Point == b.Point && a.Accuracy == b.Accuracy && a.Label == b.Label && a.RecordedAt.Equal(b.RecordedAt)
}

func (o *Orchestrator) get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var incident *models.Incident
	err := o.withStoreRetry(ctx, "get", func(ctx context.Context) error {
		var err error
		incident, err = o.store.Get(ctx, id)
		return err
	})
	return incident, err
}

// update пишет изменения с повторами и сбрасывает кэш снимка
func (o *Orchestrator) update(ctx context.Context, id uuid.UUID, stage string, u models.IncidentUpdate) (*models.Incident, error) {
	var updated *models.Incident
	err := o.withStoreRetry(ctx, stage, func(ctx context.Context) error {
		var err error
		updated, err = o.store.Update(ctx, id, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.invalidate(ctx, id)
	if u.Status != nil {
		o.metrics.ObserveTransition(*u.Status)
		o.publish(ctx, events.EventTypeStatusChanged, updated, string(*u.Status))
	}
	return updated, nil
}

// audit - запись в журнал инцидента; ошибка журнала не останавливает конвейер
func (o *Orchestrator) audit(ctx context.Context, id uuid.UUID, step, message string) {
	entry := models.AuditEntry{At: o.now(), Step: step, Message: message}
	err := o.withStoreRetry(ctx, "audit", func(ctx context.Context) error {
		return o.store.AppendAudit(ctx, id, entry)
	})
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"service":     "emergency",
			"incident_id": id,
			"step":        step,
		}).WithError(err).Warn("Failed to append audit entry")
		return
	}
	o.invalidate(ctx, id)
}

func (o *Orchestrator) invalidate(ctx context.Context, id uuid.UUID) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Invalidate(ctx, id); err != nil {
		o.logger.WithField("incident_id", id).WithError(err).Warn("Failed to invalidate snapshot cache")
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, incident *models.Incident, detail string) {
	if err := o.events.Publish(ctx, events.NewEvent(eventType, incident, detail)); err != nil {
		o.logger.WithFields(logrus.Fields{
			"incident_id": incident.ID,
			"event":       eventType,
		}).WithError(err).Warn("Failed to publish incident event")
	}
}

// releaseAll возвращает в резерв все экипажи инцидента
func (o *Orchestrator) releaseAll(ctx context.Context, incident *models.Incident) {
	for _, r := range incident.Responders {
		if err := o.directory.Release(ctx, r.ResponderID, incident.ID); err != nil {
			o.logger.WithFields(logrus.Fields{
				"incident_id":  incident.ID,
				"responder_id": r.ResponderID,
			}).WithError(err).Warn("Failed to release responder")
		}
	}
}

// markDegraded запоминает инцидент для операторов и пытается пометить запись в хранилище
func (o *Orchestrator) markDegraded(incident *models.Incident, stage string, cause error) {
	reason := fmt.Sprintf("%s: %v", stage, cause)
	entry := models.DegradedIncident{
		IncidentID: incident.ID,
		SubjectID:  incident.SubjectID,
		Status:     incident.Status,
		Stage:      stage,
		Reason:     reason,
		At:         o.now(),
	}
	o.degradedMu.Lock()
	o.degraded[incident.ID] = entry
	o.degradedMu.Unlock()

	o.metrics.IncDegraded(stage)
	o.logger.WithFields(logrus.Fields{
		"service":     "emergency",
		"incident_id": incident.ID,
		"stage":       stage,
	}).WithError(cause).Error("Incident marked degraded")

	// одна попытка: хранилище, скорее всего, все еще недоступно
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DirectoryTimeout)
	defer cancel()
	flag := true
	updated, err := o.store.Update(ctx, incident.ID, models.IncidentUpdate{Degraded: &flag, DegradedReason: &reason})
	if err != nil {
		return
	}
	o.invalidate(ctx, incident.ID)
	o.publish(ctx, events.EventTypeIncidentDegraded, updated, reason)
}
