package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shenikar/safety_alert_dispatch/internal/location"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// runPipeline выполняет шаги строго по порядку. Каждый шаг перед записью результата
// проверяет состояние через хранилище: закрытый инцидент останавливает конвейер.
func (o *Orchestrator) runPipeline(incident *models.Incident, hint *models.LocationHint) {
	ctx := o.baseCtx

	incident, ok := o.locate(ctx, incident, hint)
	if !ok {
		return
	}
	incident, ok = o.notify(ctx, incident)
	if !ok {
		return
	}
	o.dispatch(ctx, incident)
}

// locate определяет позицию с повторами. Неудача не останавливает конвейер:
// инцидент продолжает с точностью unknown.
func (o *Orchestrator) locate(ctx context.Context, incident *models.Incident, hint *models.LocationHint) (*models.Incident, bool) {
	start := o.now()
	log := o.stageLogger(incident, "locate")

	var (
		fix models.Location
		err error
	)
	attempts := 1 + o.cfg.LocationRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		rctx, cancel := context.WithTimeout(ctx, o.cfg.LocationTimeout)
		fix, err = o.resolver.Resolve(rctx, hint)
		cancel()
		if err == nil || errors.Is(err, models.ErrInvalidRequest) || ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Location resolution failed")
	}
	if ctx.Err() != nil {
		o.interrupted(incident, "locate", nil)
		return nil, false
	}
	if err != nil {
		log.WithError(err).Warn("Location unavailable, continuing with unknown accuracy")
		fix = o.fallbackFix(ctx)
		o.audit(ctx, incident.ID, "locate", "location unavailable: "+err.Error())
	}

	notifying := models.StatusNotifying
	updated, err := o.update(ctx, incident.ID, "locate", models.IncidentUpdate{Location: &fix, Status: &notifying})
	o.metrics.ObserveStage("locate", o.now().Sub(start))
	if err != nil {
		o.handleStageError(incident, "locate", err)
		return nil, false
	}
	o.audit(ctx, incident.ID, "locate", fmt.Sprintf("location %s (%s)", updated.Location.Label, updated.Location.Accuracy))
	return updated, true
}

// fallbackFix - приблизительная позиция региона по умолчанию с точностью unknown
func (o *Orchestrator) fallbackFix(ctx context.Context) models.Location {
	fix := location.Unknown(o.now())
	rctx, cancel := context.WithTimeout(ctx, o.cfg.LocationTimeout)
	defer cancel()
	if approx, err := o.resolver.Resolve(rctx, nil); err == nil {
		fix.Point = approx.Point
		fix.Label = approx.Label
	}
	return fix
}

// notify рассылает оповещения контактам и экстренной службе.
// Результаты, пришедшие после закрытия инцидента, попадают только в журнал аудита.
func (o *Orchestrator) notify(ctx context.Context, incident *models.Incident) (*models.Incident, bool) {
	start := o.now()
	log := o.stageLogger(incident, "notify")

	// отмененный между шагами инцидент не должен тревожить контакты
	current, err := o.get(ctx, incident.ID)
	if err != nil {
		o.handleStageError(incident, "notify", err)
		return nil, false
	}
	if current.Status.Terminal() {
		log.WithField("status", current.Status).Info("Incident closed before notification, stopping pipeline")
		o.audit(ctx, incident.ID, "notify", "pipeline stopped: incident already closed")
		return nil, false
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.DirectoryTimeout)
	contacts, err := o.contacts.Contacts(cctx, incident.SubjectID)
	cancel()
	if err != nil {
		log.WithError(err).Warn("Contact book unavailable, notifying emergency service only")
		o.audit(ctx, incident.ID, "notify", "contact book unavailable: "+err.Error())
		contacts = nil
	}
	recipients := append(contacts, o.emergencyRecipient())

	records := o.fanout.Send(ctx, incident.ID, recipients, alertMessage(incident))
	if ctx.Err() != nil {
		o.interrupted(incident, "notify", records)
		return nil, false
	}

	sent, late := 0, 0
	for i, rec := range records {
		if rec.Outcome == models.OutcomeSent {
			sent++
		}
		err := o.withStoreRetry(ctx, "notify", func(ctx context.Context) error {
			return o.store.AppendNotification(ctx, incident.ID, rec)
		})
		switch {
		case err == nil:
		case errors.Is(err, models.ErrStaleIncident):
			late++
			o.audit(ctx, incident.ID, "notify", fmt.Sprintf("late notification result after close: %s via %s -> %s",
				rec.Recipient.Address, rec.Recipient.Channel, rec.Outcome))
		case ctx.Err() != nil:
			o.interrupted(incident, "notify", records[i:])
			return nil, false
		default:
			o.handleStageError(incident, "notify", err)
			return nil, false
		}
	}
	o.invalidate(ctx, incident.ID)
	if late > 0 {
		log.WithField("late_results", late).Info("Incident closed during notification, stopping pipeline")
		return nil, false
	}

	dispatching := models.StatusDispatching
	updated, err := o.update(ctx, incident.ID, "notify", models.IncidentUpdate{Status: &dispatching})
	o.metrics.ObserveStage("notify", o.now().Sub(start))
	if err != nil {
		o.handleStageError(incident, "notify", err)
		return nil, false
	}
	o.audit(ctx, incident.ID, "notify", fmt.Sprintf("notifications attempted: %d sent, %d not delivered", sent, len(records)-sent))
	return updated, true
}

func (o *Orchestrator) emergencyRecipient() models.Recipient {
	return models.Recipient{
		Name:             "Emergency Services",
		Channel:          models.Channel(o.cfg.EmergencyServiceChannel),
		Address:          o.cfg.EmergencyServiceRecipient,
		EmergencyService: true,
	}
}

func alertMessage(incident *models.Incident) string {
	loc := incident.Location
	return fmt.Sprintf("EMERGENCY ALERT: %s incident (priority %s) for %s. Location: %s (%.5f, %.5f, accuracy %s). Incident ID: %s",
		incident.Kind, incident.Priority, incident.SubjectID,
		loc.Label, loc.Latitude, loc.Longitude, loc.Accuracy, incident.ID)
}

// handleStageError раскладывает ошибку шага: закрытый инцидент - штатная остановка,
// исчерпанные повторы - пометка degraded, остальное - в журнал.
func (o *Orchestrator) handleStageError(incident *models.Incident, stage string, err error) {
	log := o.stageLogger(incident, stage)
	switch {
	case errors.Is(err, models.ErrStaleIncident):
		log.Info("Incident closed while pipeline was running, stopping")
		o.audit(context.Background(), incident.ID, stage, "pipeline stopped: incident already closed")
	case errors.Is(err, models.ErrPipelineDegraded):
		o.markDegraded(incident, stage, err)
	case errors.Is(err, context.Canceled):
		o.interrupted(incident, stage, nil)
	default:
		log.WithError(err).Error("Pipeline stage failed")
		o.audit(context.Background(), incident.ID, stage, "stage failed: "+err.Error())
	}
}

// interrupted фиксирует конвейер, прерванный остановкой сервиса: дописывает уже
// полученные результаты доставки, оставляет запись в журнале и помечает инцидент degraded.
// Контекст конвейера к этому моменту отменен, поэтому запись идет в отдельном с таймаутом.
func (o *Orchestrator) interrupted(incident *models.Incident, stage string, pending []models.NotificationRecord) {
	log := o.stageLogger(incident, stage)
	log.WithField("pending_records", len(pending)).Warn("Pipeline interrupted by shutdown")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseCtx), o.cfg.DirectoryTimeout)
	defer cancel()

	for _, rec := range pending {
		err := o.withStoreRetry(ctx, "notify", func(ctx context.Context) error {
			return o.store.AppendNotification(ctx, incident.ID, rec)
		})
		switch {
		case err == nil:
		case errors.Is(err, models.ErrStaleIncident):
			o.audit(ctx, incident.ID, stage, fmt.Sprintf("late notification result after close: %s via %s -> %s",
				rec.Recipient.Address, rec.Recipient.Channel, rec.Outcome))
		default:
			log.WithError(err).WithField("recipient", rec.Recipient.Address).Error("Failed to save notification record on shutdown")
		}
	}

	current, err := o.store.Get(ctx, incident.ID)
	if err == nil && current.Status.Terminal() {
		// закрыт параллельно, пометка degraded не нужна
		return
	}
	if err == nil {
		incident = current
	}
	o.audit(ctx, incident.ID, stage, "pipeline interrupted by shutdown")
	o.markDegraded(incident, stage, fmt.Errorf("%w: pipeline interrupted by shutdown", models.ErrPipelineDegraded))
}

func (o *Orchestrator) stageLogger(incident *models.Incident, stage string) *logrus.Entry {
	return o.logger.WithFields(logrus.Fields{
		"service":     "emergency",
		"method":      "pipeline",
		"stage":       stage,
		"incident_id": incident.ID,
	})
}
