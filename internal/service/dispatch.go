package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shenikar/safety_alert_dispatch/internal/events"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// dispatch ищет экипажи и закрепляет до K штук, сначала разных типов.
// Радиус удваивается, только пока в нем никого не удалось закрепить: если в R0 нашелся
// один экипаж, второе место остается пустым. Проигранная гонка за экипаж
// (ErrNotAvailable) ведет к повторному поиску в том же радиусе.
func (o *Orchestrator) dispatch(ctx context.Context, incident *models.Incident) {
	start := o.now()
	log := o.stageLogger(incident, "dispatch")
	defer func() { o.metrics.ObserveStage("dispatch", o.now().Sub(start)) }()

	center := incident.Location.Point
	k := o.cfg.DispatchTopK
	takenTypes := make(map[models.ResponderType]bool)
	takenIDs := make(map[string]bool)
	assigned := 0

	radius := o.cfg.DispatchInitialRadiusKm
	for expansion := 0; ; expansion++ {
		for round := 0; round <= o.cfg.DispatchRequeryRounds && assigned < k; round++ {
			qctx, cancel := context.WithTimeout(ctx, o.cfg.DirectoryTimeout)
			candidates, err := o.directory.Query(qctx, center, radius, nil)
			cancel()
			if ctx.Err() != nil {
				o.interrupted(incident, "dispatch", nil)
				return
			}
			if err != nil {
				log.WithError(err).WithField("radius_km", radius).Warn("Responder query failed")
				o.audit(ctx, incident.ID, "dispatch", fmt.Sprintf("responder query failed at %.1f km: %v", radius, err))
				break
			}

			picks := selectCandidates(candidates, k-assigned, takenTypes, takenIDs)
			if len(picks) == 0 {
				break
			}

			conflict := false
			for _, pick := range picks {
				err := o.directory.Assign(ctx, pick.ID, incident.ID)
				if ctx.Err() != nil {
					o.interrupted(incident, "dispatch", nil)
					return
				}
				if errors.Is(err, models.ErrNotAvailable) {
					// экипаж забрал другой инцидент
					conflict = true
					o.metrics.IncResponderConflict()
					log.WithField("responder_id", pick.ID).Info("Responder taken by another incident, will re-query")
					continue
				}
				if err != nil {
					log.WithError(err).WithField("responder_id", pick.ID).Warn("Failed to assign responder")
					takenIDs[pick.ID] = true
					continue
				}

				ok := o.recordAssignment(ctx, incident, pick, assigned == 0)
				if !ok {
					return
				}
				assigned++
				takenTypes[pick.Type] = true
				takenIDs[pick.ID] = true
			}
			if !conflict {
				break
			}
		}

		if assigned > 0 || expansion == o.cfg.DispatchMaxExpansions {
			break
		}
		log.WithField("radius_km", radius).Info("No responders in radius, widening search")
		o.audit(ctx, incident.ID, "dispatch", fmt.Sprintf("no responders within %.1f km, widening search to %.1f km", radius, radius*2))
		radius *= 2
	}

	if assigned > 0 {
		if assigned < k {
			o.audit(ctx, incident.ID, "dispatch", fmt.Sprintf("only %d of %d responders available within %.1f km", assigned, k, radius))
		}
		log.WithFields(logrus.Fields{"assigned": assigned, "radius_km": radius}).Info("Dispatch finished")
		return
	}

	unassigned := true
	updated, err := o.update(ctx, incident.ID, "dispatch", models.IncidentUpdate{Unassigned: &unassigned})
	if err != nil {
		o.handleStageError(incident, "dispatch", err)
		return
	}
	o.metrics.IncUnassigned()
	msg := fmt.Sprintf("no responders available within %.1f km", radius)
	o.publish(ctx, events.EventTypeDispatchUnassigned, updated, msg)
	o.audit(ctx, incident.ID, "dispatch", msg)
	log.Warn("No responders available, incident left unassigned")
}

// recordAssignment записывает закрепленный экипаж в инцидент. Если запись не удалась,
// экипаж возвращается в резерв и конвейер останавливается.
func (o *Orchestrator) recordAssignment(ctx context.Context, incident *models.Incident, pick models.Candidate, first bool) bool {
	rec := models.AssignedResponder{
		ResponderID:             pick.ID,
		Type:                    pick.Type,
		EstimatedArrivalMinutes: pick.EstimatedArrivalMinutes,
		AssignedAt:              o.now(),
	}
	err := o.withStoreRetry(ctx, "dispatch", func(ctx context.Context) error {
		return o.store.AppendResponder(ctx, incident.ID, rec)
	})
	if err != nil {
		if rerr := o.directory.Release(context.WithoutCancel(ctx), pick.ID, incident.ID); rerr != nil {
			o.stageLogger(incident, "dispatch").WithError(rerr).Warn("Failed to release responder after failed assignment")
		}
		o.handleStageError(incident, "dispatch", err)
		return false
	}
	o.invalidate(ctx, incident.ID)

	updated := incident
	if first {
		responding := models.StatusResponding
		updated, err = o.update(ctx, incident.ID, "dispatch", models.IncidentUpdate{Status: &responding})
		if err != nil {
			// экипаж уже записан в инцидент, Cancel вернет его в резерв
			o.handleStageError(incident, "dispatch", err)
			return false
		}
	}

	msg := fmt.Sprintf("%s %s assigned, eta %.1f min", pick.Type, pick.ID, pick.EstimatedArrivalMinutes)
	o.publish(ctx, events.EventTypeResponderAssigned, updated, msg)
	o.audit(ctx, incident.ID, "dispatch", msg)
	return true
}

// selectCandidates выбирает до k экипажей: сначала по одному каждого еще не
// закрепленного типа, затем оставшиеся места по времени прибытия.
// Кандидаты должны быть отсортированы по времени прибытия.
func selectCandidates(candidates []models.Candidate, k int, takenTypes map[models.ResponderType]bool, takenIDs map[string]bool) []models.Candidate {
	if k <= 0 {
		return nil
	}
	picked := make([]models.Candidate, 0, k)
	pickedIDs := make(map[string]bool)
	types := make(map[models.ResponderType]bool)
	for t := range takenTypes {
		types[t] = true
	}

	for _, c := range candidates {
		if len(picked) == k {
			return picked
		}
		if takenIDs[c.ID] || types[c.Type] {
			continue
		}
		picked = append(picked, c)
		pickedIDs[c.ID] = true
		types[c.Type] = true
	}
	for _, c := range candidates {
		if len(picked) == k {
			break
		}
		if takenIDs[c.ID] || pickedIDs[c.ID] {
			continue
		}
		picked = append(picked, c)
		pickedIDs[c.ID] = true
	}
	return picked
}
