package service

import (
	"context"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// snapshot строит read-only представление. Для активного инцидента с известной
// позицией ETA пересчитывается по текущему положению экипажа.
func (o *Orchestrator) snapshot(ctx context.Context, incident *models.Incident) *models.IncidentSnapshot {
	live := !incident.Status.Terminal() && incident.HasFix

	responders := make([]models.ResponderStatus, 0, len(incident.Responders))
	for _, r := range incident.Responders {
		rs := models.ResponderStatus{
			ResponderID:             r.ResponderID,
			Type:                    r.Type,
			EstimatedArrivalMinutes: r.EstimatedArrivalMinutes,
			AssignedAt:              r.AssignedAt,
		}
		if rec, err := o.directory.Get(ctx, r.ResponderID); err == nil {
			rs.Name = rec.Name
			rs.Availability = rec.Status
		}
		if live {
			if eta, err := o.directory.EstimateArrival(ctx, r.ResponderID, incident.Location.Point); err == nil {
				rs.EstimatedArrivalMinutes = eta
			}
		}
		responders = append(responders, rs)
	}

	return &models.IncidentSnapshot{
		ID:              incident.ID,
		SubjectID:       incident.SubjectID,
		Kind:            incident.Kind,
		Priority:        incident.Priority,
		Status:          incident.Status,
		Location:        incident.Location,
		Responders:      responders,
		Notifications:   append([]models.NotificationRecord{}, incident.Notifications...),
		Audit:           append([]models.AuditEntry{}, incident.Audit...),
		Unassigned:      incident.Unassigned,
		Degraded:        incident.Degraded,
		DegradedReason:  incident.DegradedReason,
		CancelReason:    incident.CancelReason,
		CreatedAt:       incident.CreatedAt,
		FirstResponseAt: incident.FirstResponseAt,
		ResolvedAt:      incident.ResolvedAt,
		CancelledAt:     incident.CancelledAt,
		Version:         incident.Version,
	}
}
