package v1

import (
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/shenikar/safety_alert_dispatch/internal/service"
)

// DTOToTriggerRequest преобразует DTO вызова в запрос оркестратора
func DTOToTriggerRequest(dto TriggerEmergencyRequest) service.TriggerRequest {
	return service.TriggerRequest{
		SubjectID:   dto.SubjectID,
		Kind:        models.Kind(dto.Kind),
		Location:    DTOToLocationHint(dto.Location),
		Description: dto.Description,
		Priority:    models.Priority(dto.Priority),
	}
}

func DTOToLocationHint(dto *LocationHintRequest) *models.LocationHint {
	if dto == nil {
		return nil
	}
	hint := &models.LocationHint{
		Label:          dto.Label,
		Region:         dto.Region,
		AccuracyMeters: dto.AccuracyMeters,
		Accuracy:       models.Accuracy(dto.Accuracy),
	}
	if dto.Latitude != nil && dto.Longitude != nil {
		hint.Point = &models.Point{Latitude: *dto.Latitude, Longitude: *dto.Longitude}
	}
	return hint
}

// SnapshotToResponse преобразует снимок состояния в DTO для ответа
func SnapshotToResponse(s *models.IncidentSnapshot) *IncidentStatusResponse {
	resp := &IncidentStatusResponse{
		ID:        s.ID,
		SubjectID: s.SubjectID,
		Kind:      string(s.Kind),
		Priority:  string(s.Priority),
		Status:    string(s.Status),
		Location: LocationResponse{
			Latitude:   s.Location.Latitude,
			Longitude:  s.Location.Longitude,
			Label:      s.Location.Label,
			Accuracy:   string(s.Location.Accuracy),
			RecordedAt: s.Location.RecordedAt,
		},
		Responders:      make([]ResponderResponse, 0, len(s.Responders)),
		Notifications:   make([]NotificationResponse, 0, len(s.Notifications)),
		Audit:           make([]AuditEntryResponse, 0, len(s.Audit)),
		Unassigned:      s.Unassigned,
		Degraded:        s.Degraded,
		DegradedReason:  s.DegradedReason,
		CancelReason:    s.CancelReason,
		CreatedAt:       s.CreatedAt,
		FirstResponseAt: s.FirstResponseAt,
		ResolvedAt:      s.ResolvedAt,
		CancelledAt:     s.CancelledAt,
		Version:         s.Version,
	}
	for _, r := range s.Responders {
		resp.Responders = append(resp.Responders, ResponderResponse{
			ResponderID:             r.ResponderID,
			Name:                    r.Name,
			Type:                    string(r.Type),
			Availability:            string(r.Availability),
			EstimatedArrivalMinutes: r.EstimatedArrivalMinutes,
			AssignedAt:              r.AssignedAt,
		})
	}
	for _, n := range s.Notifications {
		resp.Notifications = append(resp.Notifications, NotificationResponse{
			ID:        n.ID,
			AttemptID: n.AttemptID,
			Recipient: n.Recipient.Address,
			Channel:   string(n.Recipient.Channel),
			Outcome:   string(n.Outcome),
			Error:     n.Error,
			SentAt:    n.SentAt,
		})
	}
	for _, a := range s.Audit {
		resp.Audit = append(resp.Audit, AuditEntryResponse{At: a.At, Step: a.Step, Message: a.Message})
	}
	return resp
}

// SnapshotsToResponses преобразует слайс снимков в слайс DTO
func SnapshotsToResponses(snapshots []*models.IncidentSnapshot) []*IncidentStatusResponse {
	responses := make([]*IncidentStatusResponse, len(snapshots))
	for i, s := range snapshots {
		responses[i] = SnapshotToResponse(s)
	}
	return responses
}

func CandidatesToResponses(candidates []models.Candidate) []CandidateResponse {
	responses := make([]CandidateResponse, len(candidates))
	for i, c := range candidates {
		responses[i] = CandidateResponse{
			ID:                      c.ID,
			Name:                    c.Name,
			Type:                    string(c.Type),
			Latitude:                c.Position.Latitude,
			Longitude:               c.Position.Longitude,
			DistanceKm:              c.DistanceKm,
			EstimatedArrivalMinutes: c.EstimatedArrivalMinutes,
		}
	}
	return responses
}

func DegradedToResponses(entries []models.DegradedIncident) []DegradedIncidentResponse {
	responses := make([]DegradedIncidentResponse, len(entries))
	for i, e := range entries {
		responses[i] = DegradedIncidentResponse{
			IncidentID: e.IncidentID,
			SubjectID:  e.SubjectID,
			Status:     string(e.Status),
			Stage:      e.Stage,
			Reason:     e.Reason,
			At:         e.At,
		}
	}
	return responses
}
