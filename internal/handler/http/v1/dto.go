package v1

import (
	"time"

	"github.com/google/uuid"
)

// LocationHintRequest DTO подсказки о местоположении, все поля необязательны
// @Description Координаты устройства или регион
type LocationHintRequest struct {
	Latitude       *float64 `json:"latitude,omitempty" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude      *float64 `json:"longitude,omitempty" validate:"required_with=Latitude,omitempty,longitude"`
	AccuracyMeters float64  `json:"accuracy_meters,omitempty" validate:"gte=0"`
	Accuracy       string   `json:"accuracy,omitempty" validate:"omitempty,oneof=unknown low medium high"`
	Label          string   `json:"label,omitempty" validate:"max=255"`
	Region         string   `json:"region,omitempty" validate:"max=100"`
}

// TriggerEmergencyRequest DTO экстренного вызова
// @Description DTO экстренного вызова
type TriggerEmergencyRequest struct {
	SubjectID   string               `json:"subject_id" validate:"required,max=255"`
	Kind        string               `json:"kind" validate:"required,oneof=panic medical security natural-disaster"`
	Location    *LocationHintRequest `json:"location,omitempty"`
	Description string               `json:"description,omitempty" validate:"max=1000"`
	Priority    string               `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
}

// TriggerEmergencyResponse DTO ответа на экстренный вызов
// @Description id инцидента; дальнейший ход виден через опрос статуса
type TriggerEmergencyResponse struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Status     string    `json:"status"`
}

// CancelEmergencyRequest DTO отмены
// @Description DTO отмены
type CancelEmergencyRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// UpdateStatusRequest DTO смены статуса экипажем или оператором
// @Description Токен участника можно передать в заголовке X-Actor-Token
type UpdateStatusRequest struct {
	Status     string `json:"status" validate:"required"`
	ActorToken string `json:"actor_token,omitempty"`
}

// EscalateRequest DTO повышения приоритета
// @Description DTO повышения приоритета
type EscalateRequest struct {
	Priority string `json:"priority" validate:"required,oneof=low medium high critical"`
}

// StatusResponse DTO ответа со статусом
// @Description DTO ответа со статусом
type StatusResponse struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Status     string    `json:"status"`
}

// LocationResponse DTO местоположения
type LocationResponse struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Label      string    `json:"label"`
	Accuracy   string    `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ResponderResponse DTO закрепленного экипажа
type ResponderResponse struct {
	ResponderID             string    `json:"responder_id"`
	Name                    string    `json:"name,omitempty"`
	Type                    string    `json:"type"`
	Availability            string    `json:"availability,omitempty"`
	EstimatedArrivalMinutes float64   `json:"estimated_arrival_minutes"`
	AssignedAt              time.Time `json:"assigned_at"`
}

// NotificationResponse DTO записи о доставке
type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// AuditEntryResponse DTO записи журнала
type AuditEntryResponse struct {
	At      time.Time `json:"at"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
}

// IncidentStatusResponse DTO снимка состояния инцидента
// @Description Снимок состояния для опроса статуса
type IncidentStatusResponse struct {
	ID              uuid.UUID              `json:"id"`
	SubjectID       string                 `json:"subject_id"`
	Kind            string                 `json:"kind"`
	Priority        string                 `json:"priority"`
	Status          string                 `json:"status"`
	Location        LocationResponse       `json:"location"`
	Responders      []ResponderResponse    `json:"responders"`
	Notifications   []NotificationResponse `json:"notifications"`
	Audit           []AuditEntryResponse   `json:"audit"`
	Unassigned      bool                   `json:"unassigned"`
	Degraded        bool                   `json:"degraded"`
	DegradedReason  string                 `json:"degraded_reason,omitempty"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	FirstResponseAt *time.Time             `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
	Version         int64                  `json:"version"`
}

// CandidateResponse DTO свободного экипажа рядом с точкой
type CandidateResponse struct {
	ID                      string  `json:"id"`
	Name                    string  `json:"name"`
	Type                    string  `json:"type"`
	Latitude                float64 `json:"latitude"`
	Longitude               float64 `json:"longitude"`
	DistanceKm              float64 `json:"distance_km"`
	EstimatedArrivalMinutes float64 `json:"estimated_arrival_minutes"`
}

// DegradedIncidentResponse DTO инцидента с пометкой degraded
type DegradedIncidentResponse struct {
	IncidentID uuid.UUID `json:"incident_id"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}
