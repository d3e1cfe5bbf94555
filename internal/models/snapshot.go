package models

import (
	"time"

	"github.com/google/uuid"
)

// ResponderStatus - экипаж в снимке состояния с актуальной оценкой прибытия
type ResponderStatus struct {
	ResponderID             string        `json:"responder_id"`
	Name                    string        `json:"name,omitempty"`
	Type                    ResponderType `json:"type"`
	Availability            Availability  `json:"availability,omitempty"`
	EstimatedArrivalMinutes float64       `json:"estimated_arrival_minutes"`
	AssignedAt              time.Time     `json:"assigned_at"`
}

// IncidentSnapshot - read-only представление инцидента для опроса статуса
type IncidentSnapshot struct {
	ID              uuid.UUID            `json:"id"`
	SubjectID       string               `json:"subject_id"`
	Kind            Kind                 `json:"kind"`
	Priority        Priority             `json:"priority"`
	Status          Status               `json:"status"`
	Location        Location             `json:"location"`
	Responders      []ResponderStatus    `json:"responders"`
	Notifications   []NotificationRecord `json:"notifications"`
	Audit           []AuditEntry         `json:"audit"`
	Unassigned      bool                 `json:"unassigned"`
	Degraded        bool                 `json:"degraded"`
	DegradedReason  string               `json:"degraded_reason,omitempty"`
	CancelReason    string               `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	FirstResponseAt *time.Time           `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	Version         int64                `json:"version"`
}

// DegradedIncident - инцидент, у которого шаг конвейера не смог записать результат после всех повторов
type DegradedIncident struct {
	IncidentID uuid.UUID `json:"incident_id"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Status     Status    `json:"status,omitempty"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}
