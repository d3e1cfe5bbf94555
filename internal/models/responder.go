package models

import (
	"time"

	"github.com/google/uuid"
)

// ResponderType - вид экстренной службы
type ResponderType string

const (
	ResponderPolice  ResponderType = "police"
	ResponderMedical ResponderType = "medical"
	ResponderFire    ResponderType = "fire"
	ResponderRescue  ResponderType = "rescue"
)

func (t ResponderType) Valid() bool {
	switch t {
	case ResponderPolice, ResponderMedical, ResponderFire, ResponderRescue:
		return true
	}
	return false
}

// Availability - состояние доступности экипажа
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityAssigned  Availability = "assigned"
	AvailabilityOffline   Availability = "offline"
)

// Responder - запись справочника экипажей. Изменяется только справочником.
type Responder struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Type             ResponderType `json:"type"`
	Position         Point         `json:"position"`
	Status           Availability  `json:"status"`
	AssignedIncident uuid.UUID     `json:"assigned_incident,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Candidate - экипаж, найденный поиском по радиусу
type Candidate struct {
	Responder
	DistanceKm              float64 `json:"distance_km"`
	EstimatedArrivalMinutes float64 `json:"estimated_arrival_minutes"`
}

// AssignedResponder - ссылка на экипаж, закрепленный за инцидентом
type AssignedResponder struct {
	ResponderID             string        `json:"responder_id"`
	Type                    ResponderType `json:"type"`
	EstimatedArrivalMinutes float64       `json:"estimated_arrival_minutes"`
	AssignedAt              time.Time     `json:"assigned_at"`
}
