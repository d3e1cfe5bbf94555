package models

import (
	"fmt"
	"time"
)

// Accuracy - уровень точности координат
type Accuracy string

const (
	AccuracyUnknown Accuracy = "unknown"
	AccuracyLow     Accuracy = "low"
	AccuracyMedium  Accuracy = "medium"
	AccuracyHigh    Accuracy = "high"
)

func (a Accuracy) Rank() int {
	switch a {
	case AccuracyHigh:
		return 3
	case AccuracyMedium:
		return 2
	case AccuracyLow:
		return 1
	}
	return 0
}

func (a Accuracy) Valid() bool {
	switch a {
	case AccuracyUnknown, AccuracyLow, AccuracyMedium, AccuracyHigh:
		return true
	}
	return false
}

// AccuracyFromMeters переводит радиус погрешности устройства в уровень точности
func AccuracyFromMeters(meters float64) Accuracy {
	switch {
	case meters <= 0:
		return AccuracyUnknown
	case meters < 100:
		return AccuracyHigh
	case meters < 1000:
		return AccuracyMedium
	}
	return AccuracyLow
}

// Point - точка на поверхности Земли в градусах
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidRequest, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidRequest, p.Longitude)
	}
	return nil
}

// Location - зафиксированное местоположение инцидента
type Location struct {
	Point
	Label      string    `json:"label"`
	Accuracy   Accuracy  `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LocationHint - то, что клиент сообщил о своем местоположении. Все поля необязательны.
type LocationHint struct {
	Point          *Point   `json:"point,omitempty"`
	Label          string   `json:"label,omitempty"`
	Region         string   `json:"region,omitempty"`
	AccuracyMeters float64  `json:"accuracy_meters,omitempty"`
	Accuracy       Accuracy `json:"accuracy,omitempty"`
}

func (h *LocationHint) Validate() error {
	if h == nil {
		return nil
	}
	if h.Point != nil {
		if err := h.Point.Validate(); err != nil {
			return err
		}
	}
	if h.Accuracy != "" && !h.Accuracy.Valid() {
		return fmt.Errorf("%w: unknown accuracy %q", ErrInvalidRequest, h.Accuracy)
	}
	return nil
}
