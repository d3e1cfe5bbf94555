package models

import (
	"errors"
	"fmt"
)

// Ошибки предметной области. Слои оборачивают их через %w, вызывающая сторона проверяет errors.Is.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrStaleIncident      = errors.New("incident is terminal")
	ErrNotAvailable       = errors.New("responder not available")
	ErrPipelineDegraded   = errors.New("pipeline degraded")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrTimestampImmutable = errors.New("timestamp already set")
	ErrVersionConflict    = errors.New("version conflict")

	ErrInvalidTransition = fmt.Errorf("%w: status transition not allowed", ErrInvalidRequest)
	ErrPriorityDowngrade = fmt.Errorf("%w: priority cannot be lowered", ErrInvalidRequest)
)
