package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel - канал доставки оповещения
type Channel string

const (
	ChannelSMS     Channel = "sms"
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// Outcome - итог одной попытки доставки
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

// Recipient - получатель оповещения
type Recipient struct {
	Name             string  `json:"name,omitempty"`
	Channel          Channel `json:"channel"`
	Address          string  `json:"address"`
	EmergencyService bool    `json:"emergency_service,omitempty"` // фиксированный канал экстренных служб
}

// Message - то, что получает конкретный канал доставки
type Message struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	Recipient  Recipient `json:"recipient"`
	Body       string    `json:"body"`
}

// NotificationRecord - неизменяемая запись об одной попытке доставки
type NotificationRecord struct {
	ID         uuid.UUID `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	Recipient  Recipient `json:"recipient"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}
