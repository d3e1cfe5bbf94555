package notify

import (
	"context"
	"time"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/shenikar/safety_alert_dispatch/internal/webhook"
)

// WebhookSink ставит оповещение экстренной службы в очередь вебхуков.
// Успех означает, что событие принято очередью; доставку с повторами выполняет воркер.
type WebhookSink struct {
	publisher webhook.Publisher
	now       func() time.Time
}

func NewWebhookSink(publisher webhook.Publisher) *WebhookSink {
	return &WebhookSink{publisher: publisher, now: time.Now}
}

func (s *WebhookSink) Send(ctx context.Context, msg models.Message) error {
	return s.publisher.Publish(ctx, webhook.AlertEvent{
		AttemptID:  msg.AttemptID,
		IncidentID: msg.IncidentID,
		Recipient:  msg.Recipient.Address,
		Message:    msg.Body,
		Timestamp:  s.now(),
	})
}
