package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// MQTTPublisher - то, что нужно от MQTT-клиента
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type pushPayload struct {
	AttemptID  string `json:"attempt_id"`
	IncidentID string `json:"incident_id"`
	Message    string `json:"message"`
}

// PushSink публикует push-уведомление в топик устройства получателя
type PushSink struct {
	publisher   MQTTPublisher
	topicPrefix string
}

func NewPushSink(publisher MQTTPublisher, topicPrefix string) *PushSink {
	return &PushSink{publisher: publisher, topicPrefix: topicPrefix}
}

func (s *PushSink) Send(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(pushPayload{
		AttemptID:  msg.AttemptID.String(),
		IncidentID: msg.IncidentID.String(),
		Message:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", s.topicPrefix, msg.Recipient.Address)

	// paho не принимает context, поэтому ждем результат или отмену
	done := make(chan error, 1)
	go func() {
		done <- s.publisher.Publish(topic, 1, false, payload)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
