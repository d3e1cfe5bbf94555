package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// gatewayRequest - тело запроса к HTTP-шлюзу SMS/email провайдера
type gatewayRequest struct {
	To             string `json:"to"`
	Name           string `json:"name,omitempty"`
	Message        string `json:"message"`
	IncidentID     string `json:"incident_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// GatewaySink отправляет sms и email через HTTP-шлюз провайдера
type GatewaySink struct {
	client *resty.Client
	path   string
}

// NewGatewaySink создает канал доставки. Повторы на стороне клиента не включаем:
// конвейер сам фиксирует неудачу, а повтор - ответственность оператора.
func NewGatewaySink(baseURL, apiKey, path string, timeout time.Duration) *GatewaySink {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &GatewaySink{client: client, path: path}
}

func (s *GatewaySink) Send(ctx context.Context, msg models.Message) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(gatewayRequest{
			To:             msg.Recipient.Address,
			Name:           msg.Recipient.Name,
			Message:        msg.Body,
			IncidentID:     msg.IncidentID.String(),
			IdempotencyKey: msg.AttemptID.String() + ":" + msg.Recipient.Address,
		}).
		Post(s.path)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway responded with status %d", resp.StatusCode())
	}
	return nil
}
