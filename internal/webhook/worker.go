package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shenikar/safety_alert_dispatch/internal/config"
	"github.com/sirupsen/logrus"
)

const popTimeout = time.Second

// Queue - источник оповещений для воркера
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	DeadLetter(ctx context.Context, payload string) error
}

// Worker доставляет оповещения экстренной службе по HTTP
type Worker struct {
	queue      Queue
	logger     *logrus.Logger
	cfg        *config.Config
	httpClient *http.Client
}

func NewWorker(queue Queue, logger *logrus.Logger, cfg *config.Config) *Worker {
	return &Worker{
		queue:      queue,
		logger:     logger,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.WebhookTimeout},
	}
}

// Start запускает цикл чтения очереди до отмены ctx
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting emergency webhook worker")
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	for ctx.Err() == nil {
		// короткий таймаут, чтобы вовремя заметить отмену
		payload, err := w.queue.Pop(ctx, popTimeout)
		switch {
		case errors.Is(err, context.Canceled):
		case err != nil:
			w.logger.WithError(err).Error("Failed to read alert queue")
			sleepCtx(ctx, w.cfg.WebhookTimeout)
		case payload != "":
			w.handle(ctx, payload)
		}
	}
	w.logger.Info("Emergency webhook worker stopped")
}

func (w *Worker) handle(ctx context.Context, payload string) {
	var event AlertEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		w.logger.WithError(err).Error("Dropping malformed alert event")
		return
	}
	log := w.logger.WithFields(logrus.Fields{
		"incident_id": event.IncidentID,
		"attempt_id":  event.AttemptID,
		"recipient":   event.Recipient,
	})

	if w.cfg.WebhookURL == "" {
		log.Warn("WEBHOOK_URL is not set, alert parked as dead letter")
		w.park(ctx, log, payload)
		return
	}

	attempts := max(w.cfg.WebhookMaxRetries, 1)
	delay := w.cfg.WebhookBaseDelay
	for attempt := 1; ; attempt++ {
		err := w.deliver(ctx, event, payload)
		if err == nil {
			log.WithField("attempt", attempt).Info("Alert delivered to emergency service")
			return
		}
		if attempt == attempts {
			log.WithError(err).Errorf("Alert not delivered after %d attempts", attempts)
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warnf("Alert delivery failed, next attempt in %v", delay)
		if !sleepCtx(ctx, delay) {
			break
		}
		delay *= 2
	}
	w.park(ctx, log, payload)
}

// park не теряет оповещение: даже при остановке воркера оно уходит в dead letter
func (w *Worker) park(ctx context.Context, log *logrus.Entry, payload string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.WebhookTimeout)
	defer cancel()
	if err := w.queue.DeadLetter(ctx, payload); err != nil {
		log.WithError(err).Error("Failed to park undelivered alert")
	}
}

// deliver - одна попытка POST с подписью тела
func (w *Worker) deliver(ctx context.Context, event AlertEvent, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewBufferString(payload))
	if err != nil {
		return fmt.Errorf("webhook: could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// принимающая сторона отбрасывает повторы по этому ключу
	req.Header.Set("Idempotency-Key", event.AttemptID.String()+":"+event.Recipient)
	if w.cfg.WebhookSecret != "" {
		req.Header.Set("X-Webhook-Signature", signPayload(payload, w.cfg.WebhookSecret))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: emergency service responded %d", resp.StatusCode)
	}
	return nil
}

// sleepCtx ждет d или отмены контекста, false - контекст отменен
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// signPayload - HMAC-SHA256 тела в hex
func signPayload(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
