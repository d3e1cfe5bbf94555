package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sink - канал доставки (sms, email, push, webhook). Дедупликация по AttemptID - забота канала.
type Sink interface {
	Send(ctx context.Context, msg models.Message) error
}

// Observer получает итог каждой попытки доставки, например для метрик
type Observer interface {
	ObserveNotification(channel models.Channel, outcome models.Outcome)
}

// Fanout рассылает одно оповещение всем получателям параллельно.
// Каждая попытка дает ровно одну запись, ошибка одного получателя не влияет на остальных.
type Fanout struct {
	mu             sync.RWMutex
	sinks          map[models.Channel]Sink
	timeout        time.Duration
	maxConcurrency int
	observer       Observer
	logger         *logrus.Logger
	now            func() time.Time
}

func NewFanout(timeout time.Duration, maxConcurrency int, observer Observer, logger *logrus.Logger) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{
		sinks:          make(map[models.Channel]Sink),
		timeout:        timeout,
		maxConcurrency: maxConcurrency,
		observer:       observer,
		logger:         logger,
		now:            time.Now,
	}
}

// Register подключает канал доставки
func (f *Fanout) Register(channel models.Channel, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[channel] = sink
}

func (f *Fanout) sink(channel models.Channel) (Sink, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.sinks[channel]
	return s, ok
}

// Send доставляет сообщение всем получателям и возвращает записи в порядке получателей.
// Один AttemptID на вызов позволяет каналу отбросить повторную доставку.
func (f *Fanout) Send(ctx context.Context, incidentID uuid.UUID, recipients []models.Recipient, body string) []models.NotificationRecord {
	attemptID := uuid.New()
	records := make([]models.NotificationRecord, len(recipients))

	var g errgroup.Group
	if f.maxConcurrency > 0 {
		g.SetLimit(f.maxConcurrency)
	}
	for i, recipient := range recipients {
		g.Go(func() error {
			records[i] = f.deliver(ctx, models.Message{
				AttemptID:  attemptID,
				IncidentID: incidentID,
				Recipient:  recipient,
				Body:       body,
			})
			return nil
		})
	}
	_ = g.Wait()

	log := f.logger.WithFields(logrus.Fields{
		"service":     "notify",
		"method":      "Send",
		"incident_id": incidentID,
		"attempt_id":  attemptID,
	})
	failed := 0
	for _, r := range records {
		if r.Outcome != models.OutcomeSent {
			failed++
		}
	}
	log.WithFields(logrus.Fields{"total": len(records), "failed": failed}).Info("Notification fan-out completed")
	return records
}

func (f *Fanout) deliver(ctx context.Context, msg models.Message) models.NotificationRecord {
	rec := models.NotificationRecord{
		ID:         uuid.New(),
		AttemptID:  msg.AttemptID,
		IncidentID: msg.IncidentID,
		Recipient:  msg.Recipient,
	}

	sink, ok := f.sink(msg.Recipient.Channel)
	if !ok {
		rec.Outcome = models.OutcomeFailed
		rec.Error = fmt.Sprintf("no sink registered for channel %q", msg.Recipient.Channel)
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
		err := sink.Send(sendCtx, msg)
		cancel()
		switch {
		case err == nil:
			rec.Outcome = models.OutcomeSent
		case errors.Is(err, context.DeadlineExceeded):
			rec.Outcome = models.OutcomeTimeout
			rec.Error = err.Error()
		default:
			rec.Outcome = models.OutcomeFailed
			rec.Error = err.Error()
		}
	}
	rec.SentAt = f.now()

	if rec.Outcome != models.OutcomeSent {
		f.logger.WithFields(logrus.Fields{
			"service":     "notify",
			"incident_id": msg.IncidentID,
			"channel":     msg.Recipient.Channel,
			"outcome":     rec.Outcome,
		}).Warn(rec.Error)
	}
	if f.observer != nil {
		f.observer.ObserveNotification(msg.Recipient.Channel, rec.Outcome)
	}
	return rec
}
