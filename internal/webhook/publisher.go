package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	alertQueueKey      = "emergency_webhook_events"
	deadLetterQueueKey = "emergency_webhook_dead"
	deadLetterMaxLen   = 1000
)

// AlertEvent - оповещение экстренной службы, которое воркер доставит на WEBHOOK_URL
type AlertEvent struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	Recipient  string    `json:"recipient"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher ставит оповещение в очередь доставки
type Publisher interface {
	Publish(ctx context.Context, event AlertEvent) error
}

// RedisQueue - очередь оповещений на списках Redis.
// Publish кладет в голову, Pop забирает с хвоста.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Publish(ctx context.Context, event AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: could not marshal alert event: %w", err)
	}
	if err := q.client.LPush(ctx, alertQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("webhook: could not enqueue alert event: %w", err)
	}
	return nil
}

// Pop ждет событие не дольше timeout. Пустая строка без ошибки - очередь пуста.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.client.BRPop(ctx, timeout, alertQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("webhook: could not pop alert event: %w", err)
	}
	// result[0] - ключ, result[1] - значение
	return result[1], nil
}

// DeadLetter сохраняет недоставленное оповещение для ручного разбора
func (q *RedisQueue) DeadLetter(ctx context.Context, payload string) error {
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, deadLetterQueueKey, payload)
	pipe.LTrim(ctx, deadLetterQueueKey, 0, deadLetterMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("webhook: could not store dead letter: %w", err)
	}
	return nil
}
