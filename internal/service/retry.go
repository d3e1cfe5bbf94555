package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// withStoreRetry повторяет запись в хранилище с экспоненциальной задержкой.
// Ошибки предметной области не повторяются. После исчерпания попыток - ErrPipelineDegraded.
func (o *Orchestrator) withStoreRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	maxAttempts := o.cfg.StoreMaxAttempts
	delay := o.cfg.StoreRetryBaseDelay

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}
		o.logger.WithFields(logrus.Fields{
			"service": "emergency",
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Warnf("Store operation failed. Retrying in %v", delay)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("service: %s failed after %d attempts: %w: %w", op, maxAttempts, models.ErrPipelineDegraded, err)
}

// retryable - временный сбой хранилища, а не отказ по правилам предметной области
func retryable(err error) bool {
	switch {
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrStaleIncident),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrTimestampImmutable),
		errors.Is(err, models.ErrNotAvailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
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
