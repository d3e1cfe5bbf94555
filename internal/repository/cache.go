package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

const defaultSnapshotTTL = 5 * time.Minute

// RedisSnapshotCache кэширует снимки состояния для частого опроса статуса.
// Любая запись в инцидент должна сбрасывать ключ через Invalidate.
type RedisSnapshotCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisSnapshotCache(redisClient *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &RedisSnapshotCache{redisClient: redisClient, ttl: ttl}
}

func snapshotKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:snapshot:%s", id.String())
}

// Get пытается получить снимок из Redis, (nil, nil) - промах
func (c *RedisSnapshotCache) Get(ctx context.Context, id uuid.UUID) (*models.IncidentSnapshot, error) {
	val, err := c.redisClient.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot from cache: %w", err)
	}

	snapshot := &models.IncidentSnapshot{}
	if err := json.Unmarshal(val, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot from cache: %w", err)
	}
	return snapshot, nil
}

// Set сохраняет снимок в Redis, ttl <= 0 - срок по умолчанию
func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot *models.IncidentSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	val, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for cache: %w", err)
	}
	if err := c.redisClient.Set(ctx, snapshotKey(snapshot.ID), val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in cache: %w", err)
	}
	return nil
}

// Invalidate удаляет снимок из Redis кэша
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.redisClient.Del(ctx, snapshotKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot cache: %w", err)
	}
	return nil
}
