package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// MemoryIncidentStore хранит инциденты в памяти процесса.
// Все изменения одного инцидента сериализуются общим мьютексом, наружу отдаются только копии.
type MemoryIncidentStore struct {
	mu        sync.Mutex
	incidents map[uuid.UUID]*models.Incident
	now       func() time.Time
}

func NewMemoryIncidentStore() *MemoryIncidentStore {
	return &MemoryIncidentStore{
		incidents: make(map[uuid.UUID]*models.Incident),
		now:       time.Now,
	}
}

// Create сохраняет новый инцидент
func (s *MemoryIncidentStore) Create(ctx context.Context, incident *models.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.incidents[incident.ID]; exists {
		return fmt.Errorf("%w: incident %s already exists", models.ErrInvalidRequest, incident.ID)
	}
	s.incidents[incident.ID] = incident.Clone()
	return nil
}

// Get возвращает копию инцидента
func (s *MemoryIncidentStore) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	return incident.Clone(), nil
}

// Update атомарно проверяет и применяет изменения. Возвращает состояние после записи.
func (s *MemoryIncidentStore) Update(ctx context.Context, id uuid.UUID, u models.IncidentUpdate) (*models.Incident, error) {
	return s.mutate(ctx, id, func(i *models.Incident, now time.Time) error {
		return i.ApplyUpdate(u, now)
	})
}

// AppendNotification дописывает запись о доставке. На закрытом инциденте - ErrStaleIncident.
func (s *MemoryIncidentStore) AppendNotification(ctx context.Context, id uuid.UUID, rec models.NotificationRecord) error {
	_, err := s.mutate(ctx, id, func(i *models.Incident, now time.Time) error {
		return i.AddNotification(rec, now)
	})
	return err
}

// AppendResponder закрепляет экипаж. Повторная запись того же экипажа ничего не меняет.
func (s *MemoryIncidentStore) AppendResponder(ctx context.Context, id uuid.UUID, r models.AssignedResponder) error {
	_, err := s.mutate(ctx, id, func(i *models.Incident, now time.Time) error {
		return i.AddResponder(r, now)
	})
	return err
}

// AppendAudit пишет в журнал и для закрытых инцидентов
func (s *MemoryIncidentStore) AppendAudit(ctx context.Context, id uuid.UUID, entry models.AuditEntry) error {
	_, err := s.mutate(ctx, id, func(i *models.Incident, now time.Time) error {
		if entry.At.IsZero() {
			entry.At = now
		}
		i.Audit = append(i.Audit, entry)
		return nil
	})
	return err
}

// List возвращает инциденты по фильтру, новые первыми
func (s *MemoryIncidentStore) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	s.mu.Lock()
	result := make([]*models.Incident, 0)
	for _, incident := range s.incidents {
		if filter.Matches(incident) {
			result = append(result, incident.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(result, func(a, b int) bool {
		if result[a].CreatedAt.Equal(result[b].CreatedAt) {
			return result[a].ID.String() < result[b].ID.String()
		}
		return result[a].CreatedAt.After(result[b].CreatedAt)
	})
	if len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// mutate меняет копию и подменяет запись только при успехе, поэтому неудачная операция ничего не оставляет
func (s *MemoryIncidentStore) mutate(ctx context.Context, id uuid.UUID, fn func(*models.Incident, time.Time) error) (*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next, s.now()); err != nil {
		return nil, err
	}
	s.incidents[id] = next
	return next.Clone(), nil
}
