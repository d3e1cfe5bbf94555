package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// Directory - единственный владелец состояния экипажей. Статус экипажа меняется
// только через Assign/Release и операции провижининга.
type Directory struct {
	mu         sync.RWMutex
	responders map[string]*models.Responder
	speeds     SpeedTable
	logger     *logrus.Logger
	now        func() time.Time
}

func NewDirectory(speeds SpeedTable, logger *logrus.Logger) *Directory {
	if len(speeds) == 0 {
		speeds = DefaultSpeeds()
	}
	return &Directory{
		responders: make(map[string]*models.Responder),
		speeds:     speeds,
		logger:     logger,
		now:        time.Now,
	}
}

// Seed загружает начальный состав. Уже известные экипажи обновляют позицию и тип,
// но текущее закрепление за инцидентом сохраняется.
func (d *Directory) Seed(roster []models.Responder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range roster {
		if r.ID == "" {
			return fmt.Errorf("directory: responder without id: %w", models.ErrInvalidRequest)
		}
		if !r.Type.Valid() {
			return fmt.Errorf("directory: responder %s has unknown type %q: %w", r.ID, r.Type, models.ErrInvalidRequest)
		}
		if err := r.Position.Validate(); err != nil {
			return fmt.Errorf("directory: responder %s: %w", r.ID, err)
		}
	}

	for _, r := range roster {
		rec := r
		if existing, ok := d.responders[r.ID]; ok && existing.Status == models.AvailabilityAssigned {
			rec.Status = existing.Status
			rec.AssignedIncident = existing.AssignedIncident
		}
		if rec.Status == "" {
			rec.Status = models.AvailabilityAvailable
		}
		rec.UpdatedAt = d.now()
		d.responders[r.ID] = &rec
	}
	d.logger.WithFields(logrus.Fields{
		"service": "directory",
		"method":  "Seed",
		"count":   len(roster),
	}).Info("Responder roster loaded")
	return nil
}

// Query возвращает свободные экипажи в радиусе от центра, отсортированные по времени прибытия и id
func (d *Directory) Query(ctx context.Context, center models.Point, radiusKm float64, rtype *models.ResponderType) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", models.ErrInvalidRequest)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	candidates := make([]models.Candidate, 0)
	for _, r := range d.responders {
		if r.Status != models.AvailabilityAvailable {
			continue
		}
		if rtype != nil && r.Type != *rtype {
			continue
		}
		dist := GreatCircleKm(center, r.Position)
		if dist > radiusKm {
			continue
		}
		candidates = append(candidates, models.Candidate{
			Responder:               *r,
			DistanceKm:              dist,
			EstimatedArrivalMinutes: d.speeds.ETAMinutes(r.Type, dist),
		})
	}
	SortByArrival(candidates)
	return candidates, nil
}

// SortByArrival - по времени прибытия, при равенстве по id
func SortByArrival(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].EstimatedArrivalMinutes != candidates[j].EstimatedArrivalMinutes {
			return candidates[i].EstimatedArrivalMinutes < candidates[j].EstimatedArrivalMinutes
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// Assign закрепляет экипаж за инцидентом. Проходит только первый compare-and-set:
// проигравший получает ErrNotAvailable и должен повторить поиск.
func (d *Directory) Assign(ctx context.Context, responderID string, incidentID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.responders[responderID]
	if !ok {
		return fmt.Errorf("directory: responder %s: %w", responderID, models.ErrNotFound)
	}
	if r.Status != models.AvailabilityAvailable {
		return fmt.Errorf("directory: responder %s is %s: %w", responderID, r.Status, models.ErrNotAvailable)
	}
	r.Status = models.AvailabilityAssigned
	r.AssignedIncident = incidentID
	r.UpdatedAt = d.now()
	return nil
}

// Release возвращает экипаж в резерв, если он все еще закреплен за incidentID.
// Повторный вызов и вызов от чужого инцидента ничего не делают.
func (d *Directory) Release(ctx context.Context, responderID string, incidentID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.responders[responderID]
	if !ok {
		return fmt.Errorf("directory: responder %s: %w", responderID, models.ErrNotFound)
	}
	if r.Status != models.AvailabilityAssigned || r.AssignedIncident != incidentID {
		return nil
	}
	r.Status = models.AvailabilityAvailable
	r.AssignedIncident = uuid.Nil
	r.UpdatedAt = d.now()
	return nil
}

// Get возвращает копию записи экипажа
func (d *Directory) Get(ctx context.Context, responderID string) (models.Responder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.responders[responderID]
	if !ok {
		return models.Responder{}, fmt.Errorf("directory: responder %s: %w", responderID, models.ErrNotFound)
	}
	return *r, nil
}

// EstimateArrival - время прибытия экипажа к точке по его текущей позиции
func (d *Directory) EstimateArrival(ctx context.Context, responderID string, to models.Point) (float64, error) {
	r, err := d.Get(ctx, responderID)
	if err != nil {
		return 0, err
	}
	return d.speeds.ETAMinutes(r.Type, GreatCircleKm(r.Position, to)), nil
}

// UpdatePosition - телеметрия экипажа
func (d *Directory) UpdatePosition(ctx context.Context, responderID string, pos models.Point) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.responders[responderID]
	if !ok {
		return fmt.Errorf("directory: responder %s: %w", responderID, models.ErrNotFound)
	}
	r.Position = pos
	r.UpdatedAt = d.now()
	return nil
}

// SetOnline переводит экипаж между offline и available. Закрепленный экипаж не трогаем.
func (d *Directory) SetOnline(ctx context.Context, responderID string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.responders[responderID]
	if !ok {
		return fmt.Errorf("directory: responder %s: %w", responderID, models.ErrNotFound)
	}
	if r.Status == models.AvailabilityAssigned {
		return fmt.Errorf("directory: responder %s is assigned: %w", responderID, models.ErrNotAvailable)
	}
	if online {
		r.Status = models.AvailabilityAvailable
	} else {
		r.Status = models.AvailabilityOffline
	}
	r.UpdatedAt = d.now()
	return nil
}
