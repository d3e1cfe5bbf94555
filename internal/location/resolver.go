package location

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// FallbackEntry - приблизительная позиция региона
type FallbackEntry struct {
	Point models.Point
	Label string
}

// DefaultRegion используется, когда клиент не прислал ничего полезного
const DefaultRegion = "guwahati"

// DefaultFallbackTable - опорные точки северо-востока Индии
func DefaultFallbackTable() map[string]FallbackEntry {
	return map[string]FallbackEntry{
		"guwahati":  {Point: models.Point{Latitude: 26.1445, Longitude: 91.7362}, Label: "Guwahati, Assam (Approximate)"},
		"shillong":  {Point: models.Point{Latitude: 25.5788, Longitude: 91.8933}, Label: "Shillong, Meghalaya (Approximate)"},
		"kaziranga": {Point: models.Point{Latitude: 26.5775, Longitude: 93.1711}, Label: "Kaziranga, Assam (Approximate)"},
		"tawang":    {Point: models.Point{Latitude: 27.5860, Longitude: 91.8594}, Label: "Tawang, Arunachal Pradesh (Approximate)"},
	}
}

// Resolver определяет координаты инцидента по подсказке клиента и таблице запасных позиций.
// Не хранит состояния: результат зависит только от входных данных.
type Resolver struct {
	fallback      map[string]FallbackEntry
	defaultRegion string
	now           func() time.Time
}

func NewResolver(fallback map[string]FallbackEntry, defaultRegion string) *Resolver {
	if len(fallback) == 0 {
		fallback = DefaultFallbackTable()
		defaultRegion = DefaultRegion
	}
	return &Resolver{
		fallback:      fallback,
		defaultRegion: strings.ToLower(defaultRegion),
		now:           time.Now,
	}
}

// Resolve возвращает точку и уровень точности.
// Точные координаты берутся как есть, регион - из таблицы с точностью low,
// при отсутствии подсказки - регион по умолчанию, иначе ошибка.
func (r *Resolver) Resolve(ctx context.Context, hint *models.LocationHint) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	if err := hint.Validate(); err != nil {
		return models.Location{}, err
	}

	if hint != nil && hint.Point != nil {
		accuracy := hint.Accuracy
		switch {
		case accuracy != "":
		case hint.AccuracyMeters > 0:
			accuracy = models.AccuracyFromMeters(hint.AccuracyMeters)
		default:
			// устройство прислало координаты без погрешности
			accuracy = models.AccuracyMedium
		}
		label := hint.Label
		if label == "" {
			label = "Current Location"
		}
		return models.Location{
			Point:      *hint.Point,
			Label:      label,
			Accuracy:   accuracy,
			RecordedAt: r.now(),
		}, nil
	}

	region := r.defaultRegion
	if hint != nil && hint.Region != "" {
		region = strings.ToLower(strings.TrimSpace(hint.Region))
	}
	entry, ok := r.fallback[region]
	if !ok {
		return models.Location{}, fmt.Errorf("location: no fallback position for region %q", region)
	}
	return models.Location{
		Point:      entry.Point,
		Label:      entry.Label,
		Accuracy:   models.AccuracyLow,
		RecordedAt: r.now(),
	}, nil
}

// Unknown - точка, которую конвейер использует, если определить местоположение не удалось
func Unknown(now time.Time) models.Location {
	return models.Location{
		Label:      "Unknown",
		Accuracy:   models.AccuracyUnknown,
		RecordedAt: now,
	}
}
