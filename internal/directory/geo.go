package directory

import (
	"math"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

const earthRadiusKm = 6371.0088

// GreatCircleKm - расстояние по поверхности сферы (формула гаверсинусов).
// Разница в градусах не годится: градус долготы сжимается к полюсам.
func GreatCircleKm(a, b models.Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// SpeedTable - средняя скорость движения по типу экипажа, км/ч
type SpeedTable map[models.ResponderType]float64

// DefaultSpeeds - городской трафик северо-востока
func DefaultSpeeds() SpeedTable {
	return SpeedTable{
		models.ResponderPolice:  40,
		models.ResponderMedical: 45,
		models.ResponderFire:    35,
		models.ResponderRescue:  30,
	}
}

const fallbackSpeedKmh = 30

// ETAMinutes - оценка времени прибытия, округленная до десятых
func (s SpeedTable) ETAMinutes(t models.ResponderType, distanceKm float64) float64 {
	speed, ok := s[t]
	if !ok || speed <= 0 {
		speed = fallbackSpeedKmh
	}
	return math.Round(distanceKm/speed*60*10) / 10
}

// MergeSpeeds накладывает переопределения из конфигурации на скорости по умолчанию
func MergeSpeeds(overrides map[string]float64) SpeedTable {
	speeds := DefaultSpeeds()
	for name, kmh := range overrides {
		t := models.ResponderType(name)
		if t.Valid() && kmh > 0 {
			speeds[t] = kmh
		}
	}
	return speeds
}
