package directory

import "github.com/shenikar/safety_alert_dispatch/internal/models"

// DefaultRoster - демонстрационный состав, если внешний провижининг еще ничего не загрузил
func DefaultRoster() []models.Responder {
	return []models.Responder{
		{
			ID:       "resp-001",
			Name:     "Police Station Guwahati Central",
			Type:     models.ResponderPolice,
			Position: models.Point{Latitude: 26.1445, Longitude: 91.7362},
		},
		{
			ID:       "resp-002",
			Name:     "GMCH Emergency Services",
			Type:     models.ResponderMedical,
			Position: models.Point{Latitude: 26.1395, Longitude: 91.7295},
		},
		{
			ID:       "resp-003",
			Name:     "Fire Station Paltan Bazaar",
			Type:     models.ResponderFire,
			Position: models.Point{Latitude: 26.1505, Longitude: 91.7405},
		},
		{
			ID:       "resp-004",
			Name:     "Tourist Police Shillong",
			Type:     models.ResponderPolice,
			Position: models.Point{Latitude: 25.5788, Longitude: 91.8933},
		},
	}
}
