package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// PostgresRoster читает список экипажей, которым справочник засеивается при старте
type PostgresRoster struct {
	db *pgxpool.Pool
}

func NewPostgresRoster(db *pgxpool.Pool) *PostgresRoster {
	return &PostgresRoster{db: db}
}

// Load возвращает экипажи; offline-экипажи попадают в справочник, но не в поиск
func (r *PostgresRoster) Load(ctx context.Context) ([]models.Responder, error) {
	query := `
		SELECT id, name, type, latitude, longitude, online, updated_at
		FROM responders
		ORDER BY id;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load responder roster: %w", err)
	}
	defer rows.Close()

	roster := make([]models.Responder, 0)
	for rows.Next() {
		var (
			resp   models.Responder
			online bool
		)
		if err := rows.Scan(&resp.ID, &resp.Name, &resp.Type, &resp.Position.Latitude, &resp.Position.Longitude, &online, &resp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan responder row: %w", err)
		}
		resp.Status = models.AvailabilityAvailable
		if !online {
			resp.Status = models.AvailabilityOffline
		}
		roster = append(roster, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error roster iteration: %w", err)
	}
	return roster, nil
}
