package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// PostgresContactBook читает экстренные контакты туриста из таблицы emergency_contacts
type PostgresContactBook struct {
	db *pgxpool.Pool
}

func NewPostgresContactBook(db *pgxpool.Pool) *PostgresContactBook {
	return &PostgresContactBook{db: db}
}

func (b *PostgresContactBook) Contacts(ctx context.Context, subjectID string) ([]models.Recipient, error) {
	query := `
		SELECT name, channel, address
		FROM emergency_contacts
		WHERE subject_id = $1
		ORDER BY id;
	`
	rows, err := b.db.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load emergency contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Recipient, 0)
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.Name, &r.Channel, &r.Address); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error contact iteration: %w", err)
	}
	return contacts, nil
}

// StaticContactBook - контакты в памяти, для режима без базы и для тестов
type StaticContactBook struct {
	mu       sync.RWMutex
	contacts map[string][]models.Recipient
}

func NewStaticContactBook() *StaticContactBook {
	return &StaticContactBook{contacts: make(map[string][]models.Recipient)}
}

// Put заменяет список контактов туриста
func (b *StaticContactBook) Put(subjectID string, contacts []models.Recipient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contacts[subjectID] = append([]models.Recipient(nil), contacts...)
}

func (b *StaticContactBook) Contacts(ctx context.Context, subjectID string) ([]models.Recipient, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Recipient{}, b.contacts[subjectID]...), nil
}
