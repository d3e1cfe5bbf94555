package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// querier - общее у пула и транзакции
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresIncidentStore хранит инциденты в PostgreSQL.
// Каждое изменение выполняется в транзакции под SELECT ... FOR UPDATE строки инцидента.
type PostgresIncidentStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresIncidentStore(db *pgxpool.Pool) *PostgresIncidentStore {
	return &PostgresIncidentStore{db: db, now: time.Now}
}

const incidentColumns = `
	id, subject_id, kind, priority, description, status,
	latitude, longitude, location_label, location_accuracy, location_recorded_at, has_fix,
	unassigned, degraded, degraded_reason, cancel_reason,
	created_at, first_response_at, resolved_at, cancelled_at, updated_at, version`

// Create создает новую запись об инциденте в бд
func (r *PostgresIncidentStore) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);
	`
	_, err := r.db.Exec(ctx, query, incidentArgs(incident)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: incident %s already exists", models.ErrInvalidRequest, incident.ID)
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// Get возвращает инцидент со всеми дочерними записями
func (r *PostgresIncidentStore) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	return loadIncident(ctx, r.db, id, false)
}

// Update проверяет и применяет изменения в одной транзакции
func (r *PostgresIncidentStore) Update(ctx context.Context, id uuid.UUID, u models.IncidentUpdate) (*models.Incident, error) {
	var result *models.Incident
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		incident, err := loadIncident(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := incident.ApplyUpdate(u, r.now()); err != nil {
			return err
		}
		if u.Location != nil {
			if err := insertLocation(ctx, tx, id, *u.Location); err != nil {
				return err
			}
		}
		if err := saveIncident(ctx, tx, incident); err != nil {
			return err
		}
		result = incident
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AppendNotification дописывает запись о доставке, на закрытом инциденте - ErrStaleIncident
func (r *PostgresIncidentStore) AppendNotification(ctx context.Context, id uuid.UUID, rec models.NotificationRecord) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockActive(ctx, tx, id); err != nil {
			return err
		}
		query := `
			INSERT INTO incident_notifications
				(id, attempt_id, incident_id, recipient_name, channel, address, emergency_service, outcome, error, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
		`
		_, err := tx.Exec(ctx, query,
			rec.ID, rec.AttemptID, id,
			rec.Recipient.Name, rec.Recipient.Channel, rec.Recipient.Address, rec.Recipient.EmergencyService,
			rec.Outcome, rec.Error, rec.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append notification: %w", err)
		}
		return bumpVersion(ctx, tx, id, r.now())
	})
}

// AppendResponder закрепляет экипаж, повторная запись игнорируется
func (r *PostgresIncidentStore) AppendResponder(ctx context.Context, id uuid.UUID, a models.AssignedResponder) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockActive(ctx, tx, id); err != nil {
			return err
		}
		query := `
			INSERT INTO incident_responders (incident_id, responder_id, type, estimated_arrival_minutes, assigned_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (incident_id, responder_id) DO NOTHING;
		`
		cmdTag, err := tx.Exec(ctx, query, id, a.ResponderID, a.Type, a.EstimatedArrivalMinutes, a.AssignedAt)
		if err != nil {
			return fmt.Errorf("failed to append responder: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return nil
		}
		return bumpVersion(ctx, tx, id, r.now())
	})
}

// AppendAudit пишет в журнал, в том числе для закрытых инцидентов
func (r *PostgresIncidentStore) AppendAudit(ctx context.Context, id uuid.UUID, entry models.AuditEntry) error {
	if entry.At.IsZero() {
		entry.At = r.now()
	}
	query := `
		INSERT INTO incident_audit (incident_id, at, step, message)
		SELECT id, $2, $3, $4 FROM incidents WHERE id = $1;
	`
	cmdTag, err := r.db.Exec(ctx, query, id, entry.At, entry.Step, entry.Message)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// List возвращает инциденты по фильтру, новые первыми
func (r *PostgresIncidentStore) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	filter = filter.Normalize()
	query := `
		SELECT id FROM incidents
		WHERE ($1 = '' OR subject_id = $1)
			AND ($2 = '' OR status = $2)
			AND (NOT $3 OR degraded)
		ORDER BY created_at DESC
		LIMIT $4;
	`
	rows, err := r.db.Query(ctx, query, filter.SubjectID, string(filter.Status), filter.DegradedOnly, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan incident ids: %w", err)
	}

	incidents := make([]*models.Incident, 0, len(ids))
	for _, id := range ids {
		incident, err := loadIncident(ctx, r.db, id, false)
		if err != nil {
			// инцидент мог исчезнуть между запросами
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, nil
}

func (r *PostgresIncidentStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockActive блокирует строку инцидента и проверяет, что он еще не закрыт
func lockActive(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var status models.Status
	err := tx.QueryRow(ctx, `SELECT status FROM incidents WHERE id = $1 FOR UPDATE;`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to lock incident: %w", err)
	}
	if status.Terminal() {
		return fmt.Errorf("incident %s is %s: %w", id, status, models.ErrStaleIncident)
	}
	return nil
}

func bumpVersion(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE incidents SET version = version + 1, updated_at = $2 WHERE id = $1;`, id, now)
	if err != nil {
		return fmt.Errorf("failed to bump incident version: %w", err)
	}
	return nil
}

func incidentArgs(i *models.Incident) []any {
	return []any{
		i.ID, i.SubjectID, i.Kind, i.Priority, i.Description, i.Status,
		i.Location.Latitude, i.Location.Longitude, i.Location.Label, i.Location.Accuracy, nullTime(i.Location.RecordedAt), i.HasFix,
		i.Unassigned, i.Degraded, i.DegradedReason, i.CancelReason,
		i.CreatedAt, i.FirstResponseAt, i.ResolvedAt, i.CancelledAt, i.UpdatedAt, i.Version,
	}
}

func saveIncident(ctx context.Context, tx pgx.Tx, i *models.Incident) error {
	query := `
		UPDATE incidents SET
			priority = $2,
			status = $3,
			latitude = $4,
			longitude = $5,
			location_label = $6,
			location_accuracy = $7,
			location_recorded_at = $8,
			has_fix = $9,
			unassigned = $10,
			degraded = $11,
			degraded_reason = $12,
			cancel_reason = $13,
			first_response_at = $14,
			resolved_at = $15,
			cancelled_at = $16,
			updated_at = $17,
			version = $18
		WHERE id = $1;
	`
	cmdTag, err := tx.Exec(ctx, query,
		i.ID, i.Priority, i.Status,
		i.Location.Latitude, i.Location.Longitude, i.Location.Label, i.Location.Accuracy, nullTime(i.Location.RecordedAt), i.HasFix,
		i.Unassigned, i.Degraded, i.DegradedReason, i.CancelReason,
		i.FirstResponseAt, i.ResolvedAt, i.CancelledAt, i.UpdatedAt, i.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s: %w", i.ID, models.ErrNotFound)
	}
	return nil
}

func insertLocation(ctx context.Context, tx pgx.Tx, id uuid.UUID, l models.Location) error {
	query := `
		INSERT INTO incident_locations (incident_id, latitude, longitude, label, accuracy, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	if _, err := tx.Exec(ctx, query, id, l.Latitude, l.Longitude, l.Label, l.Accuracy, l.RecordedAt); err != nil {
		return fmt.Errorf("failed to save location fix: %w", err)
	}
	return nil
}

// loadIncident читает инцидент и дочерние таблицы; forUpdate блокирует строку до конца транзакции
func loadIncident(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	i := &models.Incident{}
	var recordedAt *time.Time
	err := q.QueryRow(ctx, query, id).Scan(
		&i.ID, &i.SubjectID, &i.Kind, &i.Priority, &i.Description, &i.Status,
		&i.Location.Latitude, &i.Location.Longitude, &i.Location.Label, &i.Location.Accuracy, &recordedAt, &i.HasFix,
		&i.Unassigned, &i.Degraded, &i.DegradedReason, &i.CancelReason,
		&i.CreatedAt, &i.FirstResponseAt, &i.ResolvedAt, &i.CancelledAt, &i.UpdatedAt, &i.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	if recordedAt != nil {
		i.Location.RecordedAt = *recordedAt
	}

	if i.LocationHistory, err = loadLocations(ctx, q, id); err != nil {
		return nil, err
	}
	if i.Responders, err = loadResponders(ctx, q, id); err != nil {
		return nil, err
	}
	if i.Notifications, err = loadNotifications(ctx, q, id); err != nil {
		return nil, err
	}
	if i.Audit, err = loadAudit(ctx, q, id); err != nil {
		return nil, err
	}
	return i, nil
}

func loadLocations(ctx context.Context, q querier, id uuid.UUID) ([]models.Location, error) {
	rows, err := q.Query(ctx, `
		SELECT latitude, longitude, label, accuracy, recorded_at
		FROM incident_locations WHERE incident_id = $1 ORDER BY id;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load location history: %w", err)
	}
	defer rows.Close()

	locations := make([]models.Location, 0)
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.Latitude, &l.Longitude, &l.Label, &l.Accuracy, &l.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error location iteration: %w", err)
	}
	return locations, nil
}

func loadResponders(ctx context.Context, q querier, id uuid.UUID) ([]models.AssignedResponder, error) {
	rows, err := q.Query(ctx, `
		SELECT responder_id, type, estimated_arrival_minutes, assigned_at
		FROM incident_responders WHERE incident_id = $1 ORDER BY assigned_at, responder_id;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load responders: %w", err)
	}
	defer rows.Close()

	responders := make([]models.AssignedResponder, 0)
	for rows.Next() {
		var a models.AssignedResponder
		if err := rows.Scan(&a.ResponderID, &a.Type, &a.EstimatedArrivalMinutes, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan responder row: %w", err)
		}
		responders = append(responders, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error responder iteration: %w", err)
	}
	return responders, nil
}

func loadNotifications(ctx context.Context, q querier, id uuid.UUID) ([]models.NotificationRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, attempt_id, incident_id, recipient_name, channel, address, emergency_service, outcome, error, sent_at
		FROM incident_notifications WHERE incident_id = $1 ORDER BY sent_at, id;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	defer rows.Close()

	records := make([]models.NotificationRecord, 0)
	for rows.Next() {
		var rec models.NotificationRecord
		err := rows.Scan(
			&rec.ID, &rec.AttemptID, &rec.IncidentID,
			&rec.Recipient.Name, &rec.Recipient.Channel, &rec.Recipient.Address, &rec.Recipient.EmergencyService,
			&rec.Outcome, &rec.Error, &rec.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error notification iteration: %w", err)
	}
	return records, nil
}

func loadAudit(ctx context.Context, q querier, id uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := q.Query(ctx, `SELECT at, step, message FROM incident_audit WHERE incident_id = $1 ORDER BY id;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.At, &e.Step, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error audit iteration: %w", err)
	}
	return entries, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
