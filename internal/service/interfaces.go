package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/events"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mocks

// IncidentStore определяет контракт хранилища инцидентов.
// Update и Append* обязаны отказывать закрытому инциденту (ErrStaleIncident).
type IncidentStore interface {
	Create(ctx context.Context, incident *models.Incident) error
	Get(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	Update(ctx context.Context, id uuid.UUID, u models.IncidentUpdate) (*models.Incident, error)
	AppendNotification(ctx context.Context, id uuid.UUID, rec models.NotificationRecord) error
	AppendResponder(ctx context.Context, id uuid.UUID, r models.AssignedResponder) error
	AppendAudit(ctx context.Context, id uuid.UUID, entry models.AuditEntry) error
	List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
}

// ResponderDirectory - справочник экипажей, единственный владелец их доступности
type ResponderDirectory interface {
	Query(ctx context.Context, center models.Point, radiusKm float64, rtype *models.ResponderType) ([]models.Candidate, error)
	Assign(ctx context.Context, responderID string, incidentID uuid.UUID) error
	Release(ctx context.Context, responderID string, incidentID uuid.UUID) error
	Get(ctx context.Context, responderID string) (models.Responder, error)
	EstimateArrival(ctx context.Context, responderID string, to models.Point) (float64, error)
}

// NotificationFanout рассылает оповещение всем получателям, одна запись на получателя
type NotificationFanout interface {
	Send(ctx context.Context, incidentID uuid.UUID, recipients []models.Recipient, body string) []models.NotificationRecord
}

type LocationResolver interface {
	Resolve(ctx context.Context, hint *models.LocationHint) (models.Location, error)
}

// ContactBook - экстренные контакты туриста
type ContactBook interface {
	Contacts(ctx context.Context, subjectID string) ([]models.Recipient, error)
}

// IdentityResolver проверяет токен участника и возвращает личность с ролью
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// SnapshotCache - кэш снимков для опроса статуса, (nil, nil) - промах
type SnapshotCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.IncidentSnapshot, error)
	Set(ctx context.Context, snapshot *models.IncidentSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// TriggerRequest - входные данные экстренного вызова
type TriggerRequest struct {
	SubjectID   string
	Kind        models.Kind
	Location    *models.LocationHint
	Description string
	Priority    models.Priority
}

// EmergencyService - публичные операции оркестратора
type EmergencyService interface {
	Trigger(ctx context.Context, req TriggerRequest) (uuid.UUID, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (models.Status, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next models.Status, actorToken string) (models.Status, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*models.IncidentSnapshot, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, hint models.LocationHint) (*models.IncidentSnapshot, error)
	Escalate(ctx context.Context, id uuid.UUID, priority models.Priority) (*models.IncidentSnapshot, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.IncidentSnapshot, error)
	NearbyResponders(ctx context.Context, center models.Point, radiusKm float64, rtype *models.ResponderType) ([]models.Candidate, error)
	DegradedIncidents(ctx context.Context) ([]models.DegradedIncident, error)
}
