package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Incident - один экстренный случай от вызова до закрытия или отмены
type Incident struct {
	ID              uuid.UUID            `json:"id"`
	SubjectID       string               `json:"subject_id"`
	Kind            Kind                 `json:"kind"`
	Priority        Priority             `json:"priority"`
	Description     string               `json:"description,omitempty"`
	Status          Status               `json:"status"`
	Location        Location             `json:"location"`
	HasFix          bool                 `json:"has_fix"`
	LocationHistory []Location           `json:"location_history,omitempty"`
	Responders      []AssignedResponder  `json:"responders"`
	Notifications   []NotificationRecord `json:"notifications"`
	Audit           []AuditEntry         `json:"audit"`
	Unassigned      bool                 `json:"unassigned"`
	Degraded        bool                 `json:"degraded"`
	DegradedReason  string               `json:"degraded_reason,omitempty"`
	CancelReason    string               `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	FirstResponseAt *time.Time           `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Version         int64                `json:"version"`
}

// AuditEntry - запись журнала аудита инцидента. Журнал пополняется и после закрытия инцидента.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
}

// IncidentUpdate - набор изменяемых полей. nil означает "не трогать".
type IncidentUpdate struct {
	Status          *Status
	Priority        *Priority
	Location        *Location
	Unassigned      *bool
	Degraded        *bool
	DegradedReason  *string
	CancelReason    *string
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	CancelledAt     *time.Time
	// ExpectedVersion включает оптимистичную блокировку, 0 - без проверки
	ExpectedVersion int64
}

// NewIncident создает инцидент в состоянии created
func NewIncident(subjectID string, kind Kind, priority Priority, description string, now time.Time) *Incident {
	return &Incident{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		Kind:          kind,
		Priority:      priority,
		Description:   description,
		Status:        StatusCreated,
		Location:      Location{Accuracy: AccuracyUnknown},
		Responders:    []AssignedResponder{},
		Notifications: []NotificationRecord{},
		Audit:         []AuditEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
}

// ApplyUpdate проверяет и применяет изменения. При ошибке инцидент не меняется.
func (i *Incident) ApplyUpdate(u IncidentUpdate, now time.Time) error {
	if i.Status.Terminal() {
		return fmt.Errorf("incident %s is %s: %w", i.ID, i.Status, ErrStaleIncident)
	}
	if u.ExpectedVersion != 0 && u.ExpectedVersion != i.Version {
		return fmt.Errorf("incident %s at version %d, expected %d: %w", i.ID, i.Version, u.ExpectedVersion, ErrVersionConflict)
	}

	next := i.Status
	if u.Status != nil && *u.Status != i.Status {
		if !i.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%s -> %s: %w", i.Status, *u.Status, ErrInvalidTransition)
		}
		next = *u.Status
	}
	if u.Priority != nil {
		if !u.Priority.Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, *u.Priority)
		}
		if u.Priority.Rank() < i.Priority.Rank() {
			return fmt.Errorf("%s -> %s: %w", i.Priority, *u.Priority, ErrPriorityDowngrade)
		}
	}
	if err := checkTimestamp("first_response", i.FirstResponseAt, u.FirstResponseAt, next == StatusResponding && i.Status != next); err != nil {
		return err
	}
	if err := checkTimestamp("resolved", i.ResolvedAt, u.ResolvedAt, next == StatusResolved); err != nil {
		return err
	}
	if err := checkTimestamp("cancelled", i.CancelledAt, u.CancelledAt, next == StatusCancelled); err != nil {
		return err
	}

	if next != i.Status {
		switch next {
		case StatusResponding:
			i.FirstResponseAt = stamp(u.FirstResponseAt, now)
		case StatusResolved:
			i.ResolvedAt = stamp(u.ResolvedAt, now)
		case StatusCancelled:
			i.CancelledAt = stamp(u.CancelledAt, now)
		}
		i.Status = next
	}
	if u.Priority != nil {
		i.Priority = *u.Priority
	}
	if u.Location != nil {
		i.ApplyFix(*u.Location)
	}
	if u.Unassigned != nil {
		i.Unassigned = *u.Unassigned
	}
	if u.Degraded != nil {
		i.Degraded = *u.Degraded
	}
	if u.DegradedReason != nil {
		i.DegradedReason = *u.DegradedReason
	}
	if u.CancelReason != nil {
		i.CancelReason = *u.CancelReason
	}
	i.Version++
	i.UpdatedAt = now
	return nil
}

// checkTimestamp: метка пишется один раз и только на переходе, который ее определяет
func checkTimestamp(name string, current, incoming *time.Time, definingTransition bool) error {
	if incoming == nil {
		return nil
	}
	if current != nil {
		return fmt.Errorf("%s: %w", name, ErrTimestampImmutable)
	}
	if !definingTransition {
		return fmt.Errorf("%w: %s timestamp set outside its transition", ErrInvalidRequest, name)
	}
	return nil
}

func stamp(explicit *time.Time, now time.Time) *time.Time {
	if explicit != nil {
		t := *explicit
		return &t
	}
	t := now
	return &t
}

// ApplyFix добавляет координаты в историю и делает их активными, только если они строго точнее
// текущих или активных координат еще нет. Возвращает true, если активная точка заменена.
func (i *Incident) ApplyFix(fix Location) bool {
	i.LocationHistory = append(i.LocationHistory, fix)
	if i.HasFix && fix.Accuracy.Rank() <= i.Location.Accuracy.Rank() {
		return false
	}
	i.Location = fix
	i.HasFix = true
	return true
}

// AddResponder добавляет экипаж в список, повторная запись того же экипажа игнорируется
func (i *Incident) AddResponder(r AssignedResponder, now time.Time) error {
	if i.Status.Terminal() {
		return fmt.Errorf("incident %s is %s: %w", i.ID, i.Status, ErrStaleIncident)
	}
	if i.HasResponder(r.ResponderID) {
		return nil
	}
	i.Responders = append(i.Responders, r)
	i.Version++
	i.UpdatedAt = now
	return nil
}

// AddNotification дописывает запись о доставке
func (i *Incident) AddNotification(rec NotificationRecord, now time.Time) error {
	if i.Status.Terminal() {
		return fmt.Errorf("incident %s is %s: %w", i.ID, i.Status, ErrStaleIncident)
	}
	i.Notifications = append(i.Notifications, rec)
	i.Version++
	i.UpdatedAt = now
	return nil
}

func (i *Incident) HasResponder(responderID string) bool {
	for _, r := range i.Responders {
		if r.ResponderID == responderID {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию, чтобы хранилище не отдавало наружу свое состояние
func (i *Incident) Clone() *Incident {
	c := *i
	c.LocationHistory = append([]Location(nil), i.LocationHistory...)
	c.Responders = append([]AssignedResponder{}, i.Responders...)
	c.Notifications = append([]NotificationRecord{}, i.Notifications...)
	c.Audit = append([]AuditEntry{}, i.Audit...)
	c.FirstResponseAt = copyTime(i.FirstResponseAt)
	c.ResolvedAt = copyTime(i.ResolvedAt)
	c.CancelledAt = copyTime(i.CancelledAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// IncidentFilter - параметры выборки списка инцидентов
type IncidentFilter struct {
	SubjectID    string
	Status       Status
	DegradedOnly bool // только инциденты с пометкой degraded
	Limit        int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 50
)

// Normalize приводит лимит к допустимому диапазону
func (f IncidentFilter) Normalize() IncidentFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

// Matches проверяет инцидент на соответствие фильтру (без учета лимита)
func (f IncidentFilter) Matches(i *Incident) bool {
	if f.SubjectID != "" && i.SubjectID != f.SubjectID {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.DegradedOnly && !i.Degraded {
		return false
	}
	return true
}
