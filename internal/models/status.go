package models

// Status - состояние инцидента
type Status string

const (
	StatusCreated     Status = "created"
	StatusLocating    Status = "locating"
	StatusNotifying   Status = "notifying"
	StatusDispatching Status = "dispatching"
	StatusResponding  Status = "responding"
	StatusResolved    Status = "resolved"
	StatusCancelled   Status = "cancelled"
)

// forwardTransitions описывает единственный допустимый следующий шаг для каждого состояния.
// Отмена обрабатывается отдельно: она доступна из любого нетерминального состояния.
var forwardTransitions = map[Status]Status{
	StatusCreated:     StatusLocating,
	StatusLocating:    StatusNotifying,
	StatusNotifying:   StatusDispatching,
	StatusDispatching: StatusResponding,
	StatusResponding:  StatusResolved,
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusLocating, StatusNotifying, StatusDispatching,
		StatusResponding, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// Terminal сообщает, что инцидент больше нельзя изменять
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// CanTransitionTo проверяет переход без пропуска состояний
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return forwardTransitions[s] == next
}

// Kind - тип экстренного вызова
type Kind string

const (
	KindPanic           Kind = "panic"
	KindMedical         Kind = "medical"
	KindSecurity        Kind = "security"
	KindNaturalDisaster Kind = "natural-disaster"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPanic, KindMedical, KindSecurity, KindNaturalDisaster:
		return true
	}
	return false
}

// Priority - приоритет инцидента, может только повышаться
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

func (p Priority) Rank() int {
	return priorityRank[p]
}
