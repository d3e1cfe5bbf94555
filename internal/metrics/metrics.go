package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

// Metrics - метрики конвейера экстренных вызовов
type Metrics struct {
	IncidentsTriggered  *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	NotificationResults *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	DegradedIncidents   *prometheus.CounterVec
	UnassignedIncidents prometheus.Counter
	ResponderConflicts  prometheus.Counter
}

// New создает и регистрирует метрики в reg (prometheus.DefaultRegisterer в проде).
// Методы допускают nil-получатель: сервис без метрик просто ничего не считает.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IncidentsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alert_incidents_triggered_total",
			Help: "Total number of emergency incidents triggered, by kind",
		}, []string{"kind"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alert_status_transitions_total",
			Help: "Total number of incident status transitions, by target status",
		}, []string{"status"}),
		NotificationResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alert_notifications_total",
			Help: "Notification delivery attempts, by channel and outcome",
		}, []string{"channel", "outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safety_alert_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		DegradedIncidents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alert_degraded_total",
			Help: "Incidents marked degraded, by failing stage",
		}, []string{"stage"}),
		UnassignedIncidents: f.NewCounter(prometheus.CounterOpts{
			Name: "safety_alert_unassigned_total",
			Help: "Incidents left without responders after all radius expansions",
		}),
		ResponderConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "safety_alert_responder_conflicts_total",
			Help: "Assignment attempts that lost the race for a responder",
		}),
	}
}

func (m *Metrics) IncTriggered(kind models.Kind) {
	if m == nil {
		return
	}
	m.IncidentsTriggered.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ObserveTransition(status models.Status) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(string(status)).Inc()
}

// ObserveNotification реализует notify.Observer
func (m *Metrics) ObserveNotification(channel models.Channel, outcome models.Outcome) {
	if m == nil {
		return
	}
	m.NotificationResults.WithLabelValues(string(channel), string(outcome)).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) IncDegraded(stage string) {
	if m == nil {
		return
	}
	m.DegradedIncidents.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncUnassigned() {
	if m == nil {
		return
	}
	m.UnassignedIncidents.Inc()
}

func (m *Metrics) IncResponderConflict() {
	if m == nil {
		return
	}
	m.ResponderConflicts.Inc()
}
