package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeNoSpeech  = "no_speech"
	OutcomeTooShort  = "too_short"
	OutcomeDecode    = "decode_failed"
	OutcomeFailed    = "failed"
	OutcomeTextOnly  = "text_only"
)

// Pipeline phases
const (
	PhaseDecode    = "decode"
	PhaseSTT       = "stt"
	PhaseReasoning = "reasoning"
	PhasePersist   = "persist"
	PhaseTTS       = "tts"
	PhaseTotal     = "total"
)

// Metrics voice service metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal         *prometheus.CounterVec
	PhaseSeconds       *prometheus.HistogramVec
	ActiveSessions     prometheus.Gauge
	SessionsTotal      prometheus.Counter
	DroppedTriggers    prometheus.Counter
	CollaboratorErrors *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lingvoice"
	}
	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Voice turns by outcome",
		},
		[]string{"outcome"},
	)
	phaseSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each pipeline phase",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"phase"},
	)
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Connected voice sessions",
	})
	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Voice sessions accepted",
	})
	droppedTriggers := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_triggers_total",
		Help:      "Triggers dropped because a turn was already running",
	})
	collaboratorErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Failed STT, TTS, reasoning and store calls",
		},
		[]string{"collaborator"},
	)

	registry.MustRegister(
		turnsTotal,
		phaseSeconds,
		activeSessions,
		sessionsTotal,
		droppedTriggers,
		collaboratorErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:           registry,
		TurnsTotal:         turnsTotal,
		PhaseSeconds:       phaseSeconds,
		ActiveSessions:     activeSessions,
		SessionsTotal:      sessionsTotal,
		DroppedTriggers:    droppedTriggers,
		CollaboratorErrors: collaboratorErrors,
	}
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTurn(outcome string) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.PhaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) RecordDropped() {
	m.DroppedTriggers.Inc()
}

func (m *Metrics) RecordCollaboratorError(name string) {
	m.CollaboratorErrors.WithLabelValues(name).Inc()
}

func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
	m.SessionsTotal.Inc()
}

func (m *Metrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

// SetActiveSessions resyncs the gauge from the registry count.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}
