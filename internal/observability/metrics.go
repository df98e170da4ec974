package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	Rounds             *prometheus.CounterVec
	Turns              *prometheus.CounterVec
	EnrichmentFailures prometheus.Counter
	SentimentLabels    *prometheus.CounterVec
	AgentLatency       *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active discussion sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream errors by provider and kind.",
		}, []string{"provider", "kind"}),
		Rounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Discussion rounds by outcome.",
		}, []string{"outcome"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Appended turns by persona.",
		}, []string{"persona"}),
		EnrichmentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_failures_total",
			Help:      "Topic context fetches that fell back to empty context.",
		}),
		SentimentLabels: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_labels_total",
			Help:      "Scored turns by sentiment label.",
		}, []string{"label"}),
		AgentLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_call_latency_ms",
			Help:      "Agent runtime call latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"result_type", "outcome"}),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) Round(outcome string) {
	if m == nil {
		return
	}
	m.Rounds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Turn(persona, label string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(persona).Inc()
	m.SentimentLabels.WithLabelValues(label).Inc()
}

func (m *Metrics) EnrichmentFailure() {
	if m == nil {
		return
	}
	m.EnrichmentFailures.Inc()
}

func (m *Metrics) ObserveAgentCall(resultType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AgentLatency.WithLabelValues(resultType, outcome).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
