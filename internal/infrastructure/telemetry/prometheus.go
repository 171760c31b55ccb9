package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var (
	_ output.AttemptReporter = (*Metrics)(nil)
	_ output.TelemetrySink   = (*Metrics)(nil)
)

// Metrics exports attempt outcomes, state transitions and fetch calls.
type Metrics struct {
	registry        *prometheus.Registry
	attempts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	transitions     *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "context_injector",
			Name:      "attempts_total",
			Help:      "Finished submission attempts by status and abort reason.",
		}, []string{"status", "reason"}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "context_injector",
			Name:      "attempt_duration_seconds",
			Help:      "Time from interception to completion or abort.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "context_injector",
			Name:      "state_transitions_total",
			Help:      "Interception controller state transitions.",
		}, []string{"from", "to"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "context_injector",
			Name:      "fetch_requests_total",
			Help:      "Context API calls by status and error kind.",
		}, []string{"backend", "status", "kind"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "context_injector",
			Name:      "fetch_duration_seconds",
			Help:      "Context API network time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	m.registry.MustRegister(m.attempts, m.attemptDuration, m.transitions, m.fetches, m.fetchDuration)
	return m
}

func (m *Metrics) StateChanged(attemptID int64, from, to entity.EngineState) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) AttemptFinished(a entity.SubmissionAttempt) {
	m.attempts.WithLabelValues(string(a.Status), string(a.AbortReason)).Inc()
	m.attemptDuration.Observe(a.Duration().Seconds())
}

func (m *Metrics) Append(ctx context.Context, rec entity.APIRequestRecord) error {
	m.fetches.WithLabelValues(rec.Backend, string(rec.Status), rec.ErrorKind).Inc()
	m.fetchDuration.WithLabelValues(rec.Backend).Observe(rec.NetworkDuration.Seconds())
	return nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Reporters fans attempt notifications out to several reporters.
type Reporters []output.AttemptReporter

func (r Reporters) StateChanged(attemptID int64, from, to entity.EngineState) {
	for _, rep := range r {
		rep.StateChanged(attemptID, from, to)
	}
}

func (r Reporters) AttemptFinished(a entity.SubmissionAttempt) {
	for _, rep := range r {
		rep.AttemptFinished(a)
	}
}
