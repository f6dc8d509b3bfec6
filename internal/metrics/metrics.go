package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the quiz collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted *prometheus.CounterVec
	Answers         *prometheus.CounterVec
	Timeouts        prometheus.Counter
	WriteFailures   *prometheus.CounterVec
}

// New registers the quiz collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_sessions_started_total",
				Help: "Quiz session start attempts by outcome",
			},
			[]string{"outcome"},
		),
		Answers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_answers_total",
				Help: "Answered questions by correctness",
			},
			[]string{"correct"},
		),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_timeouts_total",
			Help: "Questions whose countdown ran out",
		}),
		WriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_store_write_failures_total",
				Help: "Swallowed store write failures by operation",
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(m.SessionsStarted, m.Answers, m.Timeouts, m.WriteFailures)
	return m
}

func (m *Metrics) SessionStarted(outcome string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Answered(correct bool) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) TimedOut() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()
}

func (m *Metrics) WriteFailed(op string) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
