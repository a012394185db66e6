// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the watch loop and the supervisor.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for notewatch.
type Metrics struct {
	// Poll loop metrics
	TicksTotal        prometheus.Counter
	CandidatesSeen    prometheus.Counter
	CandidatesSkipped *prometheus.CounterVec

	// Supervision metrics
	SupervisionsTotal  *prometheus.CounterVec
	SupervisionSeconds prometheus.Histogram
	AttemptsPerMeeting prometheus.Histogram

	// Lifecycle API metrics
	CreateCallsTotal *prometheus.CounterVec
	PollErrorsTotal  prometheus.Counter
}

// DefaultMetrics creates metrics on the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a new metric set on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "notewatch_ticks_total",
			Help: "Total poll ticks executed",
		}),
		CandidatesSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "notewatch_candidates_seen_total",
			Help: "Total meeting candidates observed across ticks",
		}),
		CandidatesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notewatch_candidates_skipped_total",
				Help: "Candidates finalized without supervision",
			},
			[]string{"reason"},
		),
		SupervisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notewatch_supervisions_total",
				Help: "Supervisions by terminal outcome",
			},
			[]string{"outcome"},
		),
		SupervisionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notewatch_supervision_seconds",
			Help:    "Wall time of one supervision from selection to terminal state",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
		}),
		AttemptsPerMeeting: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notewatch_attempts_per_meeting",
			Help:    "Capture attempts created per supervision",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
		CreateCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notewatch_create_calls_total",
				Help: "Capture session create calls by result",
			},
			[]string{"result"},
		),
		PollErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "notewatch_poll_errors_total",
			Help: "Transient history/media poll failures absorbed by the retry cadence",
		}),
	}
}
