package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets spans a single in-process append up to a stalled All write
var latencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

func (r *Registry) initClientMetrics() {
	r.ClientWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replset_client_writes_total",
			Help: "Total number of client writes",
		},
		[]string{"concern", "result"}, // one|majority|all, ok|timeout|no_primary|rolled_back|error
	)

	r.ClientWriteDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replset_client_write_duration_seconds",
			Help:    "Time from proposal until the write concern was satisfied",
			Buckets: latencyBuckets,
		},
		[]string{"concern"},
	)

	r.ClientReadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replset_client_reads_total",
			Help: "Total number of client reads",
		},
		[]string{"concern", "result"}, // local|majority, ok|not_found|timeout|causal_violation|error
	)

	r.ClientReadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replset_client_read_duration_seconds",
			Help:    "Duration of client reads including any causal or majority wait",
			Buckets: latencyBuckets,
		},
		[]string{"concern"},
	)

	r.ClientCausalWaitsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "replset_client_causal_waits_total",
			Help: "Reads that had to wait for a node to catch up with the session",
		},
	)

	r.ClientSessionsStarted = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "replset_client_sessions_started_total",
			Help: "Total number of client sessions started",
		},
	)
}
