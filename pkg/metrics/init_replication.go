package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationEntriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replset_replication_entries_total",
			Help: "Log entries applied on a secondary by replication",
		},
		[]string{"node"},
	)

	r.ReplicationLagEntries = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replset_replication_lag_entries",
			Help: "Entries a node is behind the primary",
		},
		[]string{"node"},
	)

	r.ReplicationTruncationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replset_replication_truncations_total",
			Help: "Times a node's log was truncated back to a common prefix",
		},
		[]string{"node"},
	)
}
