package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ClusterElectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replset_cluster_elections_total",
			Help: "Total number of election rounds",
		},
		[]string{"result"}, // won, no_candidate, no_majority
	)

	r.ClusterElectionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replset_cluster_election_duration_seconds",
			Help:    "Time from losing the primary until a new one was promoted",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
	)

	r.ClusterTerm = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replset_cluster_term",
			Help: "Current election term",
		},
	)

	r.ClusterCommitSeq = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replset_cluster_commit_seq",
			Help: "Highest sequence number durable on a majority in the current term",
		},
	)

	r.ClusterReachableNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replset_cluster_reachable_nodes",
			Help: "Number of members currently reachable",
		},
	)

	r.ClusterNodeRole = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replset_cluster_node_role",
			Help: "Member role (1 for the current role, 0 otherwise)",
		},
		[]string{"node", "role"}, // primary, secondary, unreachable
	)
}
