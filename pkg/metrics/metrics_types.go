// Package metrics exposes the replica set's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the replica set
type Registry struct {
	// Client Metrics
	ClientWritesTotal      *prometheus.CounterVec
	ClientWriteDuration    *prometheus.HistogramVec
	ClientReadsTotal       *prometheus.CounterVec
	ClientReadDuration     *prometheus.HistogramVec
	ClientCausalWaitsTotal prometheus.Counter
	ClientSessionsStarted  prometheus.Counter

	// Replication Metrics
	ReplicationEntriesTotal     *prometheus.CounterVec
	ReplicationLagEntries       *prometheus.GaugeVec
	ReplicationTruncationsTotal *prometheus.CounterVec

	// Cluster Metrics
	ClusterElectionsTotal   *prometheus.CounterVec
	ClusterElectionDuration prometheus.Histogram
	ClusterTerm             prometheus.Gauge
	ClusterCommitSeq        prometheus.Gauge
	ClusterReachableNodes   prometheus.Gauge
	ClusterNodeRole         *prometheus.GaugeVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
// Each call gets its own prometheus registry, so clusters built in tests
// never collide on collector names.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initClientMetrics()
	r.initReplicationMetrics()
	r.initClusterMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
