package metrics

import (
	"runtime"
	"time"
)

// RecordWrite records a client write and how long it waited for its concern
func (r *Registry) RecordWrite(concern, result string, duration time.Duration) {
	r.ClientWritesTotal.WithLabelValues(concern, result).Inc()
	r.ClientWriteDuration.WithLabelValues(concern).Observe(duration.Seconds())
}

// RecordRead records a client read
func (r *Registry) RecordRead(concern, result string, duration time.Duration) {
	r.ClientReadsTotal.WithLabelValues(concern, result).Inc()
	r.ClientReadDuration.WithLabelValues(concern).Observe(duration.Seconds())
}

// RecordReplicated records entries applied on node by replication
func (r *Registry) RecordReplicated(node string, entries int) {
	r.ReplicationEntriesTotal.WithLabelValues(node).Add(float64(entries))
}

// SetReplicationLag sets how many entries node trails the primary
func (r *Registry) SetReplicationLag(node string, behind uint64) {
	r.ReplicationLagEntries.WithLabelValues(node).Set(float64(behind))
}

// RecordTruncation records a rollback of node's log to a common prefix
func (r *Registry) RecordTruncation(node string) {
	r.ReplicationTruncationsTotal.WithLabelValues(node).Inc()
}

// RecordElection records one election round. Duration is only observed
// for rounds that promoted a primary.
func (r *Registry) RecordElection(result string, duration time.Duration) {
	r.ClusterElectionsTotal.WithLabelValues(result).Inc()
	if result == "won" {
		r.ClusterElectionDuration.Observe(duration.Seconds())
	}
}

// UpdateClusterMetrics updates cluster-wide gauges
func (r *Registry) UpdateClusterMetrics(term, commitSeq uint64, reachable int) {
	r.ClusterTerm.Set(float64(term))
	r.ClusterCommitSeq.Set(float64(commitSeq))
	r.ClusterReachableNodes.Set(float64(reachable))
}

var roles = []string{"primary", "secondary", "unreachable"}

// SetNodeRole sets the current role of node
func (r *Registry) SetNodeRole(node, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reset all roles
	for _, candidate := range roles {
		r.ClusterNodeRole.WithLabelValues(node, candidate).Set(0)
	}

	// Set current role
	r.ClusterNodeRole.WithLabelValues(node, role).Set(1)
}

// UpdateSystemMetrics refreshes process-level gauges
func (r *Registry) UpdateSystemMetrics(started time.Time) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r.UptimeSeconds.Set(time.Since(started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(ms.Alloc))
}
