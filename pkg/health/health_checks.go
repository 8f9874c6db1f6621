package health

import (
	"fmt"
	"sort"
	"time"
)

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// ClusterCheck creates a health check for replica-set status.
//
// Electing or no primary is unhealthy, since writes cannot be accepted.
// A stable set with an unreachable member is degraded: writes with the
// All concern will block until it returns.
func ClusterCheck(getState func() ClusterState) CheckFunc {
	return func() Check {
		state := getState()
		check := Check{
			Name: "cluster",
			Details: map[string]any{
				"phase":      state.Phase,
				"primary":    state.Primary,
				"term":       state.Term,
				"commit_seq": state.CommitSeq,
				"reachable":  state.Reachable,
				"members":    state.Members,
			},
		}

		switch {
		case state.Phase == "electing":
			check.Status = StatusUnhealthy
			check.Message = "Election in progress"
		case state.Primary == "":
			check.Status = StatusUnhealthy
			check.Message = "No primary"
		case state.Reachable < state.Members:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d of %d members unreachable", state.Members-state.Reachable, state.Members)
		default:
			check.Status = StatusHealthy
			check.Message = "Replica set healthy"
		}

		return check
	}
}

// ReplicationLagCheck creates a health check that reports degraded when
// any reachable secondary trails the primary by more than maxLag entries.
func ReplicationLagCheck(getLag func() map[string]uint64, maxLag uint64) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "replication",
			Status:  StatusHealthy,
			Message: "Secondaries caught up",
			Details: make(map[string]any),
		}

		lags := getLag()
		var lagging []string
		for id, lag := range lags {
			check.Details[id] = lag
			if lag > maxLag {
				lagging = append(lagging, id)
			}
		}

		if len(lagging) > 0 {
			sort.Strings(lagging)
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("High replication lag on %v", lagging)
		}

		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()

		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		if sys > 0 && float64(alloc)/float64(sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}
