// Package cluster implements a single-shard replica set of in-process
// nodes.
//
// This package handles:
//   - Per-node operation logs and applied key state
//   - Replication from the primary to every reachable secondary
//   - Write concern accounting and the majority commit point
//   - Failover elections when the primary becomes unreachable
//
// Reachability is driven from outside through Node.MarkUnreachable and
// Node.MarkReachable; nothing in the package detects failures itself.
package cluster
