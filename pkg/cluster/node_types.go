package cluster

import (
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-replset/pkg/clock"
	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// Role represents the role of a node in the replica set
type Role int32

const (
	// RoleSecondary is a node that replicates from the primary
	RoleSecondary Role = iota
	// RolePrimary is the single node that accepts writes
	RolePrimary
	// RoleUnreachable is a node cut off from the rest of the set
	RoleUnreachable
)

// String returns the string representation of a Role
func (r Role) String() string {
	switch r {
	case RoleSecondary:
		return "secondary"
	case RolePrimary:
		return "primary"
	case RoleUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Version is the applied state of one key on one node
type Version struct {
	Value     []byte
	Seq       uint64
	Term      uint64
	Timestamp clock.Timestamp
	Tombstone bool // the key was deleted at Seq
}

// Position returns the log position that produced this version
func (v Version) Position() oplog.Position {
	return oplog.Position{Seq: v.Seq, Term: v.Term}
}

// Item is a live key and its version, as returned by Scan
type Item struct {
	Key string
	Version
}

// nodeHooks lets the owning cluster observe a node without the node
// knowing about the cluster. Hooks run after the node lock is released.
type nodeHooks struct {
	onAppend       func(n *Node)
	onReachability func(n *Node, reachable bool)
}

// Node is one member of the replica set: its operation log, the key
// state built by applying that log, and its current role.
//
// Concurrent Safety:
// 1. mu serializes append, apply, truncate and role changes
// 2. Role, term and lastApplied are atomics so hot-path reads never block
// 3. Get and Scan take the read side of mu and return copies
type Node struct {
	id  string
	log *oplog.Log
	clk *clock.LogicalClock

	mu    sync.RWMutex
	state map[string]Version

	role        atomic.Int32
	term        atomic.Uint64 // highest term this node has taken part in
	lastApplied atomic.Uint64

	hooks nodeHooks
}
