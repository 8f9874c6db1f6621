// Package client is the application-facing API of the replica set:
// writes with a write concern, reads with a read concern and read
// preference, and causally consistent sessions.
package client

import (
	"sync"
	"time"

	"github.com/dd0wney/cluso-replset/pkg/clock"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
)

// ReadConcern selects which applied state a read may return
type ReadConcern int

const (
	// Local returns whatever the chosen node has applied, possibly stale
	Local ReadConcern = iota
	// Majority returns only versions a majority of members hold
	Majority
)

// String returns the string representation of a ReadConcern
func (r ReadConcern) String() string {
	switch r {
	case Local:
		return "local"
	case Majority:
		return "majority"
	default:
		return "unknown"
	}
}

// Config holds client defaults
type Config struct {
	WriteTimeout time.Duration     // Used when the write context has no deadline (default: 2s)
	ReadTimeout  time.Duration     // Used when the read context has no deadline (default: 2s)
	Logger       logging.Logger    // Defaults to logging.DefaultLogger()
	Metrics      *metrics.Registry // Defaults to metrics.DefaultRegistry()
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 2 * time.Second,
		ReadTimeout:  2 * time.Second,
	}
}

// KeyValue is one live pair returned by Scan
type KeyValue struct {
	Key   string
	Value []byte
}

// Session groups a caller's operations. A causal session guarantees that
// reads never return a version of a key older than one the session has
// already written or read. Any session guarantees that for Majority reads
// of versions a majority confirmed to it.
//
// Concurrent Safety:
// 1. The session clock is a LogicalClock and safe for concurrent use
// 2. The observed and confirmed maps are guarded by mu
type Session struct {
	id     string
	causal bool
	clk    *clock.LogicalClock

	mu        sync.Mutex
	observed  map[string]clock.Timestamp
	confirmed map[string]clock.Timestamp
}

// SessionOption configures a new session
type SessionOption func(*Session)

// WithCausalConsistency makes the session causally consistent
func WithCausalConsistency() SessionOption {
	return func(s *Session) { s.causal = true }
}

// WithSessionID overrides the generated session ID
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// readPreference selects the node a read is served from
type readPreference int

const (
	preferPrimary readPreference = iota
	preferSecondary
	fromNode
)

type readOptions struct {
	pref   readPreference
	nodeID string
}

// ReadOption configures a single read
type ReadOption func(*readOptions)

// PreferPrimary reads from the primary, falling back to the freshest
// reachable member while an election is in progress. This is the default.
func PreferPrimary() ReadOption {
	return func(o *readOptions) { o.pref = preferPrimary }
}

// Secondary reads from the first reachable secondary in ID order
func Secondary() ReadOption {
	return func(o *readOptions) { o.pref = preferSecondary }
}

// FromNode reads from the named member
func FromNode(id string) ReadOption {
	return func(o *readOptions) {
		o.pref = fromNode
		o.nodeID = id
	}
}
