package cluster

import (
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
)

// Phase is the replica set's election state
type Phase int32

const (
	// PhaseStable means a primary is serving
	PhaseStable Phase = iota
	// PhaseElecting means the primary was lost and no successor is promoted yet
	PhaseElecting
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case PhaseStable:
		return "stable"
	case PhaseElecting:
		return "electing"
	default:
		return "unknown"
	}
}

// Election results used for logging and metrics
const (
	electionWon         = "won"
	electionNoCandidate = "no_candidate"
	electionNoMajority  = "no_majority"
)

// ElectionManager promotes a new primary after the current one becomes
// unreachable. The freshest reachable secondary that holds the commit
// point wins.
//
// Concurrent Safety:
// 1. Rounds are serialized by mu; only one election runs at a time
// 2. Phase is an atomic so writers can check it without taking mu
// 3. Triggers are buffered channels of size one, so signals coalesce
// 4. Lock order is mu, then the cluster lock, then node locks
type ElectionManager struct {
	c       *Cluster
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Registry

	mu     sync.Mutex
	phase  atomic.Int32
	rounds atomic.Uint64
	lostAt atomic.Int64 // unix nanos when the primary was lost

	lost chan struct{} // primary became unreachable
	wake chan struct{} // a member became reachable while electing
}

// newElectionManager creates an election manager in the electing phase;
// bootstrap runs the first round.
func newElectionManager(c *Cluster) *ElectionManager {
	em := &ElectionManager{
		c:       c,
		cfg:     c.cfg,
		logger:  c.logger.With(logging.Component("election")),
		metrics: c.metrics,
		lost:    make(chan struct{}, 1),
		wake:    make(chan struct{}, 1),
	}
	em.phase.Store(int32(PhaseElecting))
	return em
}
