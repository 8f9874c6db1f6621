package cluster

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// NodeStatus is a point-in-time view of one member
type NodeStatus struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	Reachable      bool   `json:"reachable"`
	LastAppliedSeq uint64 `json:"last_applied_seq"`
	LastTerm       uint64 `json:"last_term"`
	Term           uint64 `json:"term"`
	CommitSeq      uint64 `json:"commit_seq"`
	Lag            uint64 `json:"lag"` // entries behind the primary; 0 without one
}

// Status is a point-in-time view of the whole replica set
type Status struct {
	Phase     Phase          `json:"phase"`
	Term      uint64         `json:"term"`
	Primary   string         `json:"primary,omitempty"`
	Commit    oplog.Position `json:"commit"`
	Rounds    uint64         `json:"election_rounds"`
	Members   int            `json:"members"`
	Reachable int            `json:"reachable"`
	Nodes     []NodeStatus   `json:"nodes"`
}

// MarshalText renders a Role by name in JSON and YAML
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// MarshalText renders a Phase by name in JSON and YAML
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses a Role name written by MarshalText
func (r *Role) UnmarshalText(text []byte) error {
	for _, role := range []Role{RoleSecondary, RolePrimary, RoleUnreachable} {
		if role.String() == string(text) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", text)
}

// UnmarshalText parses a Phase name written by MarshalText
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stable":
		*p = PhaseStable
	case "electing":
		*p = PhaseElecting
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Cluster is a running replica set: fixed membership, one replication task
// per member, and an election loop.
//
// Concurrent Safety:
// 1. mu guards primary, term and commit; it is never held while waiting
// 2. Node hooks run outside node locks and may take mu
// 3. The progress channel is closed and replaced on every state change,
// so any number of waiters can select on it together with a context
type Cluster struct {
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Registry

	members  *membership
	quorum   *QuorumCoordinator
	election *ElectionManager
	repl     *replicator

	mu      sync.RWMutex
	primary *Node
	term    uint64
	commit  oplog.Position

	progressMu sync.Mutex
	progressCh chan struct{}

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}
