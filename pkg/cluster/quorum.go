package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// QuorumCoordinator decides when a write position is durable under a
// write concern and tracks the majority commit point.
//
// Concurrent Safety:
// 1. All counting reads node state through atomics and log read locks
// 2. Waits block on the cluster's progress broadcast, never on node locks
// 3. A cancelled wait has no side effects on any log
type QuorumCoordinator struct {
	c *Cluster
}

// Required returns how many acknowledgements concern needs: 1, ceil((N+1)/2)
// or N, where N is the configured membership size
func (q *QuorumCoordinator) Required(concern WriteConcern) int {
	switch concern {
	case One:
		return 1
	case All:
		return q.c.members.size()
	default:
		return q.c.members.majority()
	}
}

// Acknowledgers returns the reachable members whose log holds pos, in ID order
func (q *QuorumCoordinator) Acknowledgers(pos oplog.Position) []string {
	var ids []string
	for _, n := range q.c.members.nodes {
		if n.Reachable() && n.log.Matches(pos) {
			ids = append(ids, n.id)
		}
	}
	return ids
}

// IsDurable reports whether enough reachable members hold pos to satisfy
// concern. Unreachable members never count, so All cannot be satisfied
// while any member is cut off.
func (q *QuorumCoordinator) IsDurable(pos oplog.Position, concern WriteConcern) bool {
	return len(q.Acknowledgers(pos)) >= q.Required(concern)
}

// rolledBack reports whether pos can no longer become durable: a primary
// from a later term is serving and its log does not hold pos.
func (q *QuorumCoordinator) rolledBack(pos oplog.Position) bool {
	p, term, err := q.c.Primary()
	if err != nil || term <= pos.Term {
		return false
	}
	return !p.log.Matches(pos)
}

// AwaitDurable blocks until pos satisfies concern. It fails with
// ErrTimeout when ctx expires and ErrRolledBack when a failover discarded
// the write.
func (q *QuorumCoordinator) AwaitDurable(ctx context.Context, pos oplog.Position, concern WriteConcern) error {
	for {
		changed := q.c.Changed()
		if q.IsDurable(pos, concern) {
			return nil
		}
		if q.rolledBack(pos) {
			return fmt.Errorf("%s: %w", pos, ErrRolledBack)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			acked := q.Acknowledgers(pos)
			return contextError(ctx, fmt.Sprintf("%s %s acks %d/%d %v",
				pos, concern, len(acked), q.Required(concern), acked))
		}
	}
}

// advanceCommit moves the commit point to the newest entry of the current
// term that a majority holds, and raises the truncation floor on every
// member whose log contains it.
func (q *QuorumCoordinator) advanceCommit() {
	p, term, err := q.c.Primary()
	if err != nil {
		return
	}

	commit := q.c.Commit()
	for seq := p.log.LastSeq(); seq > commit.Seq; seq-- {
		op, ok := p.log.Entry(seq)
		if !ok || op.Term != term {
			break
		}
		if q.IsDurable(op.Position(), Majority) {
			commit = q.c.raiseCommit(op.Position())
			break
		}
	}

	if commit.IsZero() {
		return
	}
	for _, n := range q.c.members.nodes {
		if n.log.Matches(commit) {
			n.setCommitted(commit.Seq)
		}
	}
}

// contextError maps a finished context to ErrTimeout on deadline and to
// the context's own error on cancellation
func contextError(ctx context.Context, what string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", what, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", what, ctx.Err())
}
