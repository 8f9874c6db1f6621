package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replset/pkg/clock"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// Bootstrap builds a replica set from memberIDs, starts replication and
// the election loop, and elects the first primary. With every log empty
// the lowest member ID wins term 1. ctx bounds the first election only;
// the cluster runs until Close.
func Bootstrap(ctx context.Context, cfg Config, memberIDs []string) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}
	cfg = cfg.withDefaults()

	members, err := newMembership(memberIDs)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		cfg:        cfg,
		logger:     cfg.Logger.With(logging.Component("cluster")),
		metrics:    cfg.Metrics,
		members:    members,
		progressCh: make(chan struct{}),
	}
	c.quorum = &QuorumCoordinator{c: c}
	c.election = newElectionManager(c)
	c.repl = newReplicator(c)

	for _, n := range members.nodes {
		n.hooks = nodeHooks{
			onAppend:       c.onAppend,
			onReachability: c.onReachability,
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	c.cancel, c.group = cancel, g

	for _, n := range members.nodes {
		g.Go(func() error { return c.repl.run(gctx, n) })
	}
	g.Go(func() error { return c.election.loop(gctx) })

	if _, err := c.election.RunElection(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("initial election: %w", err)
	}

	c.logger.Info("replica set bootstrapped",
		logging.Int("members", members.size()),
		logging.Any("member_ids", c.memberIDs()))
	return c, nil
}

// Close stops replication and the election loop. Node state is kept and
// can still be inspected.
func (c *Cluster) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.group.Wait()
		c.logger.Info("replica set stopped")
	})
	return c.closeErr
}

// Primary returns the serving primary and its term. It fails with
// ErrNoPrimaryAvailable while an election is pending.
func (c *Cluster) Primary() (*Node, uint64, error) {
	if c.election.Phase() == PhaseElecting {
		return nil, 0, ErrNoPrimaryAvailable
	}

	c.mu.RLock()
	p, term := c.primary, c.term
	c.mu.RUnlock()

	if p == nil || p.Role() != RolePrimary {
		return nil, 0, ErrNoPrimaryAvailable
	}
	return p, term, nil
}

// Propose appends a write to the primary's log and returns the operation
// as assigned. It does not wait for any write concern.
func (c *Cluster) Propose(key string, value []byte, tombstone bool, sessionID string, sessionTS clock.Timestamp) (oplog.Operation, error) {
	p, term, err := c.Primary()
	if err != nil {
		return oplog.Operation{}, err
	}

	op, err := p.propose(term, key, value, tombstone, sessionID, sessionTS)
	if errors.Is(err, ErrNotPrimary) || errors.Is(err, ErrNodeUnreachable) {
		return oplog.Operation{}, fmt.Errorf("%w: primary changed during write (%v)", ErrNoPrimaryAvailable, err)
	}
	return op, err
}

// Node returns the member with the given ID
func (c *Cluster) Node(id string) (*Node, error) {
	return c.members.get(id)
}

// Nodes returns every member in ID order
func (c *Cluster) Nodes() []*Node {
	out := make([]*Node, len(c.members.nodes))
	copy(out, c.members.nodes)
	return out
}

// Size returns the configured number of members
func (c *Cluster) Size() int { return c.members.size() }

// Term returns the current election term
func (c *Cluster) Term() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.term
}

// Commit returns the majority commit point
func (c *Cluster) Commit() oplog.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commit
}

// Quorum returns the write concern coordinator
func (c *Cluster) Quorum() *QuorumCoordinator { return c.quorum }

// Election returns the election manager
func (c *Cluster) Election() *ElectionManager { return c.election }

// Changed returns a channel that is closed on the next state change: an
// append, a replicated entry, a role change or a commit advance.
func (c *Cluster) Changed() <-chan struct{} {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	return c.progressCh
}

// SetLinkDelay simulates replication lag to one member
func (c *Cluster) SetLinkDelay(id string, d time.Duration) error {
	if _, err := c.members.get(id); err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("link delay %v for %q must be non-negative", d, id)
	}
	c.repl.setDelay(id, d)
	c.logger.Debug("link delay set", logging.NodeID(id), logging.Duration("delay", d))
	return nil
}

// Describe returns the status of every member keyed by ID
func (c *Cluster) Describe() map[string]NodeStatus {
	st := c.Status()
	out := make(map[string]NodeStatus, len(st.Nodes))
	for _, ns := range st.Nodes {
		out[ns.ID] = ns
	}
	return out
}

// Status returns a snapshot of the replica set
func (c *Cluster) Status() Status {
	c.election.checkSinglePrimary()

	c.mu.RLock()
	term, commit := c.term, c.commit
	c.mu.RUnlock()

	st := Status{
		Phase:   c.election.Phase(),
		Term:    term,
		Commit:  commit,
		Rounds:  c.election.Rounds(),
		Members: c.members.size(),
		Nodes:   make([]NodeStatus, 0, c.members.size()),
	}

	var primaryLast uint64
	if p, _, err := c.Primary(); err == nil {
		st.Primary = p.ID()
		primaryLast = p.log.LastSeq()
	}

	for _, n := range c.members.nodes {
		last := n.LastPosition()
		ns := NodeStatus{
			ID:             n.ID(),
			Role:           n.Role(),
			Reachable:      n.Reachable(),
			LastAppliedSeq: n.LastAppliedSeq(),
			LastTerm:       last.Term,
			Term:           n.Term(),
			CommitSeq:      n.log.Committed(),
		}
		if primaryLast > last.Seq {
			ns.Lag = primaryLast - last.Seq
		}
		if ns.Reachable {
			st.Reachable++
		}
		st.Nodes = append(st.Nodes, ns)
	}
	return st
}

// promote makes winner primary for the next term and truncates every
// other reachable member to its common prefix with the winner. It returns
// the new term and how many entries each member lost.
func (c *Cluster) promote(winner *Node) (uint64, map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	term := c.term + 1
	if err := winner.promote(term); err != nil {
		return 0, nil, err
	}
	if old := c.primary; old != nil && old != winner {
		old.demote()
	}
	c.primary, c.term = winner, term

	truncated := make(map[string]int)
	for _, n := range c.members.reachable() {
		if n == winner {
			continue
		}
		n.demote()
		dropped, err := n.truncateAfter(winner.log.CommonPrefix(n.log))
		if err != nil {
			c.logger.Error("truncate after election failed", logging.NodeID(n.ID()), logging.Error(err))
			continue
		}
		if dropped > 0 {
			truncated[n.ID()] = dropped
			c.metrics.RecordTruncation(n.ID())
		}
	}
	return term, truncated, nil
}

// raiseCommit moves the commit point forward to pos if it is newer
func (c *Cluster) raiseCommit(pos oplog.Position) oplog.Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commit.Less(pos) {
		c.commit = pos
	}
	return c.commit
}

// onAppend runs after any member appends to its log
func (c *Cluster) onAppend(n *Node) {
	if n.Role() == RolePrimary {
		c.repl.kickAll()
	}
	c.progressed()
}

// onReachability runs after a member is cut off or reconnected
func (c *Cluster) onReachability(n *Node, reachable bool) {
	if reachable {
		c.logger.Info("member reachable", logging.NodeID(n.ID()), logging.Seq(n.LastAppliedSeq()))
		c.repl.kick(n.ID())
		c.election.memberReturned()
	} else {
		c.mu.RLock()
		wasPrimary := c.primary == n
		c.mu.RUnlock()

		c.logger.Warn("member unreachable", logging.NodeID(n.ID()), logging.Bool("was_primary", wasPrimary))
		if wasPrimary {
			c.election.primaryLost()
		}
	}
	c.progressed()
}

// progressed advances the commit point, refreshes gauges and wakes every
// waiter
func (c *Cluster) progressed() {
	c.quorum.advanceCommit()
	c.updateMetrics()

	c.progressMu.Lock()
	close(c.progressCh)
	c.progressCh = make(chan struct{})
	c.progressMu.Unlock()
}

func (c *Cluster) updateMetrics() {
	c.mu.RLock()
	term, commit := c.term, c.commit
	c.mu.RUnlock()

	var primaryLast uint64
	if p, _, err := c.Primary(); err == nil {
		primaryLast = p.log.LastSeq()
	}

	reachable := 0
	for _, n := range c.members.nodes {
		if n.Reachable() {
			reachable++
		}
		c.metrics.SetNodeRole(n.ID(), n.Role().String())
		if last := n.log.LastSeq(); primaryLast > last {
			c.metrics.SetReplicationLag(n.ID(), primaryLast-last)
		} else {
			c.metrics.SetReplicationLag(n.ID(), 0)
		}
	}
	c.metrics.UpdateClusterMetrics(term, commit.Seq, reachable)
}

func (c *Cluster) memberIDs() []string {
	ids := make([]string, len(c.members.nodes))
	for i, n := range c.members.nodes {
		ids[i] = n.ID()
	}
	return ids
}
