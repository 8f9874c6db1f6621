package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
)

// replicator copies the primary's log to every secondary. Each member
// gets its own task that wakes on a kick (the primary appended) or on the
// poll ticker, and pulls everything it is missing after sleeping the
// member's link delay.
type replicator struct {
	c       *Cluster
	logger  logging.Logger
	metrics *metrics.Registry
	poll    time.Duration

	mu     sync.RWMutex
	base   time.Duration
	delays map[string]time.Duration

	kicks map[string]chan struct{} // fixed at construction
}

func newReplicator(c *Cluster) *replicator {
	r := &replicator{
		c:       c,
		logger:  c.logger.With(logging.Component("replicator")),
		metrics: c.metrics,
		poll:    c.cfg.ReplicationPollInterval,
		base:    c.cfg.ReplicationDelay,
		delays:  c.cfg.LinkDelays,
		kicks:   make(map[string]chan struct{}, c.members.size()),
	}
	for _, n := range c.members.nodes {
		r.kicks[n.ID()] = make(chan struct{}, 1)
	}
	return r
}

func (r *replicator) delay(id string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.delays[id]; ok {
		return d
	}
	return r.base
}

func (r *replicator) setDelay(id string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays[id] = d
}

func (r *replicator) kick(id string) {
	if ch, ok := r.kicks[id]; ok {
		signal(ch)
	}
}

func (r *replicator) kickAll() {
	for _, ch := range r.kicks {
		signal(ch)
	}
}

// run is the replication task for one member
func (r *replicator) run(ctx context.Context, n *Node) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	kick := r.kicks[n.ID()]
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-kick:
		case <-ticker.C:
		}
		r.syncOnce(ctx, n)
	}
}

// syncOnce brings n up to date with the current primary. A member whose
// newest entry is not in the primary's log first discards its divergent
// suffix. The pull stops early if the term or either role changes.
func (r *replicator) syncOnce(ctx context.Context, n *Node) int {
	if n.Role() != RoleSecondary {
		return 0
	}
	p, term, err := r.c.Primary()
	if err != nil {
		return 0
	}

	log := r.logger.With(logging.NodeID(n.ID()), logging.Term(term))

	if last := n.LastPosition(); !p.log.Matches(last) {
		prefix := p.log.CommonPrefix(n.log)
		dropped, err := n.truncateAfter(prefix)
		if err != nil {
			log.Error("cannot roll back divergent entries", logging.Error(err))
			return 0
		}
		if dropped > 0 {
			r.metrics.RecordTruncation(n.ID())
			log.Warn("rolled back divergent entries",
				logging.Int("dropped", dropped), logging.Seq(prefix))
			r.c.progressed()
		}
	}

	if n.log.Len() > p.log.LastSeq() {
		return 0
	}
	if !sleepCtx(ctx, r.delay(n.ID())) {
		return 0
	}

	applied := 0
	for op := range p.log.EntriesFrom(n.log.Len()) {
		if ctx.Err() != nil || r.c.Term() != term || p.Role() != RolePrimary || n.Role() != RoleSecondary {
			break
		}
		if err := n.Replicate(op); err != nil {
			log.Debug("replication interrupted", logging.Seq(op.Seq), logging.Error(err))
			break
		}
		applied++
	}

	if applied > 0 {
		r.metrics.RecordReplicated(n.ID(), applied)
		log.Debug("replicated", logging.Int("entries", applied), logging.Seq(n.LastAppliedSeq()))
	}
	return applied
}
