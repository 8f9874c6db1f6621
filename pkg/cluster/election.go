package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// Phase returns the current election phase
func (em *ElectionManager) Phase() Phase {
	return Phase(em.phase.Load())
}

// Rounds returns how many election rounds have run
func (em *ElectionManager) Rounds() uint64 {
	return em.rounds.Load()
}

// primaryLost flips the phase to electing and schedules a round. It is
// called synchronously from MarkUnreachable on the primary.
func (em *ElectionManager) primaryLost() {
	if em.phase.Swap(int32(PhaseElecting)) == int32(PhaseStable) {
		em.lostAt.Store(time.Now().UnixNano())
	}
	em.logger.Warn("primary lost, election scheduled", logging.Duration("timeout", em.cfg.ElectionTimeout))
	signal(em.lost)
}

// memberReturned starts an extra round if the set is still electing
func (em *ElectionManager) memberReturned() {
	if em.Phase() == PhaseElecting {
		signal(em.wake)
	}
}

// loop waits for the primary to be lost, then runs rounds until one
// succeeds. It returns when ctx is cancelled.
func (em *ElectionManager) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-em.lost:
		}

		if !sleepCtx(ctx, em.cfg.ElectionTimeout) {
			return nil
		}

		for em.Phase() == PhaseElecting {
			if _, err := em.RunElection(ctx); err == nil {
				break
			}

			retry := time.NewTimer(em.cfg.ElectionRetryInterval)
			select {
			case <-ctx.Done():
				retry.Stop()
				return nil
			case <-retry.C:
			case <-em.wake:
				retry.Stop()
			}
		}
	}
}

// RunElection runs one election round and returns the ID of the primary
// afterwards. If a primary is already serving it is returned unchanged.
func (em *ElectionManager) RunElection(ctx context.Context) (string, error) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if p, _, err := em.c.Primary(); err == nil {
		return p.ID(), nil
	}

	em.phase.Store(int32(PhaseElecting))
	round := em.rounds.Add(1)
	log := em.logger.With(logging.Uint64("round", round))
	timer := logging.StartTimer(log, "election round failed")

	if em.cfg.ElectionRequiresMajority && !em.c.members.hasQuorum() {
		em.metrics.RecordElection(electionNoMajority, 0)
		err := fmt.Errorf("%w: %d reachable, %d required",
			ErrNoReachableMajority, len(em.c.members.reachable()), em.c.members.majority())
		timer.EndError(err)
		return "", err
	}

	winner := em.pickCandidate()
	if winner == nil {
		em.metrics.RecordElection(electionNoCandidate, 0)
		err := fmt.Errorf("%w: none holds commit %s", ErrNoElectableNode, em.c.Commit())
		timer.EndError(err)
		return "", err
	}

	term, truncated, err := em.c.promote(winner)
	if err != nil {
		em.metrics.RecordElection(electionNoCandidate, 0)
		timer.EndError(fmt.Errorf("promote %s: %w", winner.ID(), err))
		return "", err
	}
	em.phase.Store(int32(PhaseStable))
	if !winner.Reachable() {
		// cut off between promotion and the phase change
		em.primaryLost()
	}

	var elapsed time.Duration
	if lost := em.lostAt.Load(); lost > 0 {
		elapsed = time.Since(time.Unix(0, lost))
	}
	em.metrics.RecordElection(electionWon, elapsed)

	log.Info("primary elected",
		logging.NodeID(winner.ID()),
		logging.Term(term),
		logging.Seq(winner.LastAppliedSeq()),
		logging.Any("truncated", truncated),
		logging.Duration("failover", elapsed))

	em.c.progressed()
	return winner.ID(), nil
}

// pickCandidate returns the freshest reachable secondary holding the
// commit point: highest (last term, last seq), ties to the lowest ID.
func (em *ElectionManager) pickCandidate() *Node {
	commit := em.c.Commit()

	var best *Node
	var bestPos oplog.Position
	for _, n := range em.c.members.nodes {
		if n.Role() != RoleSecondary || !n.log.Matches(commit) {
			continue
		}
		if pos := n.LastPosition(); best == nil || bestPos.Less(pos) {
			best, bestPos = n, pos
		}
	}
	return best
}

// signal performs a non-blocking send on a size-one channel
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// sleepCtx waits for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// checkSinglePrimary logs ErrDualPrimaryDetected if more than one
// reachable member claims to be primary
func (em *ElectionManager) checkSinglePrimary() error {
	primaries := em.c.members.byRole(RolePrimary)
	if len(primaries) <= 1 {
		return nil
	}
	ids := make([]string, len(primaries))
	for i, p := range primaries {
		ids[i] = p.ID()
	}
	err := fmt.Errorf("%w: %v", ErrDualPrimaryDetected, ids)
	em.logger.Error("invariant violated", logging.Error(err))
	return err
}
