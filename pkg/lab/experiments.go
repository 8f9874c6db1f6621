package lab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replset/pkg/client"
	"github.com/dd0wney/cluso-replset/pkg/clock"
	"github.com/dd0wney/cluso-replset/pkg/cluster"
	"github.com/dd0wney/cluso-replset/pkg/logging"
)

// Replication seeds the baseline users, compares write latency across
// write concerns, fails the primary over, writes through the new primary
// and verifies the old primary converges after it returns.
func (l *Lab) Replication(ctx context.Context) (*Report, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	r := newReport("replication")
	defer r.finish()

	if err := l.seedBaseline(ctx, r); err != nil {
		return r, err
	}

	start := time.Now()
	concerns, err := l.cfg.writeConcerns()
	if err != nil {
		return r, r.fail("compare write concerns", err, start)
	}
	for _, wc := range concerns {
		st := l.measureWrites(ctx, wc, l.cfg.Experiments.Writes)
		r.Latencies = append(r.Latencies, st)
		l.logger.Info("write latency",
			logging.Concern(wc), logging.Duration("mean", st.Mean), logging.Duration("stddev", st.StdDev))
		if st.Failures > 0 {
			return r, r.fail("compare write concerns",
				fmt.Errorf("%d of %d %s writes failed", st.Failures, st.Samples+st.Failures, wc), start)
		}
	}
	r.ok("compare write concerns", fmt.Sprintf("%d writes per concern over %v", l.cfg.Experiments.Writes, l.cfg.Experiments.Concerns), start)

	old, err := l.killPrimary(ctx, r)
	if err != nil {
		if old != nil {
			old.MarkReachable()
		}
		return r, err
	}

	start = time.Now()
	next := userID(baselineUsers + 1)
	seq, err := l.client.Write(ctx, next, profile(baselineUsers+1, false), cluster.Majority, nil)
	if err != nil {
		old.MarkReachable()
		return r, r.fail("write after failover", err, start)
	}
	r.ok("write after failover", fmt.Sprintf("%s written at seq %d", next, seq), start)

	if err := l.restore(ctx, old, r); err != nil {
		return r, err
	}

	start = time.Now()
	if v, ok := old.Get(next); !ok || v.Tombstone {
		return r, r.fail("verify resync", fmt.Errorf("%s missing on %s after rejoin", next, old.ID()), start)
	}
	r.ok("verify resync", fmt.Sprintf("%s holds %s", old.ID(), next), start)
	return r, nil
}

// measureWrites issues n writes with concern wc and summarizes their latency
func (l *Lab) measureWrites(ctx context.Context, wc cluster.WriteConcern, n int) LatencyStat {
	st := LatencyStat{Concern: wc.String()}
	samples := make([]time.Duration, 0, n)

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("latency/%s/%04d", wc, i)
		start := time.Now()
		if _, err := l.client.Write(ctx, key, []byte(wc.String()), wc, nil); err != nil {
			st.Failures++
			continue
		}
		samples = append(samples, time.Since(start))
	}

	st.Samples = len(samples)
	st.Mean, st.StdDev = summarize(samples)
	return st
}

// Strong writes with Majority and reads the value back with Majority from
// a secondary, then shows that writes during a failover are refused
// rather than lost.
func (l *Lab) Strong(ctx context.Context) (*Report, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	r := newReport("strong")
	defer r.finish()

	s := l.client.StartSession(client.WithCausalConsistency())
	r.Observations["session"] = s.ID()

	start := time.Now()
	key, value := userID(1), profile(1, true)
	seq, err := l.client.Write(ctx, key, value, cluster.Majority, s)
	if err != nil {
		return r, r.fail("majority write", err, start)
	}
	r.ok("majority write", fmt.Sprintf("%s written at seq %d", key, seq), start)

	start = time.Now()
	got, err := l.client.Read(ctx, key, client.Majority, s, client.Secondary())
	if err != nil {
		return r, r.fail("majority read from secondary", err, start)
	}
	if !bytes.Equal(got, value) {
		return r, r.fail("majority read from secondary", fmt.Errorf("read %s, wrote %s", got, value), start)
	}
	r.ok("majority read from secondary", "secondary returned the acknowledged value", start)

	start = time.Now()
	old, _, err := l.c.Primary()
	if err != nil {
		return r, r.fail("write during failover", err, start)
	}
	old.MarkUnreachable()

	_, err = l.client.Write(ctx, "during-failover", []byte("x"), cluster.Majority, s)
	switch {
	case errors.Is(err, client.ErrNoPrimaryAvailable):
		r.expected("write during failover", fmt.Sprintf("%s stopped, write refused", old.ID()), err, start)
	case err == nil:
		r.ok("write during failover", "accepted before the failure was noticed", start)
	default:
		old.MarkReachable()
		return r, r.fail("write during failover", err, start)
	}

	start = time.Now()
	next, err := l.awaitPrimary(ctx, old.ID())
	if err != nil {
		old.MarkReachable()
		return r, r.fail("await new primary", err, start)
	}
	r.Observations["new_primary"] = next.ID()
	r.ok("await new primary", fmt.Sprintf("%s elected for term %d", next.ID(), l.c.Term()), start)

	start = time.Now()
	if _, err := l.client.Write(ctx, "after-failover", []byte("y"), cluster.Majority, s); err != nil {
		old.MarkReachable()
		return r, r.fail("write after failover", err, start)
	}
	r.ok("write after failover", "accepted by "+next.ID(), start)

	if err := l.restore(ctx, old, r); err != nil {
		return r, err
	}
	return r, nil
}

// Eventual writes with concern One while one secondary lags, shows that
// an immediate Local read from it is stale, and polls until it converges.
func (l *Lab) Eventual(ctx context.Context) (*Report, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	r := newReport("eventual")
	defer r.finish()

	start := time.Now()
	lagging := l.laggingCandidate()
	if lagging == "" {
		return r, r.fail("slow down secondary", client.ErrNoReachableNode, start)
	}
	if err := l.c.SetLinkDelay(lagging, l.cfg.Experiments.Lag); err != nil {
		return r, r.fail("slow down secondary", err, start)
	}
	defer func() {
		if err := l.c.SetLinkDelay(lagging, l.cfg.linkDelay(lagging)); err != nil {
			l.logger.Debug("failed to restore link delay", logging.NodeID(lagging), logging.Error(err))
		}
	}()
	r.Observations["lagging_secondary"] = lagging
	r.ok("slow down secondary", fmt.Sprintf("%s link delay %s", lagging, l.cfg.Experiments.Lag), start)

	start = time.Now()
	key := "post/eventual"
	value := []byte(fmt.Sprintf("edit-%d", time.Now().UnixNano()))
	if _, err := l.client.Write(ctx, key, value, cluster.One, nil); err != nil {
		return r, r.fail("write with w=1", err, start)
	}
	r.ok("write with w=1", "acknowledged by the primary alone", start)

	start = time.Now()
	got, err := l.client.Read(ctx, key, client.Local, nil, client.FromNode(lagging))
	switch {
	case errors.Is(err, client.ErrNotFound):
		r.Observations["stale_read"] = "true"
		r.ok("immediate local read", lagging+" has not seen the key yet", start)
	case err != nil:
		return r, r.fail("immediate local read", err, start)
	case !bytes.Equal(got, value):
		r.Observations["stale_read"] = "true"
		r.ok("immediate local read", fmt.Sprintf("%s returned older value %s", lagging, got), start)
	default:
		r.Observations["stale_read"] = "false"
		r.ok("immediate local read", lagging+" was already current", start)
	}

	start = time.Now()
	polls := 0
	err = l.await(ctx, func() bool {
		polls++
		got, err := l.client.Read(ctx, key, client.Local, nil, client.FromNode(lagging))
		return err == nil && bytes.Equal(got, value)
	})
	if err != nil {
		return r, r.fail("converge", err, start)
	}
	r.Observations["converged_after"] = time.Since(start).Round(time.Millisecond).String()
	r.ok("converge", fmt.Sprintf("%s current after %d polls", lagging, polls), start)
	return r, nil
}

// laggingCandidate returns the highest-ID reachable secondary
func (l *Lab) laggingCandidate() string {
	nodes := l.c.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Role() == cluster.RoleSecondary {
			return nodes[i].ID()
		}
	}
	return ""
}

// conversation is one causal exchange between two sessions
type conversation struct {
	t1, t2 clock.Timestamp
}

// Causal runs one or more concurrent conversations. In each, client A
// writes "Hello world", client B reads it and replies "Nice post!", and
// the reply's timestamp must follow the original's.
func (l *Lab) Causal(ctx context.Context) (*Report, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	r := newReport("causal")
	defer r.finish()

	start := time.Now()
	results := make([]conversation, l.cfg.Experiments.Sessions)

	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		g.Go(func() error {
			conv, err := l.converse(gctx, i)
			if err != nil {
				return fmt.Errorf("conversation %d: %w", i, err)
			}
			results[i] = conv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r, r.fail("conversations", err, start)
	}

	for i, conv := range results {
		r.ok(fmt.Sprintf("conversation %d", i),
			fmt.Sprintf("msg1 at T1=%s, reply at T2=%s", conv.t1, conv.t2), start)
	}
	r.Observations["t1"] = results[0].t1.String()
	r.Observations["t2"] = results[0].t2.String()
	return r, nil
}

func (l *Lab) converse(ctx context.Context, i int) (conversation, error) {
	msg1, msg2 := "msg1", "msg2"
	if i > 0 {
		msg1, msg2 = fmt.Sprintf("msg1/%d", i), fmt.Sprintf("msg2/%d", i)
	}

	a := l.client.StartSession(client.WithCausalConsistency())
	b := l.client.StartSession(client.WithCausalConsistency())

	if _, err := l.client.Write(ctx, msg1, []byte("Hello world"), cluster.Majority, a); err != nil {
		return conversation{}, fmt.Errorf("client A write: %w", err)
	}
	t1 := a.Observed(msg1)

	v, err := l.client.ReadVersion(ctx, msg1, client.Majority, b)
	if err != nil {
		return conversation{}, fmt.Errorf("client B read: %w", err)
	}
	if string(v.Value) != "Hello world" {
		return conversation{}, fmt.Errorf("client B read %q", v.Value)
	}
	if seen := b.ClusterTime(); seen.Before(t1) {
		return conversation{}, fmt.Errorf("client B clock %s behind T1=%s after reading msg1", seen, t1)
	}

	if _, err := l.client.Write(ctx, msg2, []byte("Nice post!"), cluster.Majority, b); err != nil {
		return conversation{}, fmt.Errorf("client B reply: %w", err)
	}
	t2 := b.Observed(msg2)

	if !t1.Before(t2) {
		return conversation{}, fmt.Errorf("reply T2=%s does not follow T1=%s", t2, t1)
	}
	return conversation{t1: t1, t2: t2}, nil
}
