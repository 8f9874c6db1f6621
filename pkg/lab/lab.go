package lab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dd0wney/cluso-replset/pkg/client"
	"github.com/dd0wney/cluso-replset/pkg/cluster"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
)

const (
	baselineUsers = 5
	pollInterval  = 10 * time.Millisecond
)

// Lab owns a running replica set and a client, and runs experiments
// against them one at a time.
type Lab struct {
	cfg     *Config
	c       *cluster.Cluster
	client  *client.Client
	metrics *metrics.Registry
	logger  logging.Logger
}

// New bootstraps a replica set from cfg
func New(ctx context.Context, cfg *Config, logger logging.Logger, reg *metrics.Registry) (*Lab, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrDefault(logger)
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}

	c, err := cluster.Bootstrap(ctx, cfg.ClusterConfig(logger, reg), cfg.Members)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap replica set: %w", err)
	}

	return &Lab{
		cfg:     cfg,
		c:       c,
		client:  client.New(c, client.Config{Logger: logger, Metrics: reg}),
		metrics: reg,
		logger:  logger.With(logging.Component("lab")),
	}, nil
}

// Close stops the replica set
func (l *Lab) Close() error { return l.c.Close() }

// Cluster returns the replica set under test
func (l *Lab) Cluster() *cluster.Cluster { return l.c }

// Client returns the lab's client
func (l *Lab) Client() *client.Client { return l.client }

// Config returns the lab configuration
func (l *Lab) Config() *Config { return l.cfg }

// Status returns a snapshot of the replica set
func (l *Lab) Status() cluster.Status { return l.c.Status() }

// Run runs the named experiment
func (l *Lab) Run(ctx context.Context, name string) (*Report, error) {
	switch name {
	case "replication":
		return l.Replication(ctx)
	case "strong":
		return l.Strong(ctx)
	case "eventual":
		return l.Eventual(ctx)
	case "causal":
		return l.Causal(ctx)
	default:
		return nil, fmt.Errorf("unknown experiment %q (want one of %s)", name, strings.Join(Experiments, ", "))
	}
}

// Experiments lists the experiment names accepted by Run
var Experiments = []string{"replication", "strong", "eventual", "causal"}

type userProfile struct {
	UserID                 string  `json:"user_id"`
	Username               string  `json:"username"`
	Email                  string  `json:"email"`
	InsertedBeforeFailover bool    `json:"inserted_before_failover"`
	LastLoginTime          float64 `json:"last_login_time"`
}

func userID(i int) string { return fmt.Sprintf("u%03d", i) }

func profile(i int, beforeFailover bool) []byte {
	b, _ := json.Marshal(userProfile{
		UserID:                 userID(i),
		Username:               fmt.Sprintf("Tan_%d", i),
		Email:                  fmt.Sprintf("Tan_%d@example.com", i),
		InsertedBeforeFailover: beforeFailover,
		LastLoginTime:          float64(time.Now().UnixNano()) / 1e9,
	})
	return b
}

// seedBaseline inserts users u001 to u005 with Majority unless some
// users already exist
func (l *Lab) seedBaseline(ctx context.Context, r *Report) error {
	start := time.Now()
	items, err := l.client.Scan(ctx, client.Majority, nil)
	if err != nil {
		return r.fail("seed baseline", err, start)
	}

	existing := 0
	for _, it := range items {
		if strings.HasPrefix(it.Key, "u0") {
			existing++
		}
	}
	if existing > 0 {
		r.ok("seed baseline", fmt.Sprintf("%d users present, insertion skipped", existing), start)
		return nil
	}

	for i := 1; i <= baselineUsers; i++ {
		if _, err := l.client.Write(ctx, userID(i), profile(i, true), cluster.Majority, nil); err != nil {
			return r.fail("seed baseline", fmt.Errorf("insert %s: %w", userID(i), err), start)
		}
	}
	r.ok("seed baseline", fmt.Sprintf("inserted %s to %s with majority", userID(1), userID(baselineUsers)), start)
	return nil
}

// killPrimary cuts off the current primary and waits for a successor
func (l *Lab) killPrimary(ctx context.Context, r *Report) (*cluster.Node, error) {
	start := time.Now()
	old, term, err := l.c.Primary()
	if err != nil {
		return nil, r.fail("kill primary", err, start)
	}

	old.MarkUnreachable()
	l.logger.Info("primary stopped", logging.NodeID(old.ID()), logging.Term(term))

	next, err := l.awaitPrimary(ctx, old.ID())
	if err != nil {
		return old, r.fail("kill primary", fmt.Errorf("no new primary after %s stopped: %w", old.ID(), err), start)
	}

	r.Observations["old_primary"] = old.ID()
	r.Observations["new_primary"] = next.ID()
	r.Observations["failover_time"] = time.Since(start).Round(time.Millisecond).String()
	r.ok("kill primary", fmt.Sprintf("%s stopped, %s elected for term %d", old.ID(), next.ID(), l.c.Term()), start)
	return old, nil
}

// restore reconnects n and waits until every member has converged
func (l *Lab) restore(ctx context.Context, n *cluster.Node, r *Report) error {
	start := time.Now()
	name := "restore " + n.ID()

	n.MarkReachable()
	if err := l.awaitConverged(ctx); err != nil {
		return r.fail(name, err, start)
	}
	r.ok(name, fmt.Sprintf("rejoined as %s at seq %d", n.Role(), n.LastAppliedSeq()), start)
	return nil
}

// awaitPrimary waits for a serving primary other than notID
func (l *Lab) awaitPrimary(ctx context.Context, notID string) (*cluster.Node, error) {
	var found *cluster.Node
	err := l.await(ctx, func() bool {
		p, _, err := l.c.Primary()
		if err != nil || p.ID() == notID {
			return false
		}
		found = p
		return true
	})
	return found, err
}

// awaitConverged waits until every reachable member holds the primary's log
func (l *Lab) awaitConverged(ctx context.Context) error {
	return l.await(ctx, func() bool {
		p, _, err := l.c.Primary()
		if err != nil {
			return false
		}
		want := p.LastPosition()
		for _, n := range l.c.Nodes() {
			if n.Reachable() && n.LastPosition() != want {
				return false
			}
		}
		return true
	})
}

// await re-evaluates cond on every cluster change, and at least every
// pollInterval, until it holds or ctx ends
func (l *Lab) await(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		changed := l.c.Changed()
		if cond() {
			return nil
		}
		select {
		case <-changed:
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return client.ErrTimeout
			}
			return ctx.Err()
		}
	}
}

// withTimeout bounds one experiment
func (l *Lab) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.cfg.Experiments.Timeout)
}
