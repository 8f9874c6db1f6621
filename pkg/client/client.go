package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-replset/pkg/cluster"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
	"github.com/dd0wney/cluso-replset/pkg/validation"
)

// Client issues reads and writes against a replica set. Nothing is
// retried internally; every error is returned to the caller.
type Client struct {
	c       *cluster.Cluster
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Registry
}

// New creates a client for c
func New(c *cluster.Cluster, cfg Config) *Client {
	def := DefaultConfig()
	cfg.WriteTimeout = validation.DefaultOr(cfg.WriteTimeout, def.WriteTimeout)
	cfg.ReadTimeout = validation.DefaultOr(cfg.ReadTimeout, def.ReadTimeout)
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultRegistry()
	}

	return &Client{
		c:       c,
		cfg:     cfg,
		logger:  logging.OrDefault(cfg.Logger).With(logging.Component("client")),
		metrics: cfg.Metrics,
	}
}

// Cluster returns the replica set the client talks to
func (cl *Client) Cluster() *cluster.Cluster { return cl.c }

// StartSession creates a new session
func (cl *Client) StartSession(opts ...SessionOption) *Session {
	s := newSession(opts...)
	cl.metrics.ClientSessionsStarted.Inc()
	cl.logger.Debug("session started", logging.SessionID(s.id), logging.Bool("causal", s.causal))
	return s
}

// Write stores value under key and waits until concern is satisfied. It
// returns the sequence number the primary assigned.
func (cl *Client) Write(ctx context.Context, key string, value []byte, concern cluster.WriteConcern, s *Session) (uint64, error) {
	return cl.write(ctx, key, value, false, concern, s)
}

// Delete removes key by writing a tombstone
func (cl *Client) Delete(ctx context.Context, key string, concern cluster.WriteConcern, s *Session) (uint64, error) {
	return cl.write(ctx, key, nil, true, concern, s)
}

func (cl *Client) write(ctx context.Context, key string, value []byte, tombstone bool, concern cluster.WriteConcern, s *Session) (uint64, error) {
	if key == "" {
		return 0, fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	ctx, cancel := withDefaultTimeout(ctx, cl.cfg.WriteTimeout)
	defer cancel()

	timer := logging.StartTimer(cl.logger, "write acknowledged",
		logging.Key(key), logging.Concern(concern), logging.SessionID(s.ID()))
	op, err := cl.c.Propose(key, value, tombstone, s.ID(), s.tick())
	if err == nil {
		s.merge(op.Timestamp)
		err = cl.c.Quorum().AwaitDurable(ctx, op.Position(), concern)
	}
	elapsed := timer.Elapsed()
	cl.metrics.RecordWrite(concern.String(), writeResult(err), elapsed)

	if err != nil {
		cl.logger.Debug("write failed",
			logging.Key(key), logging.Concern(concern), logging.SessionID(s.ID()),
			logging.Latency(elapsed), logging.Error(err))
		return 0, err
	}
	timer.End()

	s.observe(key, op.Timestamp, concern != cluster.One)
	return op.Seq, nil
}

// Read returns the value of key
func (cl *Client) Read(ctx context.Context, key string, concern ReadConcern, s *Session, opts ...ReadOption) ([]byte, error) {
	v, err := cl.ReadVersion(ctx, key, concern, s, opts...)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

// Get reads key with the Local concern from the primary
func (cl *Client) Get(ctx context.Context, key string, s *Session) ([]byte, error) {
	return cl.Read(ctx, key, Local, s)
}

// ReadVersion returns the value of key together with the sequence number,
// term and timestamp that produced it.
//
// Local returns the chosen node's applied state at once. Majority waits
// until that version is held by a majority and retries if it is rolled
// back. In a causal session the read also waits while the node is behind
// the primary and fails with ErrCausalViolation if the node is caught up
// but still older than what the session has seen. Any other session gets
// the same treatment under Majority for versions a majority confirmed to
// it. A nil session never waits.
func (cl *Client) ReadVersion(ctx context.Context, key string, concern ReadConcern, s *Session, opts ...ReadOption) (cluster.Version, error) {
	o := readOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := withDefaultTimeout(ctx, cl.cfg.ReadTimeout)
	defer cancel()

	start := time.Now()
	v, err := cl.read(ctx, key, concern, s, o)
	elapsed := time.Since(start)
	cl.metrics.RecordRead(concern.String(), readResult(err), elapsed)

	if err != nil && !errors.Is(err, ErrNotFound) {
		cl.logger.Debug("read failed",
			logging.Key(key), logging.String("read_concern", concern.String()),
			logging.SessionID(s.ID()), logging.Latency(elapsed), logging.Error(err))
	}
	return v, err
}

func (cl *Client) read(ctx context.Context, key string, concern ReadConcern, s *Session, o readOptions) (cluster.Version, error) {
	waited := false
	for {
		changed := cl.c.Changed()

		n, err := cl.pick(o)
		if err != nil {
			return cluster.Version{}, err
		}

		v, found := n.Get(key)
		if floor, ok := s.floor(key, concern); ok && (!found || v.Timestamp < floor) {
			if cl.caughtUp(n) {
				return cluster.Version{}, fmt.Errorf("%w: %s on %s has %s, session saw %s",
					ErrCausalViolation, key, n.ID(), v.Timestamp, floor)
			}
			if !waited {
				waited = true
				cl.metrics.ClientCausalWaitsTotal.Inc()
			}
			if err := waitChange(ctx, changed); err != nil {
				return cluster.Version{}, err
			}
			continue
		}

		if concern == Majority && found {
			err := cl.c.Quorum().AwaitDurable(ctx, v.Position(), cluster.Majority)
			if errors.Is(err, cluster.ErrRolledBack) {
				// retry once the node has discarded the lost version
				if err := waitChange(ctx, changed); err != nil {
					return cluster.Version{}, err
				}
				continue
			}
			if err != nil {
				return cluster.Version{}, err
			}
		}

		if !found {
			return cluster.Version{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		s.observe(key, v.Timestamp, concern == Majority)
		if v.Tombstone {
			return cluster.Version{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return v, nil
	}
}

// Scan returns every live pair on the chosen node in key order. With
// Majority it waits until the node's applied state is majority-held.
// Scan records what it returns in the session but does not wait on the
// session's earlier observations.
func (cl *Client) Scan(ctx context.Context, concern ReadConcern, s *Session, opts ...ReadOption) ([]KeyValue, error) {
	o := readOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := withDefaultTimeout(ctx, cl.cfg.ReadTimeout)
	defer cancel()

	for {
		changed := cl.c.Changed()

		n, err := cl.pick(o)
		if err != nil {
			return nil, err
		}

		items := n.Scan()
		if concern == Majority {
			err := cl.c.Quorum().AwaitDurable(ctx, n.LastPosition(), cluster.Majority)
			if errors.Is(err, cluster.ErrRolledBack) {
				if err := waitChange(ctx, changed); err != nil {
					return nil, err
				}
				continue
			}
			if err != nil {
				return nil, err
			}
		}

		out := make([]KeyValue, len(items))
		for i, it := range items {
			s.observe(it.Key, it.Timestamp, concern == Majority)
			out[i] = KeyValue{Key: it.Key, Value: it.Value}
		}
		return out, nil
	}
}

// pick resolves the read preference to a reachable node
func (cl *Client) pick(o readOptions) (*cluster.Node, error) {
	switch o.pref {
	case fromNode:
		n, err := cl.c.Node(o.nodeID)
		if err != nil {
			return nil, err
		}
		if !n.Reachable() {
			return nil, fmt.Errorf("%s: %w", n.ID(), cluster.ErrNodeUnreachable)
		}
		return n, nil

	case preferSecondary:
		for _, n := range cl.c.Nodes() {
			if n.Role() == cluster.RoleSecondary {
				return n, nil
			}
		}
		return nil, fmt.Errorf("%w: no reachable secondary", ErrNoReachableNode)

	default:
		if p, _, err := cl.c.Primary(); err == nil {
			return p, nil
		}
		var best *cluster.Node
		for _, n := range cl.c.Nodes() {
			if !n.Reachable() {
				continue
			}
			if best == nil || best.LastPosition().Less(n.LastPosition()) {
				best = n
			}
		}
		if best == nil {
			return nil, fmt.Errorf("%w: no reachable member", ErrNoReachableNode)
		}
		return best, nil
	}
}

// caughtUp reports whether n holds everything the primary has. Without a
// primary no node counts as caught up.
func (cl *Client) caughtUp(n *cluster.Node) bool {
	p, _, err := cl.c.Primary()
	if err != nil {
		return false
	}
	return n == p || n.LastPosition() == p.LastPosition()
}

// waitChange blocks until the cluster changes or ctx ends
func waitChange(ctx context.Context, changed <-chan struct{}) error {
	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("waiting for node to catch up: %w", ErrTimeout)
		}
		return ctx.Err()
	}
}

// withDefaultTimeout applies d when ctx carries no deadline
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func writeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoPrimaryAvailable):
		return "no_primary"
	case errors.Is(err, ErrRolledBack):
		return "rolled_back"
	default:
		return "error"
	}
}

func readResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCausalViolation):
		return "causal_violation"
	default:
		return "error"
	}
}
