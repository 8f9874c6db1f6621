package cluster

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// testConfig returns fast timings with quiet logging and an isolated registry
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ElectionTimeout = 20 * time.Millisecond
	cfg.ElectionRetryInterval = 10 * time.Millisecond
	cfg.ReplicationPollInterval = 5 * time.Millisecond
	cfg.Logger = logging.NewNopLogger()
	cfg.Metrics = metrics.NewRegistry()
	return cfg
}

// newTestCluster bootstraps a running cluster that is closed when the test ends
func newTestCluster(t *testing.T, cfg Config, ids ...string) *Cluster {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Bootstrap(ctx, cfg, ids)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// newIdleCluster builds a cluster without replication or election tasks,
// so tests can drive every step by hand
func newIdleCluster(t *testing.T, ids ...string) *Cluster {
	t.Helper()

	cfg := testConfig().withDefaults()
	members, err := newMembership(ids)
	if err != nil {
		t.Fatalf("newMembership failed: %v", err)
	}

	c := &Cluster{
		cfg:        cfg,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		members:    members,
		progressCh: make(chan struct{}),
		cancel:     func() {},
		group:      &errgroup.Group{},
	}
	c.quorum = &QuorumCoordinator{c: c}
	c.election = newElectionManager(c)
	c.repl = newReplicator(c)
	for _, n := range members.nodes {
		n.hooks = nodeHooks{onAppend: c.onAppend, onReachability: c.onReachability}
	}
	return c
}

// mustElect runs one election round and fails the test on error
func mustElect(t *testing.T, c *Cluster) string {
	t.Helper()
	id, err := c.election.RunElection(context.Background())
	if err != nil {
		t.Fatalf("RunElection failed: %v", err)
	}
	return id
}

// mustPropose writes key=value through the primary
func mustPropose(t *testing.T, c *Cluster, key, value string) oplog.Operation {
	t.Helper()
	op, err := c.Propose(key, []byte(value), false, "", 0)
	if err != nil {
		t.Fatalf("Propose(%s) failed: %v", key, err)
	}
	return op
}

// syncAll runs one replication pass for every member
func syncAll(c *Cluster) {
	for _, n := range c.members.nodes {
		c.repl.syncOnce(context.Background(), n)
	}
}

func mustNode(t *testing.T, c *Cluster, id string) *Node {
	t.Helper()
	n, err := c.Node(id)
	if err != nil {
		t.Fatalf("Node(%s): %v", id, err)
	}
	return n
}
