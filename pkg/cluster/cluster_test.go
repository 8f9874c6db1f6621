package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

func TestBootstrapValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		ids     []string
		wantErr error
	}{
		{"empty membership", testConfig(), nil, ErrEmptyMembership},
		{"duplicate member", testConfig(), []string{"n1", "n2", "n1"}, ErrDuplicateMember},
		{"invalid member id", testConfig(), []string{"n1", "bad id"}, ErrInvalidMemberID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bootstrap(ctx, tt.cfg, tt.ids)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	bad := testConfig()
	bad.ElectionTimeout = 0
	_, err := Bootstrap(ctx, bad, []string{"n1"})
	assert.ErrorContains(t, err, "ElectionTimeout")
}

func TestBootstrapElectsLowestID(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n2", "n3", "n1")

	p, term, err := c.Primary()
	require.NoError(t, err)
	assert.Equal(t, "n1", p.ID())
	assert.Equal(t, uint64(1), term)
	assert.Equal(t, PhaseStable, c.Election().Phase())
	assert.Equal(t, 3, c.Size())

	_, err = c.Node("n9")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestReplicationReachesEverySecondary(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n1", "n2", "n3")

	op, err := c.Propose("u001", []byte("alice"), false, "", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, c.Quorum().AwaitDurable(ctx, op.Position(), All))

	for _, n := range c.Nodes() {
		v, ok := n.Get("u001")
		require.True(t, ok, "node %s missing u001", n.ID())
		assert.Equal(t, "alice", string(v.Value))
	}
	assert.Equal(t, op.Position(), c.Commit())
}

// All-concern writes converge on every reachable node once a partition heals
func TestAllConcernBlocksUntilPartitionHeals(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n1", "n2", "n3")
	n3 := mustNode(t, c, "n3")
	n3.MarkUnreachable()

	op, err := c.Propose("k", []byte("v"), false, "", 0)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Quorum().AwaitDurable(short, op.Position(), All), ErrTimeout)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventually)
		defer cancel()
		done <- c.Quorum().AwaitDurable(ctx, op.Position(), All)
	}()

	n3.MarkReachable()
	require.NoError(t, <-done)

	for _, n := range c.Nodes() {
		assert.True(t, n.log.Matches(op.Position()), "node %s did not converge", n.ID())
	}
}

// Election liveness: one new primary, writes refused while electing
func TestFailoverElectsExactlyOnePrimary(t *testing.T) {
	cfg := testConfig()
	cfg.ElectionTimeout = 100 * time.Millisecond
	c := newTestCluster(t, cfg, "n1", "n2", "n3")

	op, err := c.Propose("before", []byte("1"), false, "", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, c.Quorum().AwaitDurable(ctx, op.Position(), Majority))

	mustNode(t, c, "n1").MarkUnreachable()

	assert.Equal(t, PhaseElecting, c.Election().Phase())
	_, err = c.Propose("during", []byte("2"), false, "", 0)
	assert.ErrorIs(t, err, ErrNoPrimaryAvailable)

	require.Eventually(t, func() bool {
		return c.Election().Phase() == PhaseStable
	}, eventually, tick)

	p, term, err := c.Primary()
	require.NoError(t, err)
	assert.NotEqual(t, "n1", p.ID())
	assert.Equal(t, uint64(2), term)

	primaries := 0
	for _, n := range c.Nodes() {
		if n.Role() == RolePrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)

	after, err := c.Propose("after", []byte("3"), false, "", 0)
	require.NoError(t, err)
	require.NoError(t, c.Quorum().AwaitDurable(ctx, after.Position(), Majority))
}

func TestReturningPrimaryRejoinsAsSecondary(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n1", "n2", "n3")
	n1 := mustNode(t, c, "n1")

	n1.MarkUnreachable()
	require.Eventually(t, func() bool {
		_, _, err := c.Primary()
		return err == nil
	}, eventually, tick)

	op, err := c.Propose("k", []byte("v"), false, "", 0)
	require.NoError(t, err)

	n1.MarkReachable()
	assert.Equal(t, RoleSecondary, n1.Role())

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, c.Quorum().AwaitDurable(ctx, op.Position(), All))

	v, ok := n1.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v.Value))
}

func TestElectionRetriesUntilCandidateReturns(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n1", "n2", "n3")

	for _, id := range []string{"n2", "n3", "n1"} {
		mustNode(t, c, id).MarkUnreachable()
	}

	require.Eventually(t, func() bool { return c.Election().Rounds() >= 3 }, eventually, tick)
	assert.Equal(t, PhaseElecting, c.Election().Phase())

	mustNode(t, c, "n3").MarkReachable()
	require.Eventually(t, func() bool {
		p, _, err := c.Primary()
		return err == nil && p.ID() == "n3"
	}, eventually, tick)
}

// Eventual consistency: a lagging secondary is stale, then converges
func TestLinkDelayDelaysReplication(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n1", "n2", "n3")
	require.NoError(t, c.SetLinkDelay("n3", 200*time.Millisecond))
	assert.ErrorIs(t, c.SetLinkDelay("nx", time.Second), ErrNodeNotFound)
	assert.Error(t, c.SetLinkDelay("n3", -time.Second))

	op, err := c.Propose("k", []byte("v"), false, "", 0)
	require.NoError(t, err)

	n3 := mustNode(t, c, "n3")
	_, ok := n3.Get("k")
	assert.False(t, ok, "expected lagging n3 to be stale right after the write")

	require.Eventually(t, func() bool { return n3.log.Matches(op.Position()) }, eventually, tick)
}

func TestDescribeAndStatus(t *testing.T) {
	c := newTestCluster(t, testConfig(), "n1", "n2", "n3")

	op, err := c.Propose("k", []byte("v"), false, "", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, c.Quorum().AwaitDurable(ctx, op.Position(), All))

	mustNode(t, c, "n3").MarkUnreachable()

	desc := c.Describe()
	require.Len(t, desc, 3)
	assert.Equal(t, RolePrimary, desc["n1"].Role)
	assert.Equal(t, RoleSecondary, desc["n2"].Role)
	assert.Equal(t, RoleUnreachable, desc["n3"].Role)
	assert.False(t, desc["n3"].Reachable)
	assert.Equal(t, uint64(1), desc["n2"].LastAppliedSeq)

	st := c.Status()
	assert.Equal(t, "n1", st.Primary)
	assert.Equal(t, PhaseStable, st.Phase)
	assert.Equal(t, 2, st.Reachable)
	assert.Equal(t, 3, st.Members)
	assert.Equal(t, op.Position(), st.Commit)

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"stable"`)
	assert.Contains(t, string(data), `"role":"unreachable"`)

	var back Status
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, PhaseStable, back.Phase)
	assert.Equal(t, RoleUnreachable, back.Nodes[2].Role)

	var bad Role
	assert.Error(t, bad.UnmarshalText([]byte("arbiter")))
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, err := Bootstrap(ctx, testConfig(), []string{"n1"})
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestSingleMemberSet(t *testing.T) {
	c := newTestCluster(t, testConfig(), "solo")

	op, err := c.Propose("k", []byte("v"), false, "", 0)
	require.NoError(t, err)
	for _, wc := range WriteConcerns {
		assert.True(t, c.Quorum().IsDurable(op.Position(), wc), "concern %s", wc)
	}
}

func TestProposeDuringElectionIsRetryable(t *testing.T) {
	c := newIdleCluster(t, "n1", "n2", "n3")
	mustElect(t, c)
	mustNode(t, c, "n1").MarkUnreachable()

	_, err := c.Propose("k", []byte("v"), false, "", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPrimaryAvailable))
}
