package cluster

import "errors"

// Membership errors
var (
	ErrEmptyMembership = errors.New("replica set needs at least one member")
	ErrDuplicateMember = errors.New("member ID listed more than once")
	ErrInvalidMemberID = errors.New("invalid member ID")
	ErrNodeNotFound    = errors.New("node not found in membership")
)

// Write and availability errors. ErrNoPrimaryAvailable, ErrTimeout and
// ErrRolledBack are retryable by the caller.
var (
	ErrNoPrimaryAvailable = errors.New("no primary available")
	ErrNotPrimary         = errors.New("node is not the primary")
	ErrNodeUnreachable    = errors.New("node is unreachable")
	ErrTimeout            = errors.New("timed out waiting for write concern")
	ErrRolledBack         = errors.New("write was rolled back by a failover")
)

// Election errors
var (
	ErrNoElectableNode     = errors.New("no electable node")
	ErrNoReachableMajority = errors.New("fewer than a majority of members reachable")
	ErrDualPrimaryDetected = errors.New("dual primary detected - split brain")
)
