package client

import (
	"errors"

	"github.com/dd0wney/cluso-replset/pkg/cluster"
)

// Read errors
var (
	ErrNotFound        = errors.New("key not found")
	ErrCausalViolation = errors.New("node is caught up but older than the session has observed")
	ErrNoReachableNode = errors.New("no reachable node matches the read preference")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Errors surfaced from the cluster, re-exported so callers need only this
// package
var (
	ErrTimeout            = cluster.ErrTimeout
	ErrNoPrimaryAvailable = cluster.ErrNoPrimaryAvailable
	ErrRolledBack         = cluster.ErrRolledBack
)
