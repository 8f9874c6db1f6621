package cluster

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/dd0wney/cluso-replset/pkg/clock"
	"github.com/dd0wney/cluso-replset/pkg/oplog"
)

// NewNode creates a secondary with an empty log
func NewNode(id string) *Node {
	return &Node{
		id:    id,
		log:   oplog.NewLog(),
		clk:   clock.New(),
		state: make(map[string]Version),
	}
}

// ID returns the member ID
func (n *Node) ID() string { return n.id }

// Role returns the current role
func (n *Node) Role() Role { return Role(n.role.Load()) }

// Reachable reports whether the node can currently be contacted
func (n *Node) Reachable() bool { return n.Role() != RoleUnreachable }

// LastAppliedSeq returns the sequence number of the newest applied operation
func (n *Node) LastAppliedSeq() uint64 { return n.lastApplied.Load() }

// LastPosition returns the position of the newest operation in the log
func (n *Node) LastPosition() oplog.Position { return n.log.LastPosition() }

// Term returns the highest term this node has seen
func (n *Node) Term() uint64 { return n.term.Load() }

// Clock returns the node's current logical time
func (n *Node) Clock() clock.Timestamp { return n.clk.Now() }

// Entries returns a lazy view of the node's log starting at seq
func (n *Node) Entries(seq uint64) iter.Seq[oplog.Operation] {
	return n.log.EntriesFrom(seq)
}

// propose appends a new operation on the primary. It assigns the next
// sequence number and a timestamp merged from the caller's session clock,
// so on one primary timestamps grow with Seq.
func (n *Node) propose(term uint64, key string, value []byte, tombstone bool, sessionID string, sessionTS clock.Timestamp) (oplog.Operation, error) {
	n.mu.Lock()
	switch {
	case n.Role() == RoleUnreachable:
		n.mu.Unlock()
		return oplog.Operation{}, fmt.Errorf("%s: %w", n.id, ErrNodeUnreachable)
	case n.Role() != RolePrimary || n.Term() != term:
		n.mu.Unlock()
		return oplog.Operation{}, fmt.Errorf("%s in term %d: %w", n.id, term, ErrNotPrimary)
	}

	op := oplog.Operation{
		Seq:       n.log.Len(),
		Term:      term,
		Key:       key,
		Value:     value,
		Tombstone: tombstone,
		SessionID: sessionID,
		Timestamp: n.clk.Merge(sessionTS),
	}
	if err := n.log.Append(op); err != nil {
		n.mu.Unlock()
		return oplog.Operation{}, err
	}
	n.applyLocked(op)
	n.mu.Unlock()

	n.fireAppend()
	return op, nil
}

// Replicate appends and applies an operation copied from the primary.
// Replicating an operation the node already holds at the same position is
// a no-op; anything else out of order fails with oplog.ErrSequenceConflict.
func (n *Node) Replicate(op oplog.Operation) error {
	n.mu.Lock()
	if n.Role() == RoleUnreachable {
		n.mu.Unlock()
		return fmt.Errorf("%s: %w", n.id, ErrNodeUnreachable)
	}
	if op.Seq < n.log.Len() && n.log.Matches(op.Position()) {
		n.mu.Unlock()
		return nil
	}
	if err := n.log.Append(op); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("%s replicate %s: %w", n.id, op.Position(), err)
	}
	n.clk.Observe(op.Timestamp)
	if op.Term > n.Term() {
		n.term.Store(op.Term)
	}
	n.applyLocked(op)
	n.mu.Unlock()

	n.fireAppend()
	return nil
}

// applyLocked folds op into the key state. Caller holds mu.
func (n *Node) applyLocked(op oplog.Operation) {
	n.state[op.Key] = Version{
		Value:     op.Value,
		Seq:       op.Seq,
		Term:      op.Term,
		Timestamp: op.Timestamp,
		Tombstone: op.Tombstone,
	}
	n.lastApplied.Store(op.Seq)
}

// Get returns the applied version of key. Deleted keys are reported with
// Tombstone set so callers can still order them.
func (n *Node) Get(key string) (Version, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	v, ok := n.state[key]
	if !ok {
		return Version{}, false
	}
	v.Value = slices.Clone(v.Value)
	return v, true
}

// Scan returns every live key in key order
func (n *Node) Scan() []Item {
	n.mu.RLock()
	items := make([]Item, 0, len(n.state))
	for k, v := range n.state {
		if v.Tombstone {
			continue
		}
		v.Value = slices.Clone(v.Value)
		items = append(items, Item{Key: k, Version: v})
	}
	n.mu.RUnlock()

	slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.Key, b.Key) })
	return items
}

// MarkUnreachable cuts the node off. It keeps its log; if it was the
// primary the owning cluster starts an election.
func (n *Node) MarkUnreachable() {
	n.mu.Lock()
	if n.Role() == RoleUnreachable {
		n.mu.Unlock()
		return
	}
	n.role.Store(int32(RoleUnreachable))
	n.mu.Unlock()

	if h := n.hooks.onReachability; h != nil {
		h(n, false)
	}
}

// MarkReachable reconnects the node. It always returns as a secondary,
// even if it was the primary when it was cut off.
func (n *Node) MarkReachable() {
	n.mu.Lock()
	if n.Role() != RoleUnreachable {
		n.mu.Unlock()
		return
	}
	n.role.Store(int32(RoleSecondary))
	n.mu.Unlock()

	if h := n.hooks.onReachability; h != nil {
		h(n, true)
	}
}

// promote makes the node primary for term. It fails if the node was cut
// off after being chosen.
func (n *Node) promote(term uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Role() == RoleUnreachable {
		return fmt.Errorf("%s: %w", n.id, ErrNodeUnreachable)
	}
	n.term.Store(term)
	n.role.Store(int32(RolePrimary))
	return nil
}

// demote turns a primary back into a secondary. Unreachable nodes keep
// their role.
func (n *Node) demote() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Role() == RolePrimary {
		n.role.Store(int32(RoleSecondary))
	}
}

// truncateAfter discards log entries after seq and rebuilds the key state
// from what remains. It returns the number of entries discarded.
func (n *Node) truncateAfter(seq uint64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	last := n.log.LastSeq()
	if seq >= last {
		return 0, nil
	}
	if err := n.log.TruncateAfter(seq); err != nil {
		return 0, fmt.Errorf("%s: %w", n.id, err)
	}

	clear(n.state)
	n.lastApplied.Store(0)
	for op := range n.log.EntriesFrom(1) {
		n.applyLocked(op)
	}
	return int(last - seq), nil
}

// setCommitted raises the node's truncation floor
func (n *Node) setCommitted(seq uint64) {
	n.log.SetCommitted(seq)
}

func (n *Node) fireAppend() {
	if h := n.hooks.onAppend; h != nil {
		h(n)
	}
}
