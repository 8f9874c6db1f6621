// Package oplog implements the append-only replicated operation log that
// every cluster member owns a copy of.
package oplog

import (
	"fmt"

	"github.com/dd0wney/cluso-replset/pkg/clock"
)

// Operation is a single replicated write. Operations are immutable once
// appended to a log.
type Operation struct {
	Seq       uint64          // Position in the log, starting at 1
	Term      uint64          // Election term of the primary that appended it
	Key       string          // Key written
	Value     []byte          // Value written (nil for tombstones)
	Tombstone bool            // True when the operation deletes Key
	SessionID string          // Session that issued the write
	Timestamp clock.Timestamp // Causal timestamp assigned by the primary
}

// Position identifies an operation by sequence number and term. Two logs
// holding the same Position share an identical prefix up to Seq.
type Position struct {
	Seq  uint64
	Term uint64
}

// Position returns the log position of the operation
func (op Operation) Position() Position {
	return Position{Seq: op.Seq, Term: op.Term}
}

// String renders the position as seq@term
func (p Position) String() string {
	return fmt.Sprintf("%d@%d", p.Seq, p.Term)
}

// IsZero reports whether p refers to the sentinel entry
func (p Position) IsZero() bool {
	return p.Seq == 0
}

// Less orders positions by term first and sequence second, i.e. by log
// freshness.
func (p Position) Less(other Position) bool {
	if p.Term != other.Term {
		return p.Term < other.Term
	}
	return p.Seq < other.Seq
}
