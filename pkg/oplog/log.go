package oplog

import (
	"fmt"
	"iter"
	"sync"
)

// Log is an append-only sequence of operations with contiguous sequence
// numbers. Index 0 holds a sentinel entry so real operations start at 1
// and LastSeq()==0 means the log is empty.
//
// Concurrent Safety:
// 1. All access is guarded by an RWMutex
// 2. Readers receive copies of entries; stored operations are never mutated
// 3. EntriesFrom re-acquires the read lock per step, so it never blocks writers
type Log struct {
	mu        sync.RWMutex
	ents      []Operation
	committed uint64
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{ents: []Operation{{Seq: 0, Term: 0}}}
}

// Len returns the length of the log including the sentinel entry, which is
// also the sequence number the next append must carry.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return uint64(len(l.ents))
}

// LastSeq returns the sequence number of the newest operation (0 if empty)
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.ents[len(l.ents)-1].Seq
}

// LastTerm returns the term of the newest operation (0 if empty)
func (l *Log) LastTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.ents[len(l.ents)-1].Term
}

// LastPosition returns the position of the newest operation
func (l *Log) LastPosition() Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.ents[len(l.ents)-1].Position()
}

// Append adds op to the end of the log. It fails with ErrSequenceConflict
// unless op.Seq equals Len().
func (l *Log) Append(op Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if op.Seq != uint64(len(l.ents)) {
		return fmt.Errorf("%w: got seq %d, expected %d", ErrSequenceConflict, op.Seq, len(l.ents))
	}
	if op.Value != nil {
		op.Value = append([]byte(nil), op.Value...)
	}
	l.ents = append(l.ents, op)
	return nil
}

// Entry returns the operation at seq
func (l *Log) Entry(seq uint64) (Operation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq >= uint64(len(l.ents)) {
		return Operation{}, false
	}
	return l.ents[seq], true
}

// Matches reports whether the log holds an operation at pos.Seq that was
// appended in pos.Term.
func (l *Log) Matches(pos Position) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if pos.Seq >= uint64(len(l.ents)) {
		return false
	}
	return l.ents[pos.Seq].Term == pos.Term
}

// TruncateAfter discards every operation with a sequence number greater
// than seq. Truncating into the committed prefix fails.
func (l *Log) TruncateAfter(seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq < l.committed {
		return fmt.Errorf("%w: truncate to %d below commit %d", ErrTruncateCommitted, seq, l.committed)
	}
	if seq+1 < uint64(len(l.ents)) {
		clear(l.ents[seq+1:])
		l.ents = l.ents[:seq+1]
	}
	return nil
}

// EntriesFrom yields the operations starting at seq in order. The sequence
// is lazy: each step reads the log afresh, so entries appended while
// iterating are included. It can be ranged over any number of times.
func (l *Log) EntriesFrom(seq uint64) iter.Seq[Operation] {
	if seq == 0 {
		seq = 1
	}
	return func(yield func(Operation) bool) {
		for next := seq; ; next++ {
			op, ok := l.Entry(next)
			if !ok {
				return
			}
			if !yield(op) {
				return
			}
		}
	}
}

// SetCommitted raises the commit floor. It never moves backwards and never
// passes the end of the log.
func (l *Log) SetCommitted(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.ents[len(l.ents)-1].Seq
	if seq > last {
		seq = last
	}
	if seq > l.committed {
		l.committed = seq
	}
}

// Committed returns the commit floor
func (l *Log) Committed() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.committed
}

// CommonPrefix returns the highest sequence number at which l and other
// hold the same operation. By the log matching property every earlier
// entry is identical as well.
func (l *Log) CommonPrefix(other *Log) uint64 {
	if l == other {
		return l.LastSeq()
	}

	seq := l.LastSeq()
	if o := other.LastSeq(); o < seq {
		seq = o
	}
	for ; seq > 0; seq-- {
		op, ok := l.Entry(seq)
		if ok && other.Matches(op.Position()) {
			return seq
		}
	}
	return 0
}
