package oplog

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestLogInvariants uses property-based testing to check that any mix of
// appends and truncations keeps sequence numbers contiguous
func TestLogInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("sequence numbers stay contiguous", prop.ForAll(
		func(actions []uint8) bool {
			l := NewLog()
			var term uint64 = 1
			for _, a := range actions {
				if a%5 == 0 && l.LastSeq() > 0 {
					// truncate somewhere in the tail
					_ = l.TruncateAfter(uint64(a) % l.LastSeq())
					term++
					continue
				}
				if err := l.Append(Operation{Seq: l.Len(), Term: term, Key: "k"}); err != nil {
					return false
				}
			}

			var expect uint64 = 1
			for o := range l.EntriesFrom(1) {
				if o.Seq != expect {
					return false
				}
				expect++
			}
			return expect == l.Len()
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("out-of-order appends are always rejected", prop.ForAll(
		func(n uint8, offset uint64) bool {
			l := NewLog()
			for i := uint8(0); i < n; i++ {
				_ = l.Append(Operation{Seq: l.Len(), Term: 1})
			}
			bad := l.Len() + 1 + offset
			return l.Append(Operation{Seq: bad, Term: 1}) != nil
		},
		gen.UInt8Range(0, 50),
		gen.UInt64Range(0, 1000),
	))

	properties.TestingRun(t)
}
