package clock

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestClockProperties checks the Lamport rules for arbitrary event mixes
func TestClockProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("merge returns max(local, remote)+1", prop.ForAll(
		func(ticks uint8, remote uint64) bool {
			c := New()
			for i := uint8(0); i < ticks; i++ {
				c.Tick()
			}
			local := c.Now()

			want := local
			if Timestamp(remote) > want {
				want = Timestamp(remote)
			}
			want++

			return c.Merge(Timestamp(remote)) == want
		},
		gen.UInt8(),
		gen.UInt64Range(0, 1<<40),
	))

	properties.Property("every event is strictly after the previous one", prop.ForAll(
		func(remotes []uint64) bool {
			c := New()
			prev := c.Now()
			for i, r := range remotes {
				var next Timestamp
				if i%2 == 0 {
					next = c.Tick()
				} else {
					next = c.Merge(Timestamp(r))
				}
				if !prev.Before(next) {
					return false
				}
				prev = next
			}
			return true
		},
		gen.SliceOf(gen.UInt64Range(0, 1<<40)),
	))

	properties.TestingRun(t)
}
