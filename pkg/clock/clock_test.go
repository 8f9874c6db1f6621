package clock

import (
	"sync"
	"testing"
)

func TestTickIsMonotonic(t *testing.T) {
	c := New()

	prev := c.Now()
	for i := 0; i < 100; i++ {
		next := c.Tick()
		if !prev.Before(next) {
			t.Fatalf("Expected %d < %d after tick", prev, next)
		}
		prev = next
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name   string
		local  int
		remote Timestamp
		want   Timestamp
	}{
		{"remote ahead", 2, 10, 11},
		{"local ahead", 10, 3, 11},
		{"equal", 5, 5, 6},
		{"zero remote", 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			for i := 0; i < tt.local; i++ {
				c.Tick()
			}
			if got := c.Merge(tt.remote); got != tt.want {
				t.Errorf("Merge(%d) = %d, want %d", tt.remote, got, tt.want)
			}
			if c.Now() != tt.want {
				t.Errorf("Now() = %d after merge, want %d", c.Now(), tt.want)
			}
		})
	}
}

func TestObserveDoesNotTick(t *testing.T) {
	c := New()
	c.Observe(7)
	if c.Now() != 7 {
		t.Errorf("Expected clock at 7, got %d", c.Now())
	}

	c.Observe(3)
	if c.Now() != 7 {
		t.Errorf("Observe must never move the clock backwards, got %d", c.Now())
	}
}

func TestCompare(t *testing.T) {
	if Timestamp(1).Compare(2) != -1 {
		t.Error("Expected 1 < 2")
	}
	if Timestamp(2).Compare(1) != 1 {
		t.Error("Expected 2 > 1")
	}
	if Timestamp(4).Compare(4) != 0 {
		t.Error("Expected 4 == 4")
	}
}

// TestCausalChainAcrossSessions mirrors a reply that is written after
// reading the original post.
func TestCausalChainAcrossSessions(t *testing.T) {
	alice := New()
	bob := New()

	// Bob has been busy and is far ahead of Alice.
	for i := 0; i < 20; i++ {
		bob.Tick()
	}

	post := alice.Tick()
	bob.Merge(post)
	reply := bob.Tick()

	if !post.Before(reply) {
		t.Errorf("Reply %d must be ordered after post %d", reply, post)
	}
}

func TestConcurrentTicksAreUnique(t *testing.T) {
	c := New()

	var mu sync.Mutex
	seen := make(map[Timestamp]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ts := c.Tick()
				mu.Lock()
				if seen[ts] {
					mu.Unlock()
					t.Errorf("Duplicate timestamp %d", ts)
					return
				}
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if c.Now() != 1000 {
		t.Errorf("Expected clock at 1000, got %d", c.Now())
	}
}
