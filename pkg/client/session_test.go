package client

import (
	"testing"

	"github.com/dd0wney/cluso-replset/pkg/clock"
)

// TestNilSession tests that a nil session is a valid no-op
func TestNilSession(t *testing.T) {
	var s *Session

	if s.ID() != "" {
		t.Errorf("Expected empty ID, got %q", s.ID())
	}
	if s.Causal() {
		t.Error("Expected nil session to be non-causal")
	}
	if s.tick() != 0 {
		t.Error("Expected nil session tick to be 0")
	}
	s.merge(5)
	s.observe("k", 5, true)
	if got := s.Observed("k"); got != 0 {
		t.Errorf("Expected 0, got %s", got)
	}
	if _, ok := s.floor("k", Majority); ok {
		t.Error("Expected no floor for nil session")
	}
}

// TestSessionObserve tests the per-key high-water mark
func TestSessionObserve(t *testing.T) {
	s := newSession(WithCausalConsistency(), WithSessionID("s1"))

	if s.ID() != "s1" {
		t.Errorf("Expected ID s1, got %q", s.ID())
	}

	s.observe("a", 7, false)
	s.observe("a", 3, true)
	s.observe("b", 0, true)

	if got := s.Observed("a"); got != clock.Timestamp(7) {
		t.Errorf("Expected 7, got %s", got)
	}
	if got := s.Observed("b"); got != 0 {
		t.Errorf("Expected 0 for ignored zero timestamp, got %s", got)
	}
	if s.ClusterTime() <= 7 {
		t.Errorf("Expected cluster time past 7, got %s", s.ClusterTime())
	}

	for _, concern := range []ReadConcern{Local, Majority} {
		floor, ok := s.floor("a", concern)
		if !ok || floor != 7 {
			t.Errorf("Expected %s floor 7, got %s (%v)", concern, floor, ok)
		}
	}
}

// TestSessionFloorWithoutCausal tests that a plain session is bounded
// only under Majority, and only by majority-confirmed versions
func TestSessionFloorWithoutCausal(t *testing.T) {
	s := newSession()
	s.observe("a", 4, false)

	if _, ok := s.floor("a", Local); ok {
		t.Error("Expected no Local floor for non-causal session")
	}
	if _, ok := s.floor("a", Majority); ok {
		t.Error("Expected no Majority floor for an unconfirmed version")
	}

	s.observe("a", 6, true)
	s.observe("a", 9, false)
	if floor, ok := s.floor("a", Majority); !ok || floor != 6 {
		t.Errorf("Expected Majority floor 6, got %s (%v)", floor, ok)
	}
	if _, ok := s.floor("a", Local); ok {
		t.Error("Expected no Local floor for non-causal session")
	}
	if s.ID() == "" {
		t.Error("Expected generated session ID")
	}
}

// TestSessionTickIsMonotonic tests that each write gets a fresh session time
func TestSessionTickIsMonotonic(t *testing.T) {
	s := newSession()
	prev := s.tick()
	for i := 0; i < 100; i++ {
		next := s.tick()
		if !prev.Before(next) {
			t.Fatalf("Expected %s < %s", prev, next)
		}
		prev = next
	}
}
