package client

import (
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-replset/pkg/clock"
)

func newSession(opts ...SessionOption) *Session {
	s := &Session{
		id:        uuid.NewString(),
		clk:       clock.New(),
		observed:  make(map[string]clock.Timestamp),
		confirmed: make(map[string]clock.Timestamp),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session ID; a nil session has none
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Causal reports whether the session enforces causal reads
func (s *Session) Causal() bool {
	return s != nil && s.causal
}

// ClusterTime returns the newest logical time the session has seen
func (s *Session) ClusterTime() clock.Timestamp {
	if s == nil {
		return 0
	}
	return s.clk.Now()
}

// Observed returns the newest timestamp the session has seen for key
func (s *Session) Observed(key string) clock.Timestamp {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observed[key]
}

// tick advances the session clock for a new write
func (s *Session) tick() clock.Timestamp {
	if s == nil {
		return 0
	}
	return s.clk.Tick()
}

// merge folds a timestamp assigned by the primary into the session clock
func (s *Session) merge(ts clock.Timestamp) {
	if s == nil {
		return
	}
	s.clk.Merge(ts)
}

// observe records that the session has seen key at ts. durable marks a
// version a majority is known to hold.
func (s *Session) observe(key string, ts clock.Timestamp, durable bool) {
	if s == nil || ts == 0 {
		return
	}
	s.clk.Merge(ts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ts > s.observed[key] {
		s.observed[key] = ts
	}
	if durable && ts > s.confirmed[key] {
		s.confirmed[key] = ts
	}
}

// floor returns the oldest version of key the session may read under
// concern. A causal session is bounded by everything it has seen; any
// other session is bounded under Majority by what a majority confirmed.
func (s *Session) floor(key string, concern ReadConcern) (clock.Timestamp, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var ts clock.Timestamp
	switch {
	case s.causal:
		ts = s.observed[key]
	case concern == Majority:
		ts = s.confirmed[key]
	}
	return ts, ts > 0
}
