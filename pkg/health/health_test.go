package health

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-replset/pkg/logging"
)

func TestNewHealthChecker(t *testing.T) {
	hc := NewHealthChecker()

	if hc == nil {
		t.Fatal("NewHealthChecker returned nil")
	}
	if hc.checks == nil || hc.readyChecks == nil || hc.liveChecks == nil {
		t.Error("check maps not initialized")
	}
	if hc.started.IsZero() {
		t.Error("start time not recorded")
	}
}

func TestRegisterCheckKinds(t *testing.T) {
	hc := NewHealthChecker()

	var general, ready, live int
	hc.RegisterCheck("general", func() Check { general++; return Check{Status: StatusHealthy} })
	hc.RegisterReadinessCheck("ready", func() Check { ready++; return Check{Status: StatusHealthy} })
	hc.RegisterLivenessCheck("live", func() Check { live++; return Check{Status: StatusHealthy} })

	hc.Check()
	hc.CheckReadiness()
	hc.CheckLiveness()
	hc.CheckLiveness()

	if general != 1 || ready != 1 || live != 2 {
		t.Errorf("Expected calls 1/1/2, got %d/%d/%d", general, ready, live)
	}
}

func TestCheckFillsNameAndTiming(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck("anon", func() Check { return Check{Status: StatusHealthy} })

	resp := hc.Check()
	c := resp.Checks["anon"]
	if c.Name != "anon" {
		t.Errorf("Expected name anon, got %q", c.Name)
	}
	if c.LastChecked.IsZero() {
		t.Error("Expected LastChecked to be set")
	}
	if resp.Uptime < 0 {
		t.Errorf("Expected non-negative uptime, got %v", resp.Uptime)
	}
}

func TestWorstStatusWins(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		expected Status
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy beats degraded", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for i, s := range tt.statuses {
				s := s
				hc.RegisterCheck(string(rune('a'+i)), func() Check { return Check{Status: s} })
			}
			if got := hc.Check().Status; got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClusterCheck(t *testing.T) {
	tests := []struct {
		name     string
		state    ClusterState
		expected Status
	}{
		{
			name:     "stable with primary",
			state:    ClusterState{Phase: "stable", Primary: "n1", Reachable: 3, Members: 3},
			expected: StatusHealthy,
		},
		{
			name:     "member down",
			state:    ClusterState{Phase: "stable", Primary: "n2", Reachable: 2, Members: 3},
			expected: StatusDegraded,
		},
		{
			name:     "electing",
			state:    ClusterState{Phase: "electing", Reachable: 2, Members: 3},
			expected: StatusUnhealthy,
		},
		{
			name:     "no primary",
			state:    ClusterState{Phase: "stable", Reachable: 3, Members: 3},
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := ClusterCheck(func() ClusterState { return tt.state })()
			if check.Status != tt.expected {
				t.Errorf("Expected %s, got %s (%s)", tt.expected, check.Status, check.Message)
			}
			if check.Details["primary"] != tt.state.Primary {
				t.Errorf("Expected primary detail %q, got %v", tt.state.Primary, check.Details["primary"])
			}
		})
	}
}

func TestReplicationLagCheck(t *testing.T) {
	lags := map[string]uint64{"n2": 0, "n3": 12}

	check := ReplicationLagCheck(func() map[string]uint64 { return lags }, 10)()
	if check.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "n3") {
		t.Errorf("Expected lagging node in message, got %q", check.Message)
	}

	lags["n3"] = 10
	check = ReplicationLagCheck(func() map[string]uint64 { return lags }, 10)()
	if check.Status != StatusHealthy {
		t.Errorf("Expected healthy at threshold, got %s", check.Status)
	}
}

func TestMemoryCheck(t *testing.T) {
	if got := MemoryCheck(func() (uint64, uint64) { return 95, 100 })().Status; got != StatusDegraded {
		t.Errorf("Expected degraded, got %s", got)
	}
	if got := MemoryCheck(func() (uint64, uint64) { return 10, 100 })().Status; got != StatusHealthy {
		t.Errorf("Expected healthy, got %s", got)
	}
	if got := MemoryCheck(func() (uint64, uint64) { return 0, 0 })().Status; got != StatusHealthy {
		t.Errorf("Expected healthy with no stats, got %s", got)
	}
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		wantCode int
	}{
		{"healthy", StatusHealthy, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusOK},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			hc.RegisterCheck("cluster", func() Check { return Check{Status: tt.status} })

			rec := httptest.NewRecorder()
			hc.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected code %d, got %d", tt.wantCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}

			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, resp.Status)
			}
		})
	}
}

func TestReadinessHandlerIsBinary(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterReadinessCheck("cluster", func() Check { return Check{Status: StatusDegraded} })

	rec := httptest.NewRecorder()
	hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for degraded readiness, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterLivenessCheck("process", func() Check { return SimpleCheck("process") })

	rec := httptest.NewRecorder()
	hc.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

// brokenWriter fails every body write
type brokenWriter struct{ header http.Header }

func (w *brokenWriter) Header() http.Header       { return w.header }
func (w *brokenWriter) WriteHeader(int)           {}
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestHandlerLogsWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	hc := NewHealthChecker()
	hc.SetLogger(logging.NewJSONLogger(&buf, logging.DebugLevel))
	hc.RegisterLivenessCheck("process", func() Check { return SimpleCheck("process") })

	hc.LivenessHandler()(&brokenWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/live", nil))

	out := buf.String()
	if !strings.Contains(out, "failed to write health response") || !strings.Contains(out, "connection reset") {
		t.Errorf("Expected logged write failure, got %q", out)
	}
}
