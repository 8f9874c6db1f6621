package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fastConfig = `
members: [n1, n2, n3]
log_level: error
election:
  timeout: 20ms
  retry_interval: 10ms
replication:
  poll_interval: 5ms
experiments:
  writes: 3
  lag: 50ms
  timeout: 5s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replset.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// TestCausalCommandJSON tests running one experiment with JSON output
func TestCausalCommandJSON(t *testing.T) {
	out, err := run(t, "causal", "--json", "--config", writeConfig(t, fastConfig))
	if err != nil {
		t.Fatalf("causal failed: %v\n%s", err, out)
	}

	var report struct {
		Experiment string `json:"experiment"`
		Steps      []struct {
			Outcome string `json:"outcome"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("Expected JSON report, got %v\n%s", err, out)
	}
	if report.Experiment != "causal" {
		t.Errorf("Expected causal, got %q", report.Experiment)
	}
	if len(report.Steps) == 0 || report.Steps[0].Outcome != "ok" {
		t.Errorf("Unexpected steps: %+v", report.Steps)
	}
}

// TestStatusCommand tests the rendered describe table
func TestStatusCommand(t *testing.T) {
	out, err := run(t, "status", "--config", writeConfig(t, fastConfig))
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"primary=n1", "n2", "secondary"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

// TestInvalidConfig tests that a bad config stops the command
func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "status", "--config", writeConfig(t, "members: [n1, n1]"))
	if err == nil || !strings.Contains(err.Error(), "duplicate entry") {
		t.Errorf("Expected uniqueness error, got %v", err)
	}

	_, err = run(t, "status", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected error for missing config")
	}
}

// TestCommandTree tests that every experiment has a subcommand
func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"replication", "strong", "eventual", "causal", "all", "status", "serve"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %q, got %v", name, err)
		}
	}
}
