// Package lab runs the replica-set consistency experiments: write-concern
// latency and failover, strong consistency, eventual consistency and
// causal sessions. Every experiment returns a Report.
package lab

import (
	"math"
	"sort"
	"time"
)

// Outcome classifies one experiment step
type Outcome int

const (
	// OutcomeOK means the step behaved as the experiment expects
	OutcomeOK Outcome = iota
	// OutcomeExpectedError means the step failed the way the experiment predicts
	OutcomeExpectedError
	// OutcomeFailed means the step did not behave as expected
	OutcomeFailed
)

// String returns the string representation of an Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeExpectedError:
		return "expected error"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON reports
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Step is one recorded action of an experiment
type Step struct {
	Name    string        `json:"name"`
	Detail  string        `json:"detail,omitempty"`
	Outcome Outcome       `json:"outcome"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// LatencyStat summarizes the write latency of one write concern
type LatencyStat struct {
	Concern  string        `json:"concern"`
	Samples  int           `json:"samples"`
	Failures int           `json:"failures"`
	Mean     time.Duration `json:"mean_ns"`
	StdDev   time.Duration `json:"stddev_ns"`
}

// Report is the typed result of one experiment
type Report struct {
	Experiment   string            `json:"experiment"`
	Started      time.Time         `json:"started"`
	Duration     time.Duration     `json:"duration_ns"`
	Steps        []Step            `json:"steps"`
	Latencies    []LatencyStat     `json:"latencies,omitempty"`
	Observations map[string]string `json:"observations,omitempty"`
}

func newReport(experiment string) *Report {
	return &Report{
		Experiment:   experiment,
		Started:      time.Now(),
		Observations: make(map[string]string),
	}
}

// Passed reports whether no step failed
func (r *Report) Passed() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			return false
		}
	}
	return true
}

// Step returns the first step with the given name
func (r *Report) Step(name string) (Step, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// ObservationKeys returns the observation names in sorted order
func (r *Report) ObservationKeys() []string {
	keys := make([]string, 0, len(r.Observations))
	for k := range r.Observations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Report) ok(name, detail string, start time.Time) {
	r.Steps = append(r.Steps, Step{Name: name, Detail: detail, Outcome: OutcomeOK, Elapsed: time.Since(start)})
}

func (r *Report) expected(name, detail string, err error, start time.Time) {
	r.Steps = append(r.Steps, Step{
		Name: name, Detail: detail, Outcome: OutcomeExpectedError,
		Error: err.Error(), Elapsed: time.Since(start),
	})
}

// fail records a failed step and returns err for the caller to propagate
func (r *Report) fail(name string, err error, start time.Time) error {
	r.Steps = append(r.Steps, Step{Name: name, Outcome: OutcomeFailed, Error: err.Error(), Elapsed: time.Since(start)})
	return err
}

func (r *Report) finish() {
	r.Duration = time.Since(r.Started)
}

// summarize returns the mean and sample standard deviation of samples
func summarize(samples []time.Duration) (mean, stddev time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	m := sum / float64(len(samples))
	if len(samples) < 2 {
		return time.Duration(m), 0
	}

	var sq float64
	for _, s := range samples {
		d := float64(s) - m
		sq += d * d
	}
	return time.Duration(m), time.Duration(math.Sqrt(sq / float64(len(samples)-1)))
}
