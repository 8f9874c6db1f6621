package lab

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-replset/pkg/cluster"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
	"github.com/dd0wney/cluso-replset/pkg/validation"
)

// Config is the lab configuration, usually read from a YAML file
type Config struct {
	Members  []string `yaml:"members" validate:"dive,memberid"`
	LogLevel string   `yaml:"log_level"`

	Election struct {
		Timeout          time.Duration `yaml:"timeout"`
		RetryInterval    time.Duration `yaml:"retry_interval"`
		RequiresMajority bool          `yaml:"requires_majority"`
	} `yaml:"election"`

	Replication struct {
		PollInterval time.Duration            `yaml:"poll_interval"`
		Delay        time.Duration            `yaml:"delay"`
		LinkDelays   map[string]time.Duration `yaml:"link_delays"`
	} `yaml:"replication"`

	Experiments struct {
		Writes   int           `yaml:"writes" validate:"min=2,max=10000"` // Writes per concern in the latency comparison
		Concerns []string      `yaml:"concerns"`                          // Write concerns compared, weakest first
		Lag      time.Duration `yaml:"lag"`                               // Link delay of the lagging secondary
		Sessions int           `yaml:"sessions" validate:"max=64"`        // Concurrent conversations in the causal experiment
		Timeout  time.Duration `yaml:"timeout"`                           // Upper bound for one experiment
	} `yaml:"experiments"`

	Serve struct {
		Addr   string `yaml:"addr"`
		MaxLag uint64 `yaml:"max_lag"` // Replication lag above which /health reports degraded
	} `yaml:"serve"`
}

var logLevels = []string{"debug", "info", "warn", "warning", "error"}

// DefaultConfig returns a three-member lab with the cluster's default timings
func DefaultConfig() *Config {
	cc := cluster.DefaultConfig()

	cfg := &Config{
		Members:  []string{"n1", "n2", "n3"},
		LogLevel: "info",
	}
	cfg.Election.Timeout = cc.ElectionTimeout
	cfg.Election.RetryInterval = cc.ElectionRetryInterval
	cfg.Replication.PollInterval = cc.ReplicationPollInterval
	cfg.Experiments.Writes = 50
	for _, wc := range cluster.WriteConcerns {
		cfg.Experiments.Concerns = append(cfg.Experiments.Concerns, wc.String())
	}
	cfg.Experiments.Lag = 500 * time.Millisecond
	cfg.Experiments.Sessions = 1
	cfg.Experiments.Timeout = 30 * time.Second
	cfg.Serve.Addr = ":9090"
	cfg.Serve.MaxLag = 100
	return cfg
}

// LoadConfig reads a YAML file over the defaults and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lab config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse lab config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid lab config: %w", err)
	}

	cc := c.ClusterConfig(nil, nil)
	if err := cc.Validate(); err != nil {
		return err
	}

	return validation.NewConfigValidator("lab.Config").
		RangeInt("members", len(c.Members), 1, 7).
		Unique("members", c.Members).
		When(c.LogLevel != "", func(cv *validation.ConfigValidator) {
			cv.OneOf("log_level", strings.ToLower(c.LogLevel), logLevels)
		}).
		MinInt("experiments.sessions", c.Experiments.Sessions, 1).
		When(len(c.Experiments.Concerns) > 0, func(cv *validation.ConfigValidator) {
			cv.Unique("experiments.concerns", c.Experiments.Concerns).
				Custom("experiments.concerns", func() error {
					_, err := c.writeConcerns()
					return err
				})
		}).
		Required("serve.addr", c.Serve.Addr).
		NonNegativeDuration("experiments.lag", c.Experiments.Lag).
		MinDuration("experiments.timeout", c.Experiments.Timeout, 10*time.Millisecond).
		Custom("replication.link_delays", func() error {
			for id := range c.Replication.LinkDelays {
				if !slices.Contains(c.Members, id) {
					return fmt.Errorf("%q is not a member", id)
				}
			}
			return nil
		}).
		Validate()
}

// ClusterConfig converts the file settings into a cluster configuration
func (c *Config) ClusterConfig(logger logging.Logger, reg *metrics.Registry) cluster.Config {
	return cluster.Config{
		ElectionTimeout:          c.Election.Timeout,
		ElectionRetryInterval:    c.Election.RetryInterval,
		ElectionRequiresMajority: c.Election.RequiresMajority,
		ReplicationPollInterval:  c.Replication.PollInterval,
		ReplicationDelay:         c.Replication.Delay,
		LinkDelays:               c.Replication.LinkDelays,
		Logger:                   logger,
		Metrics:                  reg,
	}
}

// writeConcerns parses the configured concerns. An empty list compares
// every concern.
func (c *Config) writeConcerns() ([]cluster.WriteConcern, error) {
	if len(c.Experiments.Concerns) == 0 {
		return cluster.WriteConcerns, nil
	}
	out := make([]cluster.WriteConcern, 0, len(c.Experiments.Concerns))
	for _, name := range c.Experiments.Concerns {
		wc, err := cluster.ParseWriteConcern(name)
		if err != nil {
			return nil, err
		}
		out = append(out, wc)
	}
	return out, nil
}

// linkDelay returns the configured delay for member id
func (c *Config) linkDelay(id string) time.Duration {
	if d, ok := c.Replication.LinkDelays[id]; ok {
		return d
	}
	return c.Replication.Delay
}
