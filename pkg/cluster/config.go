package cluster

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
	"github.com/dd0wney/cluso-replset/pkg/validation"
)

// Config defines timing and wiring for an in-process replica set
type Config struct {
	// Election configuration
	ElectionTimeout          time.Duration // Wait after losing the primary before the first round (default: 100ms)
	ElectionRetryInterval    time.Duration // Wait between failed rounds (default: 50ms)
	ElectionRequiresMajority bool          // Refuse to elect without a reachable majority (default: false)

	// Replication configuration
	ReplicationPollInterval time.Duration            // Fallback poll when no append kicks a secondary (default: 20ms)
	ReplicationDelay        time.Duration            // Simulated link delay applied to every secondary (default: 0)
	LinkDelays              map[string]time.Duration // Per-member overrides of ReplicationDelay

	// Observability
	Logger  logging.Logger    // Defaults to logging.DefaultLogger()
	Metrics *metrics.Registry // Defaults to metrics.DefaultRegistry()
}

// DefaultConfig returns timings suited to an in-process lab cluster
func DefaultConfig() Config {
	return Config{
		ElectionTimeout:         100 * time.Millisecond,
		ElectionRetryInterval:   50 * time.Millisecond,
		ReplicationPollInterval: 20 * time.Millisecond,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	return validation.NewConfigValidator("cluster.Config").
		MinDuration("ElectionTimeout", c.ElectionTimeout, time.Millisecond).
		MinDuration("ElectionRetryInterval", c.ElectionRetryInterval, time.Millisecond).
		MinDuration("ReplicationPollInterval", c.ReplicationPollInterval, time.Millisecond).
		NonNegativeDuration("ReplicationDelay", c.ReplicationDelay).
		Custom("LinkDelays", func() error {
			for id, d := range c.LinkDelays {
				if d < 0 {
					return fmt.Errorf("delay %v for %q must be non-negative", d, id)
				}
			}
			return nil
		}).
		Validate()
}

// withDefaults fills unset observability hooks
func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.DefaultRegistry()
	}
	links := make(map[string]time.Duration, len(c.LinkDelays))
	for id, d := range c.LinkDelays {
		links[id] = d
	}
	c.LinkDelays = links
	return c
}
