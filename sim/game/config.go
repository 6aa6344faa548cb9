package game

import (
	"fmt"
	"math"
	"time"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/trace"
	"github.com/infra-sim/infra-sim/sim/workload"
)

// DefaultSeed keeps runs reproducible when no seed is configured.
const DefaultSeed = 42

// Config is everything a Game needs besides deployments.
type Config struct {
	Seed int64 `yaml:"seed" mapstructure:"seed"`
	// TickInterval is the wall-clock period of the running clock. Simulated
	// time always advances one second per tick.
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	// Routing names the registry routing policy (round-robin, capacity-weighted, random).
	Routing string `yaml:"routing" mapstructure:"routing"`
	// Topology routes requests through typed stages instead of a flat pool.
	Topology bool `yaml:"topology" mapstructure:"topology"`

	Metrics  sim.MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Workload workload.Config   `yaml:"workload" mapstructure:"workload"`
	Trace    trace.TraceConfig `yaml:"trace" mapstructure:"trace"`
}

// DefaultConfig returns the reference game configuration.
func DefaultConfig() Config {
	return Config{
		Seed:         DefaultSeed,
		TickInterval: time.Second,
		Routing:      "round-robin",
		Metrics:      sim.DefaultMetricsConfig(),
		Workload:     workload.DefaultConfig(),
		Trace:        trace.TraceConfig{Level: trace.TraceLevelNone},
	}
}

// Validate returns the first problem found in c.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0, got %v", c.TickInterval)
	}
	if !sim.IsValidRoutingPolicy(c.Routing) {
		return fmt.Errorf("unknown routing policy %q", c.Routing)
	}
	if t := c.Metrics.SLAThreshold; t < 0 || t > 100 || math.IsNaN(t) {
		return fmt.Errorf("metrics.sla_threshold must be in [0,100], got %v", t)
	}
	if c.Metrics.SLAWindow < 0 {
		return fmt.Errorf("metrics.sla_window must be >= 0, got %d", c.Metrics.SLAWindow)
	}
	if r := c.Metrics.InitialReputation; r <= 0 || r > sim.MaxReputation || math.IsNaN(r) {
		return fmt.Errorf("metrics.initial_reputation must be in (0,%v], got %v", sim.MaxReputation, r)
	}
	if err := c.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	if !trace.IsValidTraceLevel(string(c.Trace.Level)) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	if c.Trace.MaxRecords < 0 {
		return fmt.Errorf("trace.max_records must be >= 0, got %d", c.Trace.MaxRecords)
	}
	return nil
}
