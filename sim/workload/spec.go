package workload

import (
	"fmt"
	"math"
)

// Config parameterizes traffic generation. Zero values are not defaults; start
// from DefaultConfig.
type Config struct {
	BaseRate     float64  `yaml:"base_rate" mapstructure:"base_rate"`           // requests per tick at tick 0, before patterns
	GrowthRate   float64  `yaml:"growth_rate" mapstructure:"growth_rate"`       // per-tick exponent of exponential growth
	MaxBatch     int      `yaml:"max_batch" mapstructure:"max_batch"`           // hard cap on non-attack requests per tick
	TicksPerHour int      `yaml:"ticks_per_hour" mapstructure:"ticks_per_hour"` // simulated clock speed
	StartHour    float64  `yaml:"start_hour" mapstructure:"start_hour"`         // hour of day at tick 0
	Peaks        []Peak   `yaml:"peaks" mapstructure:"peaks"`
	BotRatio     float64  `yaml:"bot_ratio" mapstructure:"bot_ratio"`
	Sources      []Source `yaml:"sources" mapstructure:"sources"`
	Attacks      Attacks  `yaml:"attacks" mapstructure:"attacks"`
	Spikes       Spikes   `yaml:"spikes" mapstructure:"spikes"`
}

// Peak is one bell-curve term of the time-of-day pattern.
type Peak struct {
	Hour      float64 `yaml:"hour" mapstructure:"hour"`
	Amplitude float64 `yaml:"amplitude" mapstructure:"amplitude"`
	Width     float64 `yaml:"width" mapstructure:"width"` // standard deviation in hours
}

// Source is a weighted user sub-source.
type Source struct {
	Name   string  `yaml:"name" mapstructure:"name"`
	Weight float64 `yaml:"weight" mapstructure:"weight"`
	Value  float64 `yaml:"value" mapstructure:"value"` // revenue per processed request
}

// Attacks configures attack episodes.
type Attacks struct {
	Probability float64 `yaml:"probability" mapstructure:"probability"` // per tick, while none is active
	MinTicks    int     `yaml:"min_ticks" mapstructure:"min_ticks"`
	MaxTicks    int     `yaml:"max_ticks" mapstructure:"max_ticks"`
	MinRequests int     `yaml:"min_requests" mapstructure:"min_requests"`
	MaxRequests int     `yaml:"max_requests" mapstructure:"max_requests"`
	Value       float64 `yaml:"value" mapstructure:"value"` // per processed attack request, negative
}

// Spikes bounds operator-triggered spikes.
type Spikes struct {
	MaxMultiplier float64 `yaml:"max_multiplier" mapstructure:"max_multiplier"`
	MaxTicks      int     `yaml:"max_ticks" mapstructure:"max_ticks"`
}

// maxPeakAmplitude bounds each time-pattern term.
const maxPeakAmplitude = 5.0

// DefaultConfig returns the reference traffic profile: lunch and evening peaks,
// 15% bots, and rare attacks of 50-150 requests per tick.
func DefaultConfig() Config {
	return Config{
		BaseRate:     100,
		GrowthRate:   0.0005,
		MaxBatch:     50000,
		TicksPerHour: 60,
		StartHour:    9,
		Peaks: []Peak{
			{Hour: 12.5, Amplitude: 0.6, Width: 1.5},
			{Hour: 20, Amplitude: 0.9, Width: 2},
		},
		BotRatio: 0.15,
		Sources: []Source{
			{Name: SourceWeb, Weight: 0.5, Value: 0.02},
			{Name: SourceMobile, Weight: 0.35, Value: 0.03},
			{Name: SourceAPI, Weight: 0.15, Value: 0.05},
		},
		Attacks: Attacks{
			Probability: 0.01,
			MinTicks:    5,
			MaxTicks:    30,
			MinRequests: 50,
			MaxRequests: 150,
			Value:       -0.05,
		},
		Spikes: Spikes{MaxMultiplier: 10, MaxTicks: 300},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if err := validateFiniteNonNegative("base_rate", c.BaseRate); err != nil {
		return err
	}
	if math.IsNaN(c.GrowthRate) || math.IsInf(c.GrowthRate, 0) {
		return fmt.Errorf("growth_rate must be finite, got %v", c.GrowthRate)
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("max_batch must be positive, got %d", c.MaxBatch)
	}
	if c.TicksPerHour <= 0 {
		return fmt.Errorf("ticks_per_hour must be positive, got %d", c.TicksPerHour)
	}
	if c.StartHour < 0 || c.StartHour >= 24 {
		return fmt.Errorf("start_hour must be in [0,24), got %v", c.StartHour)
	}
	for i, p := range c.Peaks {
		if p.Hour < 0 || p.Hour >= 24 {
			return fmt.Errorf("peaks[%d]: hour must be in [0,24), got %v", i, p.Hour)
		}
		if p.Amplitude < 0 || p.Amplitude > maxPeakAmplitude {
			return fmt.Errorf("peaks[%d]: amplitude must be in [0,%v], got %v", i, maxPeakAmplitude, p.Amplitude)
		}
		if p.Width <= 0 {
			return fmt.Errorf("peaks[%d]: width must be positive, got %v", i, p.Width)
		}
	}
	if c.BotRatio < 0 || c.BotRatio > 1 {
		return fmt.Errorf("bot_ratio must be in [0,1], got %v", c.BotRatio)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one user source required")
	}
	total := 0.0
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name required", i)
		}
		if err := validateFiniteNonNegative(fmt.Sprintf("sources[%d].weight", i), s.Weight); err != nil {
			return err
		}
		total += s.Weight
	}
	if total <= 0 {
		return fmt.Errorf("source weights must sum to a positive value")
	}
	a := c.Attacks
	if a.Probability < 0 || a.Probability > 1 {
		return fmt.Errorf("attacks.probability must be in [0,1], got %v", a.Probability)
	}
	if a.MinTicks < 1 || a.MaxTicks < a.MinTicks {
		return fmt.Errorf("attacks: need 1 <= min_ticks (%d) <= max_ticks (%d)", a.MinTicks, a.MaxTicks)
	}
	if a.MinRequests < 0 || a.MaxRequests < a.MinRequests {
		return fmt.Errorf("attacks: need 0 <= min_requests (%d) <= max_requests (%d)", a.MinRequests, a.MaxRequests)
	}
	if a.Value > 0 {
		return fmt.Errorf("attacks.value must be <= 0, got %v", a.Value)
	}
	if c.Spikes.MaxMultiplier < 1 {
		return fmt.Errorf("spikes.max_multiplier must be >= 1, got %v", c.Spikes.MaxMultiplier)
	}
	if c.Spikes.MaxTicks < 1 {
		return fmt.Errorf("spikes.max_ticks must be >= 1, got %d", c.Spikes.MaxTicks)
	}
	return nil
}

func validateFiniteNonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s must be a finite non-negative number, got %v", name, v)
	}
	return nil
}
