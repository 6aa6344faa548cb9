package sim

import (
	"math"

	"github.com/sirupsen/logrus"
)

// GameState is the top-level state machine: running until a termination
// trigger fires, then over for good.
type GameState string

const (
	StateRunning GameState = "running"
	StateOver    GameState = "over"
)

// Game-over reasons, checked in this order every tick.
const (
	ReasonReputation = "reputation"
	ReasonSLABreach  = "SLA breach"
)

// Reputation bounds and per-request adjustments.
const (
	MaxReputation        = 100.0
	DropReputationCost   = 0.5
	BlockReputationGain  = 0.1
	defaultSLAThreshold  = 95.0
	defaultSLAWindowTick = 1
)

// MetricsConfig parameterizes scoring and termination.
type MetricsConfig struct {
	// SLAThreshold is the minimum acceptable per-tick availability, in percent.
	SLAThreshold float64 `yaml:"sla_threshold" mapstructure:"sla_threshold"`
	// SLAWindow is how many consecutive breaching ticks end the game.
	// 1 reproduces the instantaneous per-tick check.
	SLAWindow int `yaml:"sla_window" mapstructure:"sla_window"`
	// InitialReputation is the starting score, clamped to [0,100].
	InitialReputation float64 `yaml:"initial_reputation" mapstructure:"initial_reputation"`
}

// DefaultMetricsConfig returns the reference scoring configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SLAThreshold:      defaultSLAThreshold,
		SLAWindow:         defaultSLAWindowTick,
		InitialReputation: MaxReputation,
	}
}

// MetricsSnapshot is the scored view of one tick.
// Reputation, GameOver and Reason span the whole game; every other field is
// recomputed from scratch each tick.
type MetricsSnapshot struct {
	Tick         int64   `json:"tick"`
	Availability float64 `json:"availability"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Reputation   float64 `json:"reputation"`
	TotalCost    float64 `json:"total_cost"`
	Revenue      float64 `json:"revenue"`
	Offered      int     `json:"offered"`
	Processed    int     `json:"processed"`
	Dropped      int     `json:"dropped"`
	Blocked      int     `json:"blocked"`
	GameOver     bool    `json:"game_over"`
	Reason       string  `json:"reason,omitempty"`
}

// GameMetrics scores ticks and owns the running/over state machine.
type GameMetrics struct {
	config     MetricsConfig
	state      GameState
	reason     string
	reputation float64
	breaches   int // consecutive ticks below SLA
	last       MetricsSnapshot
}

// NewGameMetrics creates metrics in the running state.
func NewGameMetrics(config MetricsConfig) *GameMetrics {
	if config.SLAWindow < 1 {
		config.SLAWindow = 1
	}
	m := &GameMetrics{config: config}
	m.Reset()
	return m
}

// Reset returns to the initial running state.
func (m *GameMetrics) Reset() {
	m.state = StateRunning
	m.reason = ""
	m.reputation = clampReputation(m.config.InitialReputation)
	m.breaches = 0
	m.last = MetricsSnapshot{Availability: 100, Reputation: m.reputation}
}

// State returns the current state.
func (m *GameMetrics) State() GameState { return m.state }

// Over reports whether the game has ended.
func (m *GameMetrics) Over() bool { return m.state == StateOver }

// Reason returns the game-over reason, empty while running.
func (m *GameMetrics) Reason() string { return m.reason }

// Reputation returns the persistent reputation score.
func (m *GameMetrics) Reputation() float64 { return m.reputation }

// Snapshot returns the latest scored tick.
func (m *GameMetrics) Snapshot() MetricsSnapshot { return m.last }

// Update scores a tick result and evaluates termination. Once the game is
// over, Update changes nothing and returns the frozen snapshot.
func (m *GameMetrics) Update(result TickResult) MetricsSnapshot {
	if m.state == StateOver {
		logrus.Debugf("[tick %07d] metrics: game already over (%s), ignoring update", result.Tick, m.reason)
		return m.last
	}

	snap := MetricsSnapshot{
		Tick:         result.Tick,
		Availability: Availability(result.Processed, result.Dropped),
		TotalCost:    result.Cost,
		Revenue:      result.Revenue,
		Offered:      result.Offered,
		Processed:    result.Processed,
		Dropped:      result.Dropped,
		Blocked:      result.Blocked,
	}
	if result.Processed > 0 {
		snap.AvgLatencyMs = float64(result.TotalLatencyMs) / float64(result.Processed)
	}

	m.reputation = NextReputation(m.reputation, result.Dropped, result.Blocked)
	snap.Reputation = m.reputation

	if snap.Availability < m.config.SLAThreshold {
		m.breaches++
	} else {
		m.breaches = 0
	}

	switch {
	case m.reputation <= 0:
		m.end(ReasonReputation, result.Tick)
	case m.breaches >= m.config.SLAWindow:
		m.end(ReasonSLABreach, result.Tick)
	}
	snap.GameOver = m.state == StateOver
	snap.Reason = m.reason

	m.last = snap
	return snap
}

func (m *GameMetrics) end(reason string, tick int64) {
	m.state = StateOver
	m.reason = reason
	logrus.Infof("[tick %07d] game over: %s (reputation=%.1f)", tick, reason, m.reputation)
}

// Availability returns processed/(processed+dropped) as a percentage.
// With nothing processed or dropped the tick is fully available.
func Availability(processed, dropped int) float64 {
	if processed+dropped == 0 {
		return 100
	}
	return float64(processed) / float64(processed+dropped) * 100
}

// NextReputation applies one tick of drops and blocks, clamped to [0,100].
func NextReputation(current float64, dropped, blocked int) float64 {
	return clampReputation(current - float64(dropped)*DropReputationCost + float64(blocked)*BlockReputationGain)
}

func clampReputation(r float64) float64 {
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(0, math.Min(MaxReputation, r))
}
