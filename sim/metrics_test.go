package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGameMetrics_ReputationScenario verifies the per-tick reputation update:
// GIVEN reputation 100
// WHEN a tick drops 20 and blocks 10
// THEN reputation = 100 - 10 + 1 = 91.
func TestGameMetrics_ReputationScenario(t *testing.T) {
	m := NewGameMetrics(MetricsConfig{SLAThreshold: 0, SLAWindow: 1, InitialReputation: 100})

	snap := m.Update(TickResult{Tick: 1, Offered: 100, Processed: 70, Dropped: 20, Blocked: 10})

	assert.InDelta(t, 91.0, snap.Reputation, 1e-9)
	assert.InDelta(t, 91.0, m.Reputation(), 1e-9)
	assert.False(t, snap.GameOver)
}

// TestNextReputation_Clamped verifies reputation stays within [0,100].
func TestNextReputation_Clamped(t *testing.T) {
	tests := []struct {
		name             string
		current          float64
		dropped, blocked int
		want             float64
	}{
		{"gain capped at 100", 99.5, 0, 100, 100},
		{"loss floored at 0", 3, 1000, 0, 0},
		{"exact", 50, 4, 5, 48.5},
		{"no traffic", 42, 0, 0, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NextReputation(tt.current, tt.dropped, tt.blocked), 1e-9)
		})
	}
}

func TestAvailability(t *testing.T) {
	assert.Equal(t, 100.0, Availability(0, 0))
	assert.Equal(t, 0.0, Availability(0, 10))
	assert.InDelta(t, 75.0, Availability(3, 1), 1e-9)
}

// TestGameMetrics_ReputationEndsGameFirst verifies trigger order: when both
// triggers fire in one tick the reason is "reputation".
func TestGameMetrics_ReputationEndsGameFirst(t *testing.T) {
	m := NewGameMetrics(MetricsConfig{SLAThreshold: 95, SLAWindow: 1, InitialReputation: 5})

	snap := m.Update(TickResult{Tick: 3, Offered: 10, Dropped: 10})

	assert.True(t, snap.GameOver)
	assert.Equal(t, ReasonReputation, snap.Reason)
	assert.Equal(t, StateOver, m.State())
}

// TestGameMetrics_SLABreachInstantaneous verifies the default window of one tick.
func TestGameMetrics_SLABreachInstantaneous(t *testing.T) {
	m := NewGameMetrics(DefaultMetricsConfig())

	snap := m.Update(TickResult{Tick: 1, Offered: 100, Processed: 90, Dropped: 10})

	assert.True(t, snap.GameOver)
	assert.Equal(t, ReasonSLABreach, snap.Reason)
	assert.InDelta(t, 90.0, snap.Availability, 1e-9)
	assert.InDelta(t, 95.0, snap.Reputation, 1e-9)
}

// TestGameMetrics_SLAWindowNeedsConsecutiveBreaches verifies a recovering tick
// resets the breach streak.
func TestGameMetrics_SLAWindowNeedsConsecutiveBreaches(t *testing.T) {
	m := NewGameMetrics(MetricsConfig{SLAThreshold: 95, SLAWindow: 3, InitialReputation: 100})
	breach := TickResult{Offered: 10, Processed: 9, Dropped: 1}
	healthy := TickResult{Offered: 10, Processed: 10}

	for i, r := range []TickResult{breach, breach, healthy, breach, breach} {
		r.Tick = int64(i)
		require.False(t, m.Update(r).GameOver, "tick %d", i)
	}
	snap := m.Update(TickResult{Tick: 5, Offered: 10, Processed: 9, Dropped: 1})
	assert.True(t, snap.GameOver)
	assert.Equal(t, ReasonSLABreach, snap.Reason)
}

// TestGameMetrics_FrozenAfterOver verifies Update is a no-op once over.
func TestGameMetrics_FrozenAfterOver(t *testing.T) {
	m := NewGameMetrics(DefaultMetricsConfig())
	over := m.Update(TickResult{Tick: 1, Offered: 4, Dropped: 4})
	require.True(t, over.GameOver)

	again := m.Update(TickResult{Tick: 2, Offered: 50, Processed: 50, Blocked: 500})

	assert.Equal(t, over, again)
	assert.Equal(t, over.Reputation, m.Reputation())
	assert.Equal(t, int64(1), m.Snapshot().Tick)
}

// TestGameMetrics_PerTickFields verifies averages are recomputed from scratch each tick.
func TestGameMetrics_PerTickFields(t *testing.T) {
	m := NewGameMetrics(MetricsConfig{SLAThreshold: 0, SLAWindow: 1, InitialReputation: 100})

	m.Update(TickResult{Tick: 1, Offered: 2, Processed: 2, TotalLatencyMs: 100, Revenue: 2, Cost: 3})
	snap := m.Update(TickResult{Tick: 2, Offered: 4, Processed: 4, TotalLatencyMs: 40, Revenue: 1, Cost: 1})

	assert.InDelta(t, 10.0, snap.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 1.0, snap.Revenue, 1e-9)
	assert.InDelta(t, 1.0, snap.TotalCost, 1e-9)
	assert.Equal(t, 4, snap.Processed)
}

// TestGameMetrics_Reset verifies reset returns to running with initial reputation.
func TestGameMetrics_Reset(t *testing.T) {
	m := NewGameMetrics(DefaultMetricsConfig())
	m.Update(TickResult{Tick: 1, Offered: 4, Dropped: 4})
	require.True(t, m.Over())

	m.Reset()

	assert.Equal(t, StateRunning, m.State())
	assert.Empty(t, m.Reason())
	assert.Equal(t, MaxReputation, m.Reputation())
}
