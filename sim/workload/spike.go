package workload

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// TriggerSpike multiplies batch size for the next durationTicks generated
// ticks, then reverts on its own. A new spike replaces any active one.
func (g *Generator) TriggerSpike(multiplier float64, durationTicks int) error {
	if multiplier < 1 || multiplier > g.config.Spikes.MaxMultiplier {
		return fmt.Errorf("spike multiplier must be in [1,%v], got %v", g.config.Spikes.MaxMultiplier, multiplier)
	}
	if durationTicks < 1 || durationTicks > g.config.Spikes.MaxTicks {
		return fmt.Errorf("spike duration must be in [1,%d] ticks, got %d", g.config.Spikes.MaxTicks, durationTicks)
	}
	g.spikeFactor = multiplier
	g.spikeRemaining = durationTicks
	logrus.Infof("workload: spike x%.1f for %d ticks", multiplier, durationTicks)
	return nil
}

// Spike returns the active multiplier (1 when none) and ticks left.
func (g *Generator) Spike() (multiplier float64, remaining int) {
	return g.spikeFactor, g.spikeRemaining
}
