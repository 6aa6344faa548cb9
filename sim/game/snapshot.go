package game

import (
	"time"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/workload"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of the game after the latest tick or command.
// Slices and maps are never shared with the live game.
type Snapshot struct {
	SessionID       string                    `json:"session_id"`
	Tick            int64                     `json:"tick"` // ticks completed
	SimTime         time.Time                 `json:"sim_time"`
	Running         bool                      `json:"running"`
	State           sim.GameState             `json:"state"`
	Reason          string                    `json:"reason,omitempty"`
	Metrics         sim.MetricsSnapshot       `json:"metrics"`
	Sections        []sim.ProviderSection     `json:"sections"`
	Services        []sim.ServiceState        `json:"services"`
	Costs           map[string][]sim.CostTerm `json:"costs"`
	Attack          *workload.Attack          `json:"attack,omitempty"`
	SpikeMultiplier float64                   `json:"spike_multiplier"`
	SpikeRemaining  int                       `json:"spike_remaining"`
	SkippedTicks    int64                     `json:"skipped_ticks"`
	TotalCost       decimal.Decimal           `json:"total_cost"`    // cumulative since reset
	TotalRevenue    decimal.Decimal           `json:"total_revenue"` // cumulative since reset
}

// HealthSummary counts services per health state.
type HealthSummary struct {
	Tick     int64                 `json:"tick"`
	Healthy  int                   `json:"healthy"`
	Degraded int                   `json:"degraded"`
	Failed   int                   `json:"failed"`
	Services map[string]sim.Health `json:"services"`
}

// HealthSummary derives per-health counts from s.
func (s Snapshot) HealthSummary() HealthSummary {
	h := HealthSummary{Tick: s.Tick, Services: make(map[string]sim.Health, len(s.Services))}
	for _, st := range s.Services {
		h.Services[st.ID] = st.Health
		switch st.Health {
		case sim.HealthFailed:
			h.Failed++
		case sim.HealthDegraded:
			h.Degraded++
		default:
			h.Healthy++
		}
	}
	return h
}

// CostSummary is the decimal cost ledger as of a snapshot.
type CostSummary struct {
	Tick         int64                            `json:"tick"`
	TickCost     decimal.Decimal                  `json:"tick_cost"`
	ByProvider   map[sim.Provider]decimal.Decimal `json:"by_provider"`
	ByService    map[string][]sim.CostTerm        `json:"by_service"`
	TotalCost    decimal.Decimal                  `json:"total_cost"`
	TotalRevenue decimal.Decimal                  `json:"total_revenue"`
	Margin       decimal.Decimal                  `json:"margin"`
}

// CostSummary derives the cost ledger from s.
func (s Snapshot) CostSummary() CostSummary {
	c := CostSummary{
		Tick:         s.Tick,
		TickCost:     decimal.Zero,
		ByProvider:   make(map[sim.Provider]decimal.Decimal, len(s.Sections)),
		ByService:    make(map[string][]sim.CostTerm, len(s.Costs)),
		TotalCost:    s.TotalCost,
		TotalRevenue: s.TotalRevenue,
		Margin:       s.TotalRevenue.Sub(s.TotalCost),
	}
	for _, sec := range s.Sections {
		c.ByProvider[sec.Provider] = sec.Cost
		c.TickCost = c.TickCost.Add(sec.Cost)
	}
	for id, terms := range s.Costs {
		c.ByService[id] = append([]sim.CostTerm(nil), terms...)
	}
	return c
}
