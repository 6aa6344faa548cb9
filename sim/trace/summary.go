package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Ticks              int            `json:"ticks"`
	FirewallDecisions  int            `json:"firewall_decisions"`
	BlockedCount       int            `json:"blocked"`
	DefaultAppliedRate float64        `json:"default_applied_rate"`
	ActionDistribution map[string]int `json:"action_distribution"`
	RuleHits           map[string]int `json:"rule_hits"`       // terminating rule → count
	BlockedByKind      map[string]int `json:"blocked_by_kind"` // request kind → blocked count
	MeanLatencyMs      float64        `json:"mean_latency_ms"` // over processed routings
	P95LatencyMs       float64        `json:"p95_latency_ms"`
	P99LatencyMs       float64        `json:"p99_latency_ms"`
	TargetDistribution map[string]int `json:"target_distribution"` // final service → processed count
	MinAvailability    float64        `json:"min_availability"`
	Evicted            int            `json:"evicted"`
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ActionDistribution: make(map[string]int),
		RuleHits:           make(map[string]int),
		BlockedByKind:      make(map[string]int),
		TargetDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}
	summary.Evicted = st.Evicted

	summary.Ticks = len(st.Ticks)
	for i, t := range st.Ticks {
		if i == 0 || t.Availability < summary.MinAvailability {
			summary.MinAvailability = t.Availability
		}
	}

	summary.FirewallDecisions = len(st.Firewalls)
	defaults := 0
	for _, f := range st.Firewalls {
		summary.ActionDistribution[f.Action]++
		if f.TerminatingRule != "" {
			summary.RuleHits[f.TerminatingRule]++
		}
		if f.DefaultApplied {
			defaults++
		}
		if f.Blocked {
			summary.BlockedCount++
			summary.BlockedByKind[f.Kind]++
		}
	}
	if len(st.Firewalls) > 0 {
		summary.DefaultAppliedRate = float64(defaults) / float64(len(st.Firewalls))
	}

	var latencies []int
	totalLatency := 0
	for _, r := range st.Routings {
		if r.Status != "processed" || len(r.Path) == 0 {
			continue
		}
		latencies = append(latencies, r.LatencyMs)
		totalLatency += r.LatencyMs
		summary.TargetDistribution[r.Path[len(r.Path)-1]]++
	}
	if len(latencies) > 0 {
		summary.MeanLatencyMs = float64(totalLatency) / float64(len(latencies))
		summary.P95LatencyMs = Percentile(latencies, 95)
		summary.P99LatencyMs = Percentile(latencies, 99)
	}
	return summary
}
