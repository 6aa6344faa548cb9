// Package trace provides decision-trace recording for post-hoc analysis of a game.
// This package has no dependencies on sim/ or its sub-packages; it stores pure data types.
package trace

// TickRecord captures the aggregate outcome of one tick.
type TickRecord struct {
	Tick         int64   `json:"tick"`
	Offered      int     `json:"offered"`
	Processed    int     `json:"processed"`
	Dropped      int     `json:"dropped"`
	Blocked      int     `json:"blocked"`
	Availability float64 `json:"availability"`
	Reputation   float64 `json:"reputation"`
	Cost         float64 `json:"cost"`
}

// FirewallRecord captures a single firewall rule-engine verdict.
type FirewallRecord struct {
	RequestID       string   `json:"request_id"`
	Tick            int64    `json:"tick"`
	ServiceID       string   `json:"service_id"`
	Kind            string   `json:"kind"`
	Source          string   `json:"source"`
	Action          string   `json:"action"`
	TerminatingRule string   `json:"terminating_rule,omitempty"`
	MatchedRules    []string `json:"matched_rules,omitempty"`
	DefaultApplied  bool     `json:"default_applied"`
	Blocked         bool     `json:"blocked"`
}

// RoutingRecord captures the services one request visited and how it ended.
type RoutingRecord struct {
	RequestID string   `json:"request_id"`
	Tick      int64    `json:"tick"`
	Kind      string   `json:"kind"`
	Status    string   `json:"status"`
	Path      []string `json:"path"`
	LatencyMs int      `json:"latency_ms"`
}
