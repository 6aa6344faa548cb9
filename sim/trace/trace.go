package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelTicks captures one aggregate record per tick.
	TraceLevelTicks TraceLevel = "ticks"
	// TraceLevelDecisions also captures every firewall verdict and request path.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelTicks:     true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// DefaultMaxRecords bounds each record list when TraceConfig.MaxRecords is 0.
const DefaultMaxRecords = 10000

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level      TraceLevel `yaml:"level" mapstructure:"level"`
	MaxRecords int        `yaml:"max_records" mapstructure:"max_records"` // per list; oldest records are evicted first
}

// SimulationTrace collects records while a game runs.
type SimulationTrace struct {
	Config    TraceConfig
	Ticks     []TickRecord
	Firewalls []FirewallRecord
	Routings  []RoutingRecord
	Evicted   int // records dropped to honor MaxRecords
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	if config.MaxRecords <= 0 {
		config.MaxRecords = DefaultMaxRecords
	}
	return &SimulationTrace{
		Config:    config,
		Ticks:     make([]TickRecord, 0),
		Firewalls: make([]FirewallRecord, 0),
		Routings:  make([]RoutingRecord, 0),
	}
}

// Enabled reports whether level is being recorded.
func (st *SimulationTrace) Enabled(level TraceLevel) bool {
	switch st.Config.Level {
	case TraceLevelDecisions:
		return level == TraceLevelTicks || level == TraceLevelDecisions
	case TraceLevelTicks:
		return level == TraceLevelTicks
	default:
		return false
	}
}

// RecordTick appends a per-tick aggregate.
func (st *SimulationTrace) RecordTick(record TickRecord) {
	if !st.Enabled(TraceLevelTicks) {
		return
	}
	st.Ticks = appendBounded(st, st.Ticks, record)
}

// RecordFirewall appends a firewall verdict.
func (st *SimulationTrace) RecordFirewall(record FirewallRecord) {
	if !st.Enabled(TraceLevelDecisions) {
		return
	}
	st.Firewalls = appendBounded(st, st.Firewalls, record)
}

// RecordRouting appends a request path.
func (st *SimulationTrace) RecordRouting(record RoutingRecord) {
	if !st.Enabled(TraceLevelDecisions) {
		return
	}
	st.Routings = appendBounded(st, st.Routings, record)
}

// Reset discards every record and keeps the configuration.
func (st *SimulationTrace) Reset() {
	st.Ticks = st.Ticks[:0]
	st.Firewalls = st.Firewalls[:0]
	st.Routings = st.Routings[:0]
	st.Evicted = 0
}

// appendBounded keeps the newest MaxRecords entries. Eviction advances the
// window over a backing array of twice that size, so the survivors are copied
// once per MaxRecords appends rather than on every append.
func appendBounded[T any](st *SimulationTrace, list []T, record T) []T {
	limit := st.Config.MaxRecords
	if len(list) >= limit {
		drop := len(list) - limit + 1
		st.Evicted += drop
		list = list[drop:]
	}
	if len(list) == cap(list) && len(list) >= limit/2 {
		grown := make([]T, len(list), 2*limit)
		copy(grown, list)
		list = grown
	}
	return append(list, record)
}
