package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Health is the per-tick classification of a service derived from its load ratio.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

// Thresholds are the load ratios at which a variant degrades and fails.
type Thresholds struct {
	Degradation float64
	Failure     float64
}

// Classify maps a load ratio to a health state. It is a pure function of load:
// no memory of the previous tick is consulted.
func (t Thresholds) Classify(load float64) Health {
	switch {
	case load > t.Failure:
		return HealthFailed
	case load > t.Degradation:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Profile holds the static performance parameters of one (provider, type) variant.
type Profile struct {
	BaseLatencyMs     float64
	LatencyMultiplier float64
	Thresholds        Thresholds
}

// TickContext carries the tick-scoped inputs every service sees.
// Now is simulated time (one second per tick from a fixed epoch), never wall clock.
type TickContext struct {
	Tick int64
	Now  time.Time
}

// SimEpoch is the simulated time of tick 0.
var SimEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewTickContext returns the context for the given tick.
func NewTickContext(tick int64) TickContext {
	return TickContext{Tick: tick, Now: SimEpoch.Add(time.Duration(tick) * time.Second)}
}

// ProcessResult partitions the batch a service was handed. Ownership of every
// request moves to the caller.
type ProcessResult struct {
	Processed []*Request
	Dropped   []*Request
	Blocked   []*Request
}

// Total returns the number of requests accounted for.
func (r ProcessResult) Total() int {
	return len(r.Processed) + len(r.Dropped) + len(r.Blocked)
}

// CostTerm is one named component of a service's per-tick cost.
type CostTerm struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// SumCost adds up cost terms.
func SumCost(terms []CostTerm) float64 {
	total := 0.0
	for _, t := range terms {
		total += t.Amount
	}
	return total
}

// ServiceState is an immutable view of a service after a tick.
type ServiceState struct {
	ID       string             `json:"id"`
	Provider Provider           `json:"provider"`
	Type     ServiceType        `json:"type"`
	Capacity int                `json:"capacity"`
	Offered  int                `json:"offered"`
	Load     float64            `json:"load"`
	Health   Health             `json:"health"`
	Cost     float64            `json:"cost"`
	Stats    map[string]float64 `json:"stats,omitempty"`
}

// Service is the capability every (provider, type) variant implements.
//
// Process takes ownership of batch, recomputes load and health from len(batch),
// updates extension state, and returns every request in exactly one of
// Processed, Dropped or Blocked. Overload is reported through drops, never errors.
type Service interface {
	ID() string
	Provider() Provider
	Type() ServiceType
	Capacity() int
	Process(ctx TickContext, batch []*Request) ProcessResult
	Cost() float64
	CostBreakdown() []CostTerm
	State() ServiceState
}

// Forwarder is implemented by services that complete some requests themselves
// and pass the rest downstream (e.g. a cache hit versus a miss) when the
// registry routes by topology.
type Forwarder interface {
	// Terminal reports whether req finished at this service.
	Terminal(req *Request) bool
}

// RuleDecision records the firewall verdict on one request.
type RuleDecision struct {
	Tick            int64         `json:"tick"`
	ServiceID       string        `json:"service_id"`
	RequestID       string        `json:"request_id"`
	Kind            RequestKind   `json:"kind"`
	Source          string        `json:"source"`
	Action          string        `json:"action"`
	TerminatingRule string        `json:"terminating_rule,omitempty"`
	MatchedRules    []string      `json:"matched_rules,omitempty"`
	DefaultApplied  bool          `json:"default_applied"`
	Status          RequestStatus `json:"status"`
}

// DecisionReporter is implemented by services that evaluate rules per request.
// Decisions returns the verdicts of the latest Process call.
type DecisionReporter interface {
	Decisions() []RuleDecision
}

// BaseModel implements the shared capacity, degradation, latency, drop and
// load-cost policy. Variants embed it and add parameters and extension state.
type BaseModel struct {
	id       string
	provider Provider
	typ      ServiceType
	capacity int
	baseCost float64
	profile  Profile
	rng      *rand.Rand

	offered int
	load    float64
	health  Health
}

// NewBaseModel builds the shared model. Thresholds may be overridden through
// the degradation_threshold and failure_threshold params.
func NewBaseModel(cfg ServiceConfig, profile Profile, params *Params, rng *rand.Rand) BaseModel {
	if rng == nil {
		panic("NewBaseModel: nil rng")
	}
	profile.Thresholds.Degradation = params.Float("degradation_threshold", profile.Thresholds.Degradation)
	profile.Thresholds.Failure = params.Float("failure_threshold", profile.Thresholds.Failure)
	if profile.Thresholds.Degradation <= 0 || profile.Thresholds.Failure <= profile.Thresholds.Degradation {
		params.fail("thresholds must satisfy 0 < degradation (%v) < failure (%v)",
			profile.Thresholds.Degradation, profile.Thresholds.Failure)
	}
	if profile.LatencyMultiplier < 0 || profile.BaseLatencyMs < 0 {
		params.fail("latency profile must be non-negative")
	}
	return BaseModel{
		id:       cfg.ID,
		provider: cfg.Provider,
		typ:      cfg.Type,
		capacity: cfg.Capacity,
		baseCost: cfg.BaseCost,
		profile:  profile,
		rng:      rng,
		health:   HealthHealthy,
	}
}

func (b *BaseModel) ID() string             { return b.id }
func (b *BaseModel) Provider() Provider     { return b.provider }
func (b *BaseModel) Type() ServiceType      { return b.typ }
func (b *BaseModel) Capacity() int          { return b.capacity }
func (b *BaseModel) BaseCost() float64      { return b.baseCost }
func (b *BaseModel) Load() float64          { return b.load }
func (b *BaseModel) Health() Health         { return b.health }
func (b *BaseModel) Offered() int           { return b.offered }
func (b *BaseModel) Thresholds() Thresholds { return b.profile.Thresholds }
func (b *BaseModel) Rand() *rand.Rand       { return b.rng }

// SetCapacity changes the effective capacity, used by autoscaling variants.
// Non-positive values are ignored.
func (b *BaseModel) SetCapacity(capacity int) {
	if capacity > 0 {
		b.capacity = capacity
	}
}

// Observe records the offered count for this tick and derives load and health.
func (b *BaseModel) Observe(offered int) {
	if offered < 0 {
		offered = 0
	}
	b.offered = offered
	b.load = float64(offered) / float64(b.capacity)
	b.health = b.profile.Thresholds.Classify(b.load)
}

// LatencyMs returns round(base × (1 + (load × multiplier)²) × modifier).
func (b *BaseModel) LatencyMs(modifier float64) int {
	x := b.load * b.profile.LatencyMultiplier
	return int(math.Round(b.profile.BaseLatencyMs * (1 + x*x) * modifier))
}

// ShouldDrop applies the capacity drop policy for one request.
func (b *BaseModel) ShouldDrop() bool {
	if b.health == HealthFailed {
		return true
	}
	f := b.profile.Thresholds.Failure
	if b.load > f {
		return b.rng.Float64() < (b.load-f)/f
	}
	return false
}

// LoadCost is baseCost, scaled linearly by utilization above 50%.
func (b *BaseModel) LoadCost() float64 {
	if b.load <= 0.5 {
		return b.baseCost
	}
	return b.baseCost * (1 + (b.load - 0.5))
}

// Drop marks req dropped at this service.
func (b *BaseModel) Drop(req *Request) {
	req.Status = StatusDropped
	req.AddHop(b.id, 0)
}

// Block marks req blocked at this service after latencyMs of inspection.
func (b *BaseModel) Block(req *Request, latencyMs int) {
	req.Status = StatusBlocked
	req.AddHop(b.id, latencyMs)
}

// Serve marks req processed at this service with the curve latency times modifier.
func (b *BaseModel) Serve(req *Request, modifier float64) {
	req.Status = StatusProcessed
	req.AddHop(b.id, b.LatencyMs(modifier))
}

// Admit is the common path for variants without special handling: observe the
// batch, drop per policy, serve the rest with the per-request modifier.
func (b *BaseModel) Admit(batch []*Request, modifier func(*Request) float64) ProcessResult {
	b.Observe(len(batch))
	var res ProcessResult
	for _, req := range batch {
		if b.ShouldDrop() {
			b.Drop(req)
			res.Dropped = append(res.Dropped, req)
			continue
		}
		m := 1.0
		if modifier != nil {
			m = modifier(req)
		}
		b.Serve(req, m)
		res.Processed = append(res.Processed, req)
	}
	return res
}

// DropAll marks the whole batch dropped; used by failover and interruption events.
func (b *BaseModel) DropAll(batch []*Request) ProcessResult {
	res := ProcessResult{Dropped: make([]*Request, 0, len(batch))}
	for _, req := range batch {
		b.Drop(req)
		res.Dropped = append(res.Dropped, req)
	}
	return res
}

// BaseState fills the shared fields of a ServiceState.
func (b *BaseModel) BaseState(cost float64, stats map[string]float64) ServiceState {
	return ServiceState{
		ID:       b.id,
		Provider: b.provider,
		Type:     b.typ,
		Capacity: b.capacity,
		Offered:  b.offered,
		Load:     b.load,
		Health:   b.health,
		Cost:     cost,
		Stats:    stats,
	}
}

// === Variant registration ===

// ServiceFactory builds a variant from a config whose common fields are valid.
// Parameter problems are reported by returning a *ConfigurationError.
type ServiceFactory func(cfg ServiceConfig, rng *rand.Rand) (Service, error)

type variantKey struct {
	provider Provider
	typ      ServiceType
}

var variantFactories = make(map[variantKey]ServiceFactory)

// RegisterVariant installs the factory for a (provider, type) pair.
// sim/services calls this from init(); registering a pair twice panics.
func RegisterVariant(p Provider, t ServiceType, f ServiceFactory) {
	k := variantKey{p, t}
	if _, dup := variantFactories[k]; dup {
		panic(fmt.Sprintf("RegisterVariant: duplicate variant %s/%s", p, t))
	}
	variantFactories[k] = f
}

// HasVariant reports whether a factory is registered for the pair.
func HasVariant(p Provider, t ServiceType) bool {
	_, ok := variantFactories[variantKey{p, t}]
	return ok
}

// FinishParams turns accumulated parameter violations, plus any unknown keys,
// into a ConfigurationError. Variants call it last in their factory.
func FinishParams(cfg ServiceConfig, params *Params, known ...string) error {
	known = append(known, "degradation_threshold", "failure_threshold")
	violations := append([]string{}, params.Violations()...)
	for _, k := range params.Unknown(known...) {
		violations = append(violations, fmt.Sprintf("unknown param %q for %s/%s", k, cfg.Provider, cfg.Type))
	}
	return newConfigurationError(cfg.ID, violations)
}

// Violate records a cross-field rule failure on params.
func (p *Params) Violate(format string, args ...any) {
	p.fail(format, args...)
}
