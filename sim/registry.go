package sim

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RegistryConfig selects how the registry routes traffic.
type RegistryConfig struct {
	Policy   string // routing policy name, see NewRoutingPolicy
	Topology bool   // route through typed stages instead of a flat pool
}

// ProviderSection is the per-provider bucket of deployed service IDs and the
// cost they incurred in the latest tick. Rebuilt from scratch every tick.
type ProviderSection struct {
	Provider   Provider        `json:"provider"`
	ServiceIDs []string        `json:"service_ids"`
	Cost       decimal.Decimal `json:"cost"`
}

// KindCounts is the per-kind outcome of one tick.
type KindCounts struct {
	Offered   int `json:"offered"`
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`
	Blocked   int `json:"blocked"`
}

// TickResult aggregates one tick of registry processing.
// Requests holds every request offered this tick in its final state; ownership
// passes to the caller.
type TickResult struct {
	Tick           int64
	Offered        int
	Processed      int
	Dropped        int
	Blocked        int
	TotalLatencyMs int64
	Revenue        float64
	Cost           float64
	ByKind         map[RequestKind]KindCounts
	Services       []ServiceState
	Sections       []ProviderSection
	Decisions      []RuleDecision
	Requests       []*Request
}

// Registry owns deployed services and routes each tick's traffic through them.
// Not safe for concurrent use; the game serializes access.
type Registry struct {
	config   RegistryConfig
	rng      *PartitionedRNG
	services []Service // deployment order
	byID     map[string]Service
	seq      int
	flat     RoutingPolicy
	stages   map[ServiceType]RoutingPolicy
	sections []ProviderSection
}

// NewRegistry creates an empty registry. Panics on an unknown policy name.
func NewRegistry(config RegistryConfig, rng *PartitionedRNG) *Registry {
	if rng == nil {
		panic("NewRegistry: nil rng")
	}
	r := &Registry{
		config: config,
		rng:    rng,
		byID:   make(map[string]Service),
		flat:   NewRoutingPolicy(config.Policy, rng.ForSubsystem(SubsystemRouter)),
		stages: make(map[ServiceType]RoutingPolicy),
	}
	for _, t := range topologyStages {
		r.stages[t] = NewRoutingPolicy(config.Policy, rng.ForSubsystem(SubsystemRouter))
	}
	r.sections = r.buildSections(nil)
	return r
}

// Deploy validates cfg, builds its variant and admits it. On failure it returns
// a *ConfigurationError listing every violation and the registry is unchanged.
func (r *Registry) Deploy(cfg ServiceConfig) (Service, error) {
	var violations []string
	if cfg.Capacity <= 0 {
		violations = append(violations, fmt.Sprintf("capacity must be > 0, got %d", cfg.Capacity))
	}
	if cfg.BaseCost < 0 || math.IsNaN(cfg.BaseCost) || math.IsInf(cfg.BaseCost, 0) {
		violations = append(violations, fmt.Sprintf("base_cost must be a finite value >= 0, got %v", cfg.BaseCost))
	}
	validProvider := IsValidProvider(cfg.Provider)
	if !validProvider {
		violations = append(violations, fmt.Sprintf("unknown provider %q (want aws, gcp or azure)", cfg.Provider))
	}
	validType := IsValidServiceType(cfg.Type)
	if !validType {
		violations = append(violations, fmt.Sprintf("unknown service type %q", cfg.Type))
	}
	if cfg.ID == "" {
		cfg.ID = fmt.Sprintf("%s-%s-%d", cfg.Provider, cfg.Type, r.seq+1)
	}
	if _, dup := r.byID[cfg.ID]; dup {
		violations = append(violations, fmt.Sprintf("service id %q already deployed", cfg.ID))
	}

	var svc Service
	if validProvider && validType {
		factory, ok := variantFactories[variantKey{cfg.Provider, cfg.Type}]
		if !ok {
			violations = append(violations, fmt.Sprintf("no variant registered for %s/%s", cfg.Provider, cfg.Type))
		} else {
			built, err := factory(cfg, r.rng.ForSubsystem(SubsystemInstance(r.seq)))
			if err != nil {
				if cfgErr, ok := err.(*ConfigurationError); ok {
					violations = append(violations, cfgErr.Violations...)
				} else {
					violations = append(violations, err.Error())
				}
			}
			svc = built
		}
	}
	if err := newConfigurationError(cfg.ID, violations); err != nil {
		return nil, err
	}

	r.seq++
	r.services = append(r.services, svc)
	r.byID[svc.ID()] = svc
	r.sections = r.buildSections(nil)
	logrus.Debugf("registry: deployed %s (%s/%s, capacity=%d)", svc.ID(), svc.Provider(), svc.Type(), svc.Capacity())
	return svc, nil
}

// Remove deletes the service with the given ID. Returns false if it was not
// deployed; removing twice is harmless.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, svc := range r.services {
		if svc.ID() == id {
			r.services = append(r.services[:i:i], r.services[i+1:]...)
			break
		}
	}
	r.sections = r.buildSections(nil)
	logrus.Debugf("registry: removed %s", id)
	return true
}

// Get returns the service with the given ID.
func (r *Registry) Get(id string) (Service, bool) {
	svc, ok := r.byID[id]
	return svc, ok
}

// Services returns deployed services in deployment order.
func (r *Registry) Services() []Service {
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}

// Len returns the number of deployed services.
func (r *Registry) Len() int {
	return len(r.services)
}

// Sections returns a copy of the provider buckets as of the latest tick.
func (r *Registry) Sections() []ProviderSection {
	out := make([]ProviderSection, len(r.sections))
	for i, s := range r.sections {
		out[i] = ProviderSection{Provider: s.Provider, ServiceIDs: append([]string(nil), s.ServiceIDs...), Cost: s.Cost}
	}
	return out
}

// Route partitions batch across all deployed services with the flat policy.
// Keys are service IDs; services receiving nothing are omitted.
func (r *Registry) Route(batch []*Request) map[string][]*Request {
	out := make(map[string][]*Request)
	parts := r.flat.Partition(batch, r.services)
	for i, part := range parts {
		if len(part) > 0 {
			out[r.services[i].ID()] = part
		}
	}
	return out
}

// Process routes and processes one tick of traffic. Every deployed service is
// processed, idle ones with an empty batch, so load and health stay current.
// With no services, every request is dropped.
func (r *Registry) Process(ctx TickContext, batch []*Request) TickResult {
	result := TickResult{
		Tick:     ctx.Tick,
		Offered:  len(batch),
		ByKind:   make(map[RequestKind]KindCounts),
		Requests: batch,
	}

	if len(r.services) == 0 {
		for _, req := range batch {
			req.Status = StatusDropped
		}
		if len(batch) > 0 {
			logrus.Debugf("[tick %07d] registry: no services deployed, dropping %d requests", ctx.Tick, len(batch))
		}
	} else if r.config.Topology {
		r.processTopology(ctx, batch)
	} else {
		parts := r.flat.Partition(batch, r.services)
		for i, svc := range r.services {
			checkConservation(svc, parts[i], svc.Process(ctx, parts[i]))
		}
	}

	for _, req := range batch {
		kc := result.ByKind[req.Kind]
		kc.Offered++
		switch req.Status {
		case StatusProcessed:
			result.Processed++
			kc.Processed++
			result.TotalLatencyMs += int64(req.LatencyMs)
			result.Revenue += req.Value
		case StatusBlocked:
			result.Blocked++
			kc.Blocked++
		default:
			// pending here means a service lost track of it; count as dropped
			req.Status = StatusDropped
			result.Dropped++
			kc.Dropped++
		}
		result.ByKind[req.Kind] = kc
	}

	costs := make(map[string]float64, len(r.services))
	result.Services = make([]ServiceState, 0, len(r.services))
	for _, svc := range r.services {
		st := svc.State()
		costs[svc.ID()] = st.Cost
		result.Cost += st.Cost
		result.Services = append(result.Services, st)
		if rep, ok := svc.(DecisionReporter); ok {
			result.Decisions = append(result.Decisions, rep.Decisions()...)
		}
	}
	r.sections = r.buildSections(costs)
	result.Sections = r.Sections()
	return result
}

// processTopology sends requests through typed stages. A request leaves the
// pipeline when it is dropped, blocked, finished by a Forwarder, or processed
// by the last populated stage.
func (r *Registry) processTopology(ctx TickContext, batch []*Request) {
	byType := make(map[ServiceType][]Service)
	var populated []ServiceType
	for _, t := range topologyStages {
		for _, svc := range r.services {
			if svc.Type() == t {
				byType[t] = append(byType[t], svc)
			}
		}
		if len(byType[t]) > 0 {
			populated = append(populated, t)
		}
	}

	current := batch
	for si, t := range populated {
		last := si == len(populated)-1
		candidates := byType[t]
		parts := r.stages[t].Partition(current, candidates)
		var next []*Request
		for i, svc := range candidates {
			res := svc.Process(ctx, parts[i])
			checkConservation(svc, parts[i], res)
			if last {
				continue
			}
			fwd, isForwarder := svc.(Forwarder)
			for _, req := range res.Processed {
				if isForwarder && fwd.Terminal(req) {
					continue
				}
				req.Status = StatusPending
				next = append(next, req)
			}
		}
		current = next
	}
}

// checkConservation logs variants that lose or duplicate requests.
func checkConservation(svc Service, in []*Request, res ProcessResult) {
	if res.Total() != len(in) {
		logrus.Errorf("service %s returned %d requests for a batch of %d", svc.ID(), res.Total(), len(in))
	}
}

func (r *Registry) buildSections(costs map[string]float64) []ProviderSection {
	sections := make([]ProviderSection, 0, len(Providers))
	for _, p := range Providers {
		sec := ProviderSection{Provider: p, ServiceIDs: []string{}, Cost: decimal.Zero}
		for _, svc := range r.services {
			if svc.Provider() != p {
				continue
			}
			sec.ServiceIDs = append(sec.ServiceIDs, svc.ID())
			sec.Cost = sec.Cost.Add(decimal.NewFromFloat(costs[svc.ID()]))
		}
		sections = append(sections, sec)
	}
	return sections
}
