package services

import (
	"math"
	"math/rand"

	"github.com/infra-sim/infra-sim/sim"
)

// LoadBalancer models ALB, Cloud Load Balancing and Application Gateway.
//
// Extension state: active client connections (keep-alive connections decay by
// half each tick) and the billing unit each provider meters on.
type LoadBalancer struct {
	sim.BaseModel

	tlsTermination bool
	sticky         bool
	crossZone      bool
	forwarding     int  // gcp: forwarding rules
	wafSKU         bool // azure: WAF_v2 SKU
	unitRate       float64
	gbRate         float64

	activeConns  float64
	newConns     int
	peakConns    float64
	processedGB  float64
	billingUnits float64
}

var lbParams = []string{"scheme", "tls_termination", "sticky_sessions", "cross_zone", "forwarding_rules", "sku", "unit_rate"}

func newLoadBalancer(cfg sim.ServiceConfig, rng *rand.Rand, unitRate, gbRate float64) (*LoadBalancer, *sim.Params) {
	params := sim.NewParams(cfg.Params)
	lb := &LoadBalancer{
		BaseModel:      sim.NewBaseModel(cfg, profileFor(cfg.Provider, cfg.Type), params, rng),
		tlsTermination: params.Bool("tls_termination", true),
		sticky:         params.Bool("sticky_sessions", false),
		crossZone:      params.Bool("cross_zone", true),
		unitRate:       params.Float("unit_rate", unitRate),
		gbRate:         gbRate,
	}
	params.OneOf("scheme", "internet-facing", "internet-facing", "internal")
	if lb.unitRate < 0 {
		params.Violate("unit_rate must be >= 0, got %v", lb.unitRate)
	}
	return lb, params
}

func newALB(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	lb, params := newLoadBalancer(cfg, rng, 0.008, 0.0)
	if params.Has("forwarding_rules") || params.Has("sku") {
		params.Violate("forwarding_rules and sku are not ALB settings")
	}
	return lb, sim.FinishParams(cfg, params, lbParams...)
}

func newCloudLoadBalancing(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	lb, params := newLoadBalancer(cfg, rng, 0.025, 0.008)
	lb.forwarding = params.NonNegativeInt("forwarding_rules", 1)
	if lb.forwarding == 0 {
		params.Violate("forwarding_rules must be >= 1")
	}
	if params.Has("sku") {
		params.Violate("sku is not a Cloud Load Balancing setting")
	}
	return lb, sim.FinishParams(cfg, params, lbParams...)
}

func newApplicationGateway(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	lb, params := newLoadBalancer(cfg, rng, 0.008, 0.0)
	lb.wafSKU = params.OneOf("sku", "standard_v2", "standard_v2", "waf_v2") == "waf_v2"
	if params.Has("forwarding_rules") {
		params.Violate("forwarding_rules is not an Application Gateway setting")
	}
	return lb, sim.FinishParams(cfg, params, lbParams...)
}

// Process implements sim.Service.
func (lb *LoadBalancer) Process(ctx sim.TickContext, batch []*sim.Request) sim.ProcessResult {
	res := lb.Admit(batch, lb.modifier)

	clients := make(map[string]bool)
	for _, req := range res.Processed {
		clients[req.ClientIP] = true
	}
	lb.newConns = len(clients)
	if lb.sticky {
		// sticky sessions reuse half of the new connections
		lb.newConns = (lb.newConns + 1) / 2
	}
	lb.activeConns = lb.activeConns/2 + float64(lb.newConns)
	lb.peakConns = math.Max(lb.peakConns, lb.activeConns)
	lb.processedGB = payloadGB(res.Processed)
	lb.billingUnits = lb.meter(len(res.Processed))
	return res
}

func (lb *LoadBalancer) modifier(_ *sim.Request) float64 {
	m := 1.0
	if lb.tlsTermination {
		m *= 1.1
	}
	if lb.sticky {
		m *= 0.95
	}
	if !lb.crossZone {
		m *= 1.05
	}
	return m
}

// meter computes the provider billing unit for this tick.
func (lb *LoadBalancer) meter(processed int) float64 {
	switch lb.Provider() {
	case sim.ProviderAWS:
		// LCU: max over new connections, active connections, bytes and rule evaluations
		return math.Max(math.Max(float64(lb.newConns)/25, lb.activeConns/3000),
			math.Max(lb.processedGB*1000, float64(processed)/1000))
	case sim.ProviderAzure:
		// capacity units: compute, persistent connections, throughput
		return math.Max(math.Max(float64(processed)/50, lb.activeConns/2500), lb.processedGB*1000/2.22)
	default:
		return float64(lb.forwarding)
	}
}

// CostBreakdown implements sim.Service.
func (lb *LoadBalancer) CostBreakdown() []sim.CostTerm {
	terms := []sim.CostTerm{{Name: "load", Amount: lb.LoadCost()}}
	switch lb.Provider() {
	case sim.ProviderAWS:
		terms = append(terms, sim.CostTerm{Name: "lcu", Amount: lb.billingUnits * lb.unitRate})
	case sim.ProviderGCP:
		terms = append(terms,
			sim.CostTerm{Name: "forwarding_rules", Amount: lb.billingUnits * lb.unitRate},
			sim.CostTerm{Name: "data_processing", Amount: lb.processedGB * lb.gbRate})
	case sim.ProviderAzure:
		terms = append(terms, sim.CostTerm{Name: "capacity_units", Amount: lb.billingUnits * lb.unitRate})
		if lb.wafSKU {
			terms = append(terms, sim.CostTerm{Name: "waf_sku", Amount: lb.BaseCost() * 0.8})
		}
	}
	return terms
}

// Cost implements sim.Service.
func (lb *LoadBalancer) Cost() float64 { return sim.SumCost(lb.CostBreakdown()) }

// State implements sim.Service.
func (lb *LoadBalancer) State() sim.ServiceState {
	return lb.BaseState(lb.Cost(), map[string]float64{
		"active_connections": lb.activeConns,
		"new_connections":    float64(lb.newConns),
		"peak_connections":   lb.peakConns,
		"billing_units":      lb.billingUnits,
	})
}
