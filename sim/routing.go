package sim

import (
	"fmt"
	"math/rand"
)

// RoutingPolicy partitions a batch across candidate services.
// The returned slice is parallel to candidates; every request appears in exactly
// one partition. Implementations may keep state across ticks.
type RoutingPolicy interface {
	Partition(batch []*Request, candidates []Service) [][]*Request
}

// RoundRobin assigns requests uniformly in rotation, regardless of service type.
// The rotation offset carries over between calls so that small batches do not
// always land on the first instance.
type RoundRobin struct {
	counter int
}

// Partition implements RoutingPolicy for RoundRobin.
func (rr *RoundRobin) Partition(batch []*Request, candidates []Service) [][]*Request {
	parts := make([][]*Request, len(candidates))
	if len(candidates) == 0 {
		return parts
	}
	for _, req := range batch {
		idx := rr.counter % len(candidates)
		parts[idx] = append(parts[idx], req)
		rr.counter++
	}
	return parts
}

// CapacityWeighted spreads requests in proportion to capacity using smooth
// weighted round-robin: each pick adds every weight to its running score,
// chooses the highest score and subtracts the total from it. Ties go to the
// first candidate in deployment order.
type CapacityWeighted struct {
	current map[string]int
}

// Partition implements RoutingPolicy for CapacityWeighted.
func (cw *CapacityWeighted) Partition(batch []*Request, candidates []Service) [][]*Request {
	parts := make([][]*Request, len(candidates))
	if len(candidates) == 0 {
		return parts
	}
	total := 0
	for _, svc := range candidates {
		total += svc.Capacity()
	}
	for _, req := range batch {
		best := 0
		for i, svc := range candidates {
			cw.current[svc.ID()] += svc.Capacity()
			if cw.current[svc.ID()] > cw.current[candidates[best].ID()] {
				best = i
			}
		}
		cw.current[candidates[best].ID()] -= total
		parts[best] = append(parts[best], req)
	}
	return parts
}

// Random assigns each request to a uniformly random candidate.
type Random struct {
	rng *rand.Rand
}

// Partition implements RoutingPolicy for Random.
func (r *Random) Partition(batch []*Request, candidates []Service) [][]*Request {
	parts := make([][]*Request, len(candidates))
	if len(candidates) == 0 {
		return parts
	}
	for _, req := range batch {
		idx := r.rng.Intn(len(candidates))
		parts[idx] = append(parts[idx], req)
	}
	return parts
}

// validRoutingPolicies is the set of recognized routing policy names.
var validRoutingPolicies = map[string]bool{"": true, "round-robin": true, "capacity-weighted": true, "random": true}

// IsValidRoutingPolicy returns true if name is a recognized routing policy.
func IsValidRoutingPolicy(name string) bool {
	return validRoutingPolicies[name]
}

// NewRoutingPolicy creates a routing policy by name.
// Empty string defaults to round-robin. Panics on unrecognized names, and on a
// nil rng for the random policy.
func NewRoutingPolicy(name string, rng *rand.Rand) RoutingPolicy {
	if !IsValidRoutingPolicy(name) {
		panic(fmt.Sprintf("unknown routing policy %q", name))
	}
	switch name {
	case "", "round-robin":
		return &RoundRobin{}
	case "capacity-weighted":
		return &CapacityWeighted{current: make(map[string]int)}
	case "random":
		if rng == nil {
			panic("NewRoutingPolicy: random policy needs an rng")
		}
		return &Random{rng: rng}
	default:
		panic(fmt.Sprintf("unhandled routing policy %q", name))
	}
}

// topologyStages is the order requests traverse when the registry routes by
// topology. Absent stages are skipped.
var topologyStages = []ServiceType{TypeFirewall, TypeLoadBalancer, TypeCache, TypeCompute, TypeQueue, TypeDatabase}
