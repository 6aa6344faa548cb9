package services

import "github.com/infra-sim/infra-sim/sim"

// profiles holds the latency curve and health thresholds of every variant.
// Compute degrades above capacity and fails above 1.3× capacity on every provider.
var profiles = map[sim.Provider]map[sim.ServiceType]sim.Profile{
	sim.ProviderAWS: {
		sim.TypeLoadBalancer: {BaseLatencyMs: 5, LatencyMultiplier: 0.5, Thresholds: sim.Thresholds{Degradation: 0.85, Failure: 1.5}},
		sim.TypeCompute:      {BaseLatencyMs: 50, LatencyMultiplier: 1.0, Thresholds: sim.Thresholds{Degradation: 1.0, Failure: 1.3}},
		sim.TypeCache:        {BaseLatencyMs: 2, LatencyMultiplier: 0.8, Thresholds: sim.Thresholds{Degradation: 0.75, Failure: 1.2}},
		sim.TypeDatabase:     {BaseLatencyMs: 20, LatencyMultiplier: 1.2, Thresholds: sim.Thresholds{Degradation: 0.7, Failure: 1.1}},
		sim.TypeQueue:        {BaseLatencyMs: 10, LatencyMultiplier: 0.6, Thresholds: sim.Thresholds{Degradation: 0.9, Failure: 1.5}},
		sim.TypeFirewall:     {BaseLatencyMs: 1, LatencyMultiplier: 0.4, Thresholds: sim.Thresholds{Degradation: 0.9, Failure: 1.5}},
	},
	sim.ProviderGCP: {
		sim.TypeLoadBalancer: {BaseLatencyMs: 4, LatencyMultiplier: 0.5, Thresholds: sim.Thresholds{Degradation: 0.85, Failure: 1.6}},
		sim.TypeCompute:      {BaseLatencyMs: 45, LatencyMultiplier: 1.0, Thresholds: sim.Thresholds{Degradation: 1.0, Failure: 1.3}},
		sim.TypeCache:        {BaseLatencyMs: 2, LatencyMultiplier: 0.8, Thresholds: sim.Thresholds{Degradation: 0.75, Failure: 1.2}},
		sim.TypeDatabase:     {BaseLatencyMs: 22, LatencyMultiplier: 1.2, Thresholds: sim.Thresholds{Degradation: 0.7, Failure: 1.1}},
		sim.TypeQueue:        {BaseLatencyMs: 8, LatencyMultiplier: 0.6, Thresholds: sim.Thresholds{Degradation: 0.9, Failure: 1.6}},
		sim.TypeFirewall:     {BaseLatencyMs: 1, LatencyMultiplier: 0.4, Thresholds: sim.Thresholds{Degradation: 0.9, Failure: 1.5}},
	},
	sim.ProviderAzure: {
		sim.TypeLoadBalancer: {BaseLatencyMs: 6, LatencyMultiplier: 0.6, Thresholds: sim.Thresholds{Degradation: 0.8, Failure: 1.4}},
		sim.TypeCompute:      {BaseLatencyMs: 55, LatencyMultiplier: 1.1, Thresholds: sim.Thresholds{Degradation: 1.0, Failure: 1.3}},
		sim.TypeCache:        {BaseLatencyMs: 3, LatencyMultiplier: 0.9, Thresholds: sim.Thresholds{Degradation: 0.7, Failure: 1.2}},
		sim.TypeDatabase:     {BaseLatencyMs: 25, LatencyMultiplier: 1.3, Thresholds: sim.Thresholds{Degradation: 0.7, Failure: 1.1}},
		sim.TypeQueue:        {BaseLatencyMs: 12, LatencyMultiplier: 0.7, Thresholds: sim.Thresholds{Degradation: 0.85, Failure: 1.4}},
		sim.TypeFirewall:     {BaseLatencyMs: 2, LatencyMultiplier: 0.5, Thresholds: sim.Thresholds{Degradation: 0.85, Failure: 1.4}},
	},
}

// profileFor returns the profile for the pair. Panics if the table is missing
// an entry, which would be a registration bug.
func profileFor(p sim.Provider, t sim.ServiceType) sim.Profile {
	prof, ok := profiles[p][t]
	if !ok {
		panic("services: no profile for " + string(p) + "/" + string(t))
	}
	return prof
}

// kbPerGB converts payload kilobytes to gigabytes for per-GB pricing.
const kbPerGB = 1024 * 1024

// payloadGB sums the payload of a batch in gigabytes.
func payloadGB(reqs []*sim.Request) float64 {
	total := 0
	for _, r := range reqs {
		total += r.SizeKB
	}
	return float64(total) / kbPerGB
}
