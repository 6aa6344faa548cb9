// Package sim provides the core of the infrastructure simulation: requests,
// the shared service capacity model, the registry that routes traffic, and the
// scoring state machine.
//
// # Reading Guide
//
// Start with these files to understand one tick:
//   - request.go: Request lifecycle (pending → processed | dropped | blocked)
//   - service.go: the Service contract and BaseModel (load, health, latency, drops, cost)
//   - registry.go: deploy/remove, round-robin or topology routing, per-tick aggregation
//   - metrics.go: availability, latency, reputation and the game-over state machine
//
// # Architecture
//
// The sim package defines interfaces and shared types; implementations live in
// sub-packages:
//   - sim/services/: one variant per (provider × service type), registered via init()
//   - sim/waf/: firewall rule evaluation used by the firewall variants
//   - sim/workload/: traffic generation (growth, peak hours, bots, attacks, spikes)
//   - sim/game/: the tick orchestrator, command surface, snapshots and notifications
//   - sim/trace/: per-tick routing and firewall decision records
//
// sim/services registers its factories through RegisterVariant, breaking the
// import cycle between sim/ (interface owner) and the variants.
//
// # Key Interfaces
//
//   - Service: process a batch, report cost and state
//   - Forwarder: optional, lets a service finish a request early in topology routing
//   - RoutingPolicy: partition a batch across candidate services
package sim
