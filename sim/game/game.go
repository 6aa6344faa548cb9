// Package game drives the simulation clock: it owns the registry, traffic
// generator, metrics and trace for one session, serializes every command
// against the tick, and publishes snapshots and notifications.
package game

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/trace"
	"github.com/infra-sim/infra-sim/sim/workload"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownService is returned when a command names a service that is not deployed.
	ErrUnknownService = errors.New("unknown service")
	// ErrGameOver is returned by Start once a termination trigger has fired.
	ErrGameOver = errors.New("game is over")
)

// Game is one simulation session. All methods are safe for concurrent use.
//
// Lock order: tickMu, then mu. loopMu is never held while acquiring either.
type Game struct {
	config Config

	tickMu sync.Mutex // held for the duration of one tick
	mu     sync.Mutex // guards the fields below

	sessionID    string
	registry     *sim.Registry
	generator    *workload.Generator
	metrics      *sim.GameMetrics
	trace        *trace.SimulationTrace
	tick         int64
	totalCost    decimal.Decimal
	totalRevenue decimal.Decimal

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}

	epoch    atomic.Uint64 // bumped whenever the clock stops; stale clock ticks compare against it
	running  atomic.Bool
	skipped  atomic.Int64
	snapshot atomic.Pointer[Snapshot]
	bus      *bus
}

// New validates config and returns a paused game at tick 0.
func New(config Config) (*Game, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	g := &Game{config: config, bus: newBus()}
	g.mu.Lock()
	err := g.rebuild()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	logrus.Infof("game: session %s created (seed=%d, routing=%s, topology=%v)",
		g.sessionID, config.Seed, config.Routing, config.Topology)
	return g, nil
}

// rebuild replaces all session state. Caller holds mu.
func (g *Game) rebuild() error {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(g.config.Seed))
	gen, err := workload.NewGenerator(g.config.Workload,
		rng.ForSubsystem(sim.SubsystemWorkload), rng.ForSubsystem(sim.SubsystemAttack))
	if err != nil {
		return err
	}
	g.sessionID = uuid.NewString()
	g.generator = gen
	g.registry = sim.NewRegistry(sim.RegistryConfig{Policy: g.config.Routing, Topology: g.config.Topology}, rng)
	g.metrics = sim.NewGameMetrics(g.config.Metrics)
	g.trace = trace.NewSimulationTrace(g.config.Trace)
	g.tick = 0
	g.totalCost = decimal.Zero
	g.totalRevenue = decimal.Zero
	g.storeSnapshot()
	return nil
}

// Config returns the configuration the game was created with.
func (g *Game) Config() Config { return g.config }

// SessionID identifies the current session; Reset starts a new one.
func (g *Game) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

// Running reports whether the clock is ticking.
func (g *Game) Running() bool { return g.running.Load() }

// Subscribe registers h for every event and returns a function that
// unsubscribes it. Handlers run synchronously after the state lock is
// released; a panicking handler is logged and skipped.
func (g *Game) Subscribe(h Handler) (unsubscribe func()) {
	return g.bus.subscribe(h)
}

// Snapshot returns the latest published state.
func (g *Game) Snapshot() Snapshot {
	return g.view(g.snapshot.Load())
}

// view adds the clock fields, which change outside the state lock.
func (g *Game) view(p *Snapshot) Snapshot {
	s := *p
	s.Running = g.running.Load()
	s.SkippedTicks = g.skipped.Load()
	return s
}

// Tick runs one tick now. It reports false when the tick was skipped because
// another tick was still in progress. After game over it does nothing.
func (g *Game) Tick() bool {
	if !g.tickMu.TryLock() {
		n := g.skipped.Add(1)
		logrus.Warnf("game: tick overlapped one still in progress, skipped (%d so far)", n)
		return false
	}
	events := g.step()
	g.tickMu.Unlock()
	g.bus.publish(events)
	return true
}

// Advance runs up to n ticks synchronously and returns how many ran; it stops
// early when the game ends.
func (g *Game) Advance(n int) int {
	ran := 0
	for ; ran < n; ran++ {
		g.tickMu.Lock()
		if g.over() {
			g.tickMu.Unlock()
			break
		}
		events := g.step()
		g.tickMu.Unlock()
		g.bus.publish(events)
	}
	return ran
}

func (g *Game) over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.Over()
}

// step is one pass of generate, process, score and publish. Caller holds tickMu.
func (g *Game) step() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.metrics.Over() {
		logrus.Debugf("[tick %07d] game: over (%s), ignoring tick", g.tick, g.metrics.Reason())
		return nil
	}

	ctx := sim.NewTickContext(g.tick)
	events := []Event{g.event(EventTickStarted, ctx, nil)}

	spike, _ := g.generator.Spike()
	prev, hadPrev := g.generator.ActiveAttack()
	batch := g.generator.Generate(ctx.Tick)
	traffic := TrafficPayload{Offered: len(batch), ByKind: make(map[sim.RequestKind]int), SpikeMultiplier: spike}
	for _, req := range batch {
		traffic.ByKind[req.Kind]++
	}
	if a, ok := g.generator.ActiveAttack(); ok {
		traffic.Attack = &a
	} else if hadPrev {
		// the episode's last tick clears it inside Generate
		traffic.Attack = &prev
	}
	events = append(events, g.event(EventTrafficGenerated, ctx, traffic))

	result := g.registry.Process(ctx, batch)
	byKind := make(map[sim.RequestKind]sim.KindCounts, len(result.ByKind))
	for k, v := range result.ByKind {
		byKind[k] = v
	}
	events = append(events, g.event(EventRequestsProcessed, ctx, ProcessedPayload{
		Offered:   result.Offered,
		Processed: result.Processed,
		Dropped:   result.Dropped,
		Blocked:   result.Blocked,
		ByKind:    byKind,
	}))

	snap := g.metrics.Update(result)
	events = append(events, g.event(EventMetricsUpdated, ctx, snap))

	g.totalCost = g.totalCost.Add(decimal.NewFromFloat(result.Cost))
	g.totalRevenue = g.totalRevenue.Add(decimal.NewFromFloat(result.Revenue))
	g.record(result, snap)

	logrus.Debugf("[tick %07d] game: offered=%d processed=%d dropped=%d blocked=%d avail=%.2f rep=%.1f",
		ctx.Tick, result.Offered, result.Processed, result.Dropped, result.Blocked, snap.Availability, snap.Reputation)

	g.tick++
	if snap.GameOver {
		events = append(events, g.event(EventGameOver, ctx, GameOverPayload{Reason: snap.Reason, Reputation: snap.Reputation}))
		g.stopClock(false)
	}
	published := g.storeSnapshot()
	events = append(events, g.event(EventRenderRequested, ctx, g.view(published)))
	return events
}

// record writes the tick into the decision trace. Caller holds mu.
func (g *Game) record(result sim.TickResult, snap sim.MetricsSnapshot) {
	g.trace.RecordTick(trace.TickRecord{
		Tick:         result.Tick,
		Offered:      result.Offered,
		Processed:    result.Processed,
		Dropped:      result.Dropped,
		Blocked:      result.Blocked,
		Availability: snap.Availability,
		Reputation:   snap.Reputation,
		Cost:         result.Cost,
	})
	if !g.trace.Enabled(trace.TraceLevelDecisions) {
		return
	}
	for _, d := range result.Decisions {
		g.trace.RecordFirewall(trace.FirewallRecord{
			RequestID:       d.RequestID,
			Tick:            d.Tick,
			ServiceID:       d.ServiceID,
			Kind:            string(d.Kind),
			Source:          d.Source,
			Action:          d.Action,
			TerminatingRule: d.TerminatingRule,
			MatchedRules:    d.MatchedRules,
			DefaultApplied:  d.DefaultApplied,
			Blocked:         d.Status == sim.StatusBlocked,
		})
	}
	for _, req := range result.Requests {
		path := make([]string, len(req.Path))
		for i, hop := range req.Path {
			path[i] = hop.ServiceID
		}
		g.trace.RecordRouting(trace.RoutingRecord{
			RequestID: req.ID,
			Tick:      req.Tick,
			Kind:      string(req.Kind),
			Status:    string(req.Status),
			Path:      path,
			LatencyMs: req.LatencyMs,
		})
	}
}

// storeSnapshot publishes the current state. Caller holds mu.
func (g *Game) storeSnapshot() *Snapshot {
	m := g.metrics.Snapshot()
	services := g.registry.Services()
	s := &Snapshot{
		SessionID:    g.sessionID,
		Tick:         g.tick,
		SimTime:      sim.NewTickContext(g.tick).Now,
		State:        g.metrics.State(),
		Reason:       g.metrics.Reason(),
		Metrics:      m,
		Sections:     g.registry.Sections(),
		Services:     make([]sim.ServiceState, 0, len(services)),
		Costs:        make(map[string][]sim.CostTerm, len(services)),
		TotalCost:    g.totalCost,
		TotalRevenue: g.totalRevenue,
	}
	for _, svc := range services {
		st := svc.State()
		if st.Stats != nil {
			stats := make(map[string]float64, len(st.Stats))
			for k, v := range st.Stats {
				stats[k] = v
			}
			st.Stats = stats
		}
		s.Services = append(s.Services, st)
		s.Costs[svc.ID()] = append([]sim.CostTerm(nil), svc.CostBreakdown()...)
	}
	if a, ok := g.generator.ActiveAttack(); ok {
		s.Attack = &a
	}
	s.SpikeMultiplier, s.SpikeRemaining = g.generator.Spike()
	g.snapshot.Store(s)
	return s
}

// event stamps a notification for the current session. Caller holds mu.
func (g *Game) event(t EventType, ctx sim.TickContext, payload any) Event {
	return Event{Type: t, SessionID: g.sessionID, Tick: ctx.Tick, SimTime: ctx.Now, Payload: payload}
}

// === Clock ===

// Start runs the clock: every TickInterval a tick is launched on its own
// goroutine. Starting a running game does nothing.
func (g *Game) Start() error {
	if g.over() {
		return ErrGameOver
	}
	g.loopMu.Lock()
	defer g.loopMu.Unlock()
	if g.stop != nil {
		return nil
	}
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	g.running.Store(true)
	go g.loop(g.epoch.Load(), g.stop, g.done)
	logrus.Infof("game: clock started (interval=%v)", g.config.TickInterval)
	return nil
}

// Pause stops the clock and waits for the clock goroutine to exit. A tick
// already in progress completes; pausing a paused game does nothing.
func (g *Game) Pause() {
	g.stopClock(true)
}

// stopClock halts the loop. wait is false when called from inside a tick,
// where waiting is unnecessary since the loop never takes tickMu or mu.
func (g *Game) stopClock(wait bool) {
	g.loopMu.Lock()
	stop, done := g.stop, g.done
	g.stop, g.done = nil, nil
	g.loopMu.Unlock()
	if stop == nil {
		return
	}
	g.epoch.Add(1)
	g.running.Store(false)
	close(stop)
	if wait {
		<-done
	}
	logrus.Infof("game: clock stopped")
}

func (g *Game) loop(epoch uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			go g.clockTick(epoch)
		}
	}
}

// clockTick is Tick for the clock goroutine; ticks launched before the clock
// stopped are discarded.
func (g *Game) clockTick(epoch uint64) {
	if g.epoch.Load() != epoch {
		return
	}
	if !g.tickMu.TryLock() {
		n := g.skipped.Add(1)
		logrus.Warnf("game: clock tick overlapped one still in progress, skipped (%d so far)", n)
		return
	}
	var events []Event
	if g.epoch.Load() == epoch {
		events = g.step()
	}
	g.tickMu.Unlock()
	g.bus.publish(events)
}

// === Commands ===

// Reset stops the clock and discards all deployments, traffic state, metrics
// and trace records. The game returns to tick 0 with a new session ID.
func (g *Game) Reset() error {
	g.stopClock(true)
	g.tickMu.Lock()
	g.mu.Lock()
	err := g.rebuild()
	var ev []Event
	if err == nil {
		g.skipped.Store(0)
		ev = []Event{g.event(EventRenderRequested, sim.NewTickContext(0), g.view(g.snapshot.Load()))}
	}
	session := g.sessionID
	g.mu.Unlock()
	g.tickMu.Unlock()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	logrus.Infof("game: reset, new session %s", session)
	g.bus.publish(ev)
	return nil
}

// DeployService admits a service. A *sim.ConfigurationError lists every
// violated rule; nothing is deployed in that case.
func (g *Game) DeployService(cfg sim.ServiceConfig) (sim.ServiceState, error) {
	g.mu.Lock()
	svc, err := g.registry.Deploy(cfg)
	if err != nil {
		g.mu.Unlock()
		logrus.Warnf("game: deploy rejected: %v", err)
		return sim.ServiceState{}, err
	}
	st := svc.State()
	g.storeSnapshot()
	ev := g.event(EventServiceDeployed, sim.NewTickContext(g.tick), st)
	g.mu.Unlock()

	logrus.Infof("game: deployed %s (%s/%s)", st.ID, st.Provider, st.Type)
	g.bus.publish([]Event{ev})
	return st, nil
}

// RemoveService removes a deployed service.
func (g *Game) RemoveService(id string) error {
	g.mu.Lock()
	if !g.registry.Remove(id) {
		g.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownService, id)
	}
	g.storeSnapshot()
	ev := g.event(EventServiceRemoved, sim.NewTickContext(g.tick), RemovedPayload{ID: id})
	g.mu.Unlock()

	logrus.Infof("game: removed %s", id)
	g.bus.publish([]Event{ev})
	return nil
}

// TriggerSpike multiplies traffic for the next durationSeconds ticks. Each
// tick is one simulated second.
func (g *Game) TriggerSpike(multiplier float64, durationSeconds int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.generator.TriggerSpike(multiplier, durationSeconds); err != nil {
		return err
	}
	g.storeSnapshot()
	return nil
}

// StartAttack begins an attack episode at the next tick.
func (g *Game) StartAttack(vector string, durationSeconds int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.generator.StartAttack(g.tick, vector, durationSeconds); err != nil {
		return err
	}
	g.storeSnapshot()
	return nil
}

// TraceSummary aggregates the decision trace collected so far.
func (g *Game) TraceSummary() *trace.TraceSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return trace.Summarize(g.trace)
}

// RecentTicks returns up to n of the latest per-tick trace records, oldest first.
func (g *Game) RecentTicks(n int) []trace.TickRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	ticks := g.trace.Ticks
	if n >= 0 && n < len(ticks) {
		ticks = ticks[len(ticks)-n:]
	}
	return append([]trace.TickRecord(nil), ticks...)
}
