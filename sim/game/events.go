package game

import (
	"sort"
	"sync"
	"time"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/workload"
	"github.com/sirupsen/logrus"
)

// EventType names a notification published by the game.
type EventType string

const (
	EventTickStarted       EventType = "tick_started"
	EventTrafficGenerated  EventType = "traffic_generated"
	EventRequestsProcessed EventType = "requests_processed"
	EventMetricsUpdated    EventType = "metrics_updated"
	EventRenderRequested   EventType = "render_requested"
	EventServiceDeployed   EventType = "service_deployed"
	EventServiceRemoved    EventType = "service_removed"
	EventGameOver          EventType = "game_over"
)

// Event is one notification. Payload is a value owned by the event; handlers
// may keep it.
//
// Payload types by event:
//   - tick_started: nil
//   - traffic_generated: TrafficPayload
//   - requests_processed: ProcessedPayload
//   - metrics_updated: sim.MetricsSnapshot
//   - render_requested: Snapshot
//   - service_deployed: sim.ServiceState
//   - service_removed: RemovedPayload
//   - game_over: GameOverPayload
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Tick      int64     `json:"tick"`
	SimTime   time.Time `json:"sim_time"`
	Payload   any       `json:"payload,omitempty"`
}

// TrafficPayload describes the batch generated for a tick.
type TrafficPayload struct {
	Offered         int                     `json:"offered"`
	ByKind          map[sim.RequestKind]int `json:"by_kind"`
	SpikeMultiplier float64                 `json:"spike_multiplier"`
	Attack          *workload.Attack        `json:"attack,omitempty"`
}

// ProcessedPayload is the registry outcome of a tick.
type ProcessedPayload struct {
	Offered   int                                `json:"offered"`
	Processed int                                `json:"processed"`
	Dropped   int                                `json:"dropped"`
	Blocked   int                                `json:"blocked"`
	ByKind    map[sim.RequestKind]sim.KindCounts `json:"by_kind"`
}

// RemovedPayload identifies a removed service.
type RemovedPayload struct {
	ID string `json:"id"`
}

// GameOverPayload explains why the game ended.
type GameOverPayload struct {
	Reason     string  `json:"reason"`
	Reputation float64 `json:"reputation"`
}

// Handler receives events on the goroutine that produced them.
type Handler func(Event)

// bus fans events out to subscribers in subscription order.
type bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func newBus() *bus {
	return &bus{handlers: make(map[int]Handler)}
}

func (b *bus) subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// publish delivers events in order. Handlers are snapshotted first so that a
// handler may unsubscribe itself.
func (b *bus) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = b.handlers[id]
	}
	b.mu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			deliver(h, ev)
		}
	}
}

func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[tick %07d] game: %s handler panicked: %v", ev.Tick, ev.Type, r)
		}
	}()
	h(ev)
}
