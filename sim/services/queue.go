package services

import (
	"hash/fnv"
	"math/rand"

	"github.com/infra-sim/infra-sim/sim"
)

const (
	defaultRetentionTicks = 345600 // four days of simulated seconds
	dedupWindowTicks      = 300
)

// message is one enqueued request.
type message struct {
	id         string
	groupKey   string
	enqueuedAt int64
}

// Queue models SQS, Pub/Sub and Service Bus as a buffer in front of the data
// tier: writes are accepted asynchronously and finish here, reads pass on.
//
// Extension state: the message backlog, FIFO ordering per message group with a
// content-based deduplication window, consumers draining the backlog each tick,
// and retention expiry.
type Queue struct {
	sim.BaseModel

	fifo           bool
	dedup          bool
	consumers      int
	consumerRate   int
	maxMessageKB   float64
	retentionTicks int64
	tier           string // azure: basic, standard, premium
	ordering       bool   // gcp: ordering keys

	backlog []message
	seen    map[uint64]int64 // content hash -> tick first seen

	enqueued, delivered, deduplicated, expired, oversized int // this tick
	groups                                                int // distinct ordering groups delivered this tick
	outOfOrder                                            int
}

var queueParams = []string{
	"fifo", "content_dedup", "consumers", "consumer_rate", "max_message_kb", "retention_seconds",
	"visibility_timeout", "tier", "ordering_keys", "sessions",
}

func newQueue(cfg sim.ServiceConfig, rng *rand.Rand, maxKB float64) (*Queue, *sim.Params) {
	params := sim.NewParams(cfg.Params)
	q := &Queue{
		BaseModel:      sim.NewBaseModel(cfg, profileFor(cfg.Provider, cfg.Type), params, rng),
		fifo:           params.Bool("fifo", false),
		dedup:          params.Bool("content_dedup", false),
		consumers:      params.NonNegativeInt("consumers", 1),
		maxMessageKB:   params.Float("max_message_kb", maxKB),
		retentionTicks: int64(params.NonNegativeInt("retention_seconds", defaultRetentionTicks)),
		seen:           make(map[uint64]int64),
	}
	q.consumerRate = params.NonNegativeInt("consumer_rate", cfg.Capacity)
	params.NonNegativeInt("visibility_timeout", 30)
	if q.consumers < 1 {
		params.Violate("consumers must be >= 1")
	}
	if q.maxMessageKB <= 0 || q.maxMessageKB > maxKB {
		params.Violate("max_message_kb must be in (0,%v], got %v", maxKB, q.maxMessageKB)
	}
	if q.retentionTicks < 60 {
		params.Violate("retention_seconds must be >= 60, got %d", q.retentionTicks)
	}
	return q, params
}

func newSQS(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	q, params := newQueue(cfg, rng, 256)
	if q.dedup && !q.fifo {
		params.Violate("content_dedup requires a FIFO queue")
	}
	if q.retentionTicks > 1209600 {
		params.Violate("retention_seconds must be <= 1209600, got %d", q.retentionTicks)
	}
	for _, k := range []string{"tier", "ordering_keys", "sessions"} {
		if params.Has(k) {
			params.Violate("%s is not an SQS setting", k)
		}
	}
	return q, sim.FinishParams(cfg, params, queueParams...)
}

func newPubSub(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	q, params := newQueue(cfg, rng, 10240)
	q.ordering = params.Bool("ordering_keys", false)
	if params.Has("fifo") {
		params.Violate("Pub/Sub orders with ordering_keys, not fifo")
	}
	q.fifo = q.ordering
	if params.Has("tier") || params.Has("sessions") {
		params.Violate("tier and sessions are not Pub/Sub settings")
	}
	return q, sim.FinishParams(cfg, params, queueParams...)
}

func newServiceBus(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	q, params := newQueue(cfg, rng, 102400)
	q.tier = params.OneOf("tier", "standard", "basic", "standard", "premium")
	sessions := params.Bool("sessions", false)
	if !params.Has("max_message_kb") && q.tier != "premium" {
		q.maxMessageKB = 256
	}
	if q.tier != "premium" && q.maxMessageKB > 256 {
		params.Violate("max_message_kb above 256 requires the premium tier")
	}
	if q.tier == "basic" && (sessions || q.dedup) {
		params.Violate("sessions and content_dedup are unavailable on the basic tier")
	}
	q.fifo = q.fifo || sessions
	return q, sim.FinishParams(cfg, params, queueParams...)
}

// Process implements sim.Service.
func (q *Queue) Process(ctx sim.TickContext, batch []*sim.Request) sim.ProcessResult {
	q.enqueued, q.delivered, q.deduplicated, q.expired, q.oversized = 0, 0, 0, 0, 0
	q.groups = 0
	q.Observe(len(batch))
	q.expire(ctx.Tick)

	var res sim.ProcessResult
	for _, req := range batch {
		if q.ShouldDrop() {
			q.Drop(req)
			res.Dropped = append(res.Dropped, req)
			continue
		}
		if float64(req.SizeKB) > q.maxMessageKB {
			q.oversized++
			q.Drop(req)
			res.Dropped = append(res.Dropped, req)
			continue
		}
		if !req.IsRead() {
			if q.dedup && q.duplicate(req, ctx.Tick) {
				q.deduplicated++
			} else {
				q.backlog = append(q.backlog, message{id: req.ID, groupKey: req.ClientIP, enqueuedAt: ctx.Tick})
				q.enqueued++
			}
		}
		q.Serve(req, 1.0)
		res.Processed = append(res.Processed, req)
	}
	q.drain()
	return res
}

// duplicate reports whether an identical message arrived within the window.
func (q *Queue) duplicate(req *sim.Request, tick int64) bool {
	h := fnv.New64a()
	h.Write([]byte(req.Method + " " + req.URLPath + "?" + req.Query + "\n" + req.Body))
	sum := h.Sum64()
	if first, ok := q.seen[sum]; ok && tick-first < dedupWindowTicks {
		return true
	}
	q.seen[sum] = tick
	return false
}

func (q *Queue) expire(tick int64) {
	kept := q.backlog[:0]
	for _, m := range q.backlog {
		if tick-m.enqueuedAt >= q.retentionTicks {
			q.expired++
			continue
		}
		kept = append(kept, m)
	}
	q.backlog = kept
	for h, first := range q.seen {
		if tick-first >= dedupWindowTicks {
			delete(q.seen, h)
		}
	}
}

// drain delivers up to consumers × consumerRate messages. FIFO queues deliver
// strictly in arrival order; standard queues may reorder within a group.
func (q *Queue) drain() {
	budget := q.consumers * q.consumerRate
	n := min(budget, len(q.backlog))
	if n == 0 {
		return
	}
	out := q.backlog[:n]
	if !q.fifo && n > 1 {
		q.Rand().Shuffle(n, func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	groups := make(map[string]struct{})
	for _, m := range out {
		groups[m.groupKey] = struct{}{}
	}
	q.groups = len(groups)
	if !q.fifo {
		for i := 1; i < n; i++ {
			if out[i].groupKey == out[i-1].groupKey && out[i].enqueuedAt < out[i-1].enqueuedAt {
				q.outOfOrder++
			}
		}
	}
	q.delivered = n
	q.backlog = append(q.backlog[:0], q.backlog[n:]...)
}

// Backlog returns the number of undelivered messages.
func (q *Queue) Backlog() int { return len(q.backlog) }

// Terminal implements sim.Forwarder: accepted writes finish here.
func (q *Queue) Terminal(req *sim.Request) bool {
	return !req.IsRead()
}

// CostBreakdown implements sim.Service.
func (q *Queue) CostBreakdown() []sim.CostTerm {
	terms := []sim.CostTerm{
		{Name: "load", Amount: q.LoadCost()},
		{Name: "requests", Amount: float64(q.enqueued+q.delivered) * 0.0000004},
	}
	if q.fifo && q.Provider() == sim.ProviderAWS {
		terms = append(terms, sim.CostTerm{Name: "fifo", Amount: float64(q.enqueued+q.delivered) * 0.0000001})
	}
	if q.tier == "premium" {
		terms = append(terms, sim.CostTerm{Name: "messaging_units", Amount: q.BaseCost() * float64(q.consumers)})
	}
	return terms
}

// Cost implements sim.Service.
func (q *Queue) Cost() float64 { return sim.SumCost(q.CostBreakdown()) }

// State implements sim.Service.
func (q *Queue) State() sim.ServiceState {
	return q.BaseState(q.Cost(), map[string]float64{
		"backlog":         float64(len(q.backlog)),
		"enqueued":        float64(q.enqueued),
		"delivered":       float64(q.delivered),
		"deduplicated":    float64(q.deduplicated),
		"expired":         float64(q.expired),
		"oversized":       float64(q.oversized),
		"out_of_order":    float64(q.outOfOrder),
		"ordering_groups": float64(q.groups),
	})
}
