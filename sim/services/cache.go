package services

import (
	"container/list"
	"math/rand"

	"github.com/infra-sim/infra-sim/sim"
)

// Eviction policies.
const (
	EvictAllKeysLRU = "allkeys-lru"
	EvictNoEviction = "noeviction"
)

// cacheEntry is one cached key.
type cacheEntry struct {
	key       string
	expiresAt int64 // tick at which the entry stops being served
}

// Cache models ElastiCache, Memorystore and Azure Cache for Redis as a
// cache-aside tier: reads hit or populate the store, writes invalidate.
//
// Extension state: an LRU store with TTL measured in ticks. Entries persist
// across ticks until they expire, are evicted or the service is removed.
type Cache struct {
	sim.BaseModel

	engine      string
	tier        string
	nodes       int
	replicas    int
	clusterMode bool
	encryption  bool
	ttlTicks    int64
	maxEntries  int
	eviction    string

	lru     *list.List
	entries map[string]*list.Element
	hitIDs  map[string]bool

	hits, misses, evictions, expired int // this tick
	totalHits, totalLookups          int
}

var cacheParams = []string{
	"engine", "tier", "node_type", "nodes", "replicas", "cluster_mode", "encryption_in_transit",
	"ttl_seconds", "max_entries", "eviction_policy",
}

func newCache(cfg sim.ServiceConfig, rng *rand.Rand, engines []string, tiers []string) (*Cache, *sim.Params) {
	params := sim.NewParams(cfg.Params)
	c := &Cache{
		BaseModel:   sim.NewBaseModel(cfg, profileFor(cfg.Provider, cfg.Type), params, rng),
		engine:      params.OneOf("engine", engines[0], engines...),
		tier:        params.OneOf("tier", tiers[0], tiers...),
		nodes:       params.NonNegativeInt("nodes", 1),
		replicas:    params.NonNegativeInt("replicas", 0),
		clusterMode: params.Bool("cluster_mode", false),
		encryption:  params.Bool("encryption_in_transit", false),
		ttlTicks:    int64(params.NonNegativeInt("ttl_seconds", 300)),
		maxEntries:  params.NonNegativeInt("max_entries", 10000),
		eviction:    params.OneOf("eviction_policy", EvictAllKeysLRU, EvictAllKeysLRU, "volatile-lru", EvictNoEviction),
		lru:         list.New(),
		entries:     make(map[string]*list.Element),
		hitIDs:      make(map[string]bool),
	}
	params.String("node_type", "")
	if c.nodes < 1 {
		params.Violate("nodes must be >= 1")
	}
	if c.ttlTicks < 1 {
		params.Violate("ttl_seconds must be >= 1")
	}
	if c.maxEntries < 1 {
		params.Violate("max_entries must be >= 1")
	}
	if c.engine == "memcached" {
		if c.clusterMode {
			params.Violate("cluster_mode requires the redis engine")
		}
		if c.replicas > 0 {
			params.Violate("memcached does not support replicas")
		}
	}
	return c, params
}

func newElastiCache(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	c, params := newCache(cfg, rng, []string{"redis", "memcached", "valkey"}, []string{"standard"})
	if c.replicas > 5 {
		params.Violate("ElastiCache supports at most 5 replicas per shard, got %d", c.replicas)
	}
	return c, sim.FinishParams(cfg, params, cacheParams...)
}

func newMemorystore(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	c, params := newCache(cfg, rng, []string{"redis", "memcached"}, []string{"basic", "standard"})
	if c.tier == "basic" && c.replicas > 0 {
		params.Violate("basic tier has no replicas")
	}
	if c.tier == "standard" && c.replicas == 0 && c.engine == "redis" {
		c.replicas = 1
	}
	return c, sim.FinishParams(cfg, params, cacheParams...)
}

func newAzureCache(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	c, params := newCache(cfg, rng, []string{"redis"}, []string{"standard", "basic", "premium"})
	if c.clusterMode && c.tier != "premium" {
		params.Violate("cluster_mode requires the premium tier")
	}
	if c.tier == "basic" && c.replicas > 0 {
		params.Violate("basic tier has no replicas")
	}
	return c, sim.FinishParams(cfg, params, cacheParams...)
}

// Process implements sim.Service.
func (c *Cache) Process(ctx sim.TickContext, batch []*sim.Request) sim.ProcessResult {
	c.hits, c.misses, c.evictions, c.expired = 0, 0, 0, 0
	c.hitIDs = make(map[string]bool)
	c.Observe(len(batch))

	var res sim.ProcessResult
	for _, req := range batch {
		if c.ShouldDrop() {
			c.Drop(req)
			res.Dropped = append(res.Dropped, req)
			continue
		}
		m := c.transportModifier()
		if req.IsRead() {
			c.totalLookups++
			if c.lookup(req.CacheKey(), ctx.Tick) {
				c.hits++
				c.totalHits++
				c.hitIDs[req.ID] = true
				m *= 0.5
			} else {
				c.misses++
				c.store(req.CacheKey(), ctx.Tick)
			}
		} else {
			c.invalidate(req.CacheKey())
		}
		c.Serve(req, m)
		res.Processed = append(res.Processed, req)
	}
	return res
}

// Terminal implements sim.Forwarder: hits are served from cache.
func (c *Cache) Terminal(req *sim.Request) bool {
	return c.hitIDs[req.ID]
}

func (c *Cache) transportModifier() float64 {
	m := 1.0
	if c.encryption {
		m *= 1.1
	}
	if c.clusterMode {
		m *= 1.05 // MOVED redirects
	}
	return m
}

func (c *Cache) lookup(key string, tick int64) bool {
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	entry := el.Value.(*cacheEntry)
	if tick >= entry.expiresAt {
		c.lru.Remove(el)
		delete(c.entries, key)
		c.expired++
		return false
	}
	c.lru.MoveToFront(el)
	return true
}

func (c *Cache) store(key string, tick int64) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).expiresAt = tick + c.ttlTicks
		c.lru.MoveToFront(el)
		return
	}
	if c.lru.Len() >= c.maxEntries {
		if c.eviction == EvictNoEviction {
			return
		}
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions++
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, expiresAt: tick + c.ttlTicks})
}

func (c *Cache) invalidate(key string) {
	if el, ok := c.entries[key]; ok {
		c.lru.Remove(el)
		delete(c.entries, key)
	}
}

// Len returns the number of stored entries, expired ones included until touched.
func (c *Cache) Len() int { return c.lru.Len() }

// HitRatio returns lifetime hits over lookups.
func (c *Cache) HitRatio() float64 {
	if c.totalLookups == 0 {
		return 0
	}
	return float64(c.totalHits) / float64(c.totalLookups)
}

// CostBreakdown implements sim.Service.
func (c *Cache) CostBreakdown() []sim.CostTerm {
	terms := []sim.CostTerm{
		{Name: "primary_nodes", Amount: c.LoadCost() * float64(c.nodes)},
	}
	if c.replicas > 0 {
		terms = append(terms, sim.CostTerm{Name: "replicas", Amount: c.BaseCost() * float64(c.replicas*c.nodes)})
	}
	if c.tier == "premium" {
		terms = append(terms, sim.CostTerm{Name: "premium_tier", Amount: c.BaseCost() * 0.5 * float64(c.nodes)})
	}
	if c.encryption {
		terms = append(terms, sim.CostTerm{Name: "encryption", Amount: c.BaseCost() * 0.05})
	}
	return terms
}

// Cost implements sim.Service.
func (c *Cache) Cost() float64 { return sim.SumCost(c.CostBreakdown()) }

// State implements sim.Service.
func (c *Cache) State() sim.ServiceState {
	return c.BaseState(c.Cost(), map[string]float64{
		"entries":   float64(c.lru.Len()),
		"hits":      float64(c.hits),
		"misses":    float64(c.misses),
		"evictions": float64(c.evictions),
		"expired":   float64(c.expired),
		"hit_ratio": c.HitRatio(),
	})
}
