package workload

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/sirupsen/logrus"
)

// User sub-sources in the default profile.
const (
	SourceWeb    = "web"
	SourceMobile = "mobile"
	SourceAPI    = "api"
)

// route is one request shape a source can emit.
type route struct {
	method string
	path   string
	query  string
}

var sourceRoutes = map[string][]route{
	SourceWeb: {
		{"GET", "/", ""}, {"GET", "/products", "page=1"}, {"GET", "/static/app.js", ""},
		{"GET", "/products/42", ""}, {"POST", "/api/cart", ""}, {"POST", "/login", ""},
	},
	SourceMobile: {
		{"GET", "/api/feed", ""}, {"GET", "/api/products", "limit=20"}, {"POST", "/api/orders", ""},
	},
	SourceAPI: {
		{"GET", "/api/items", "cursor=abc"}, {"PUT", "/api/items/7", ""}, {"DELETE", "/api/items/9", ""},
	},
}

var defaultRoutes = sourceRoutes[SourceWeb]

var userAgents = map[string]string{
	SourceWeb:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/124.0",
	SourceMobile: "InfraShop/3.2 (iPhone; iOS 17.4)",
	SourceAPI:    "infrashop-sdk-go/1.8",
}

var botProfiles = []struct{ source, userAgent string }{
	{"crawler", "Googlebot/2.1 (+http://www.google.com/bot.html)"},
	{"scraper", "python-requests/2.31"},
	{"monitor", "UptimeRobot/2.0"},
}

// clientPool is how many distinct user IPs traffic is spread over.
const clientPool = 4096

// Generator produces each tick's request batch.
// Not safe for concurrent use; the game serializes access.
type Generator struct {
	config  Config
	traffic *rand.Rand
	attacks *rand.Rand

	sourceTotal    float64
	nextID         int64
	attack         *Attack
	spikeFactor    float64
	spikeRemaining int
}

// NewGenerator validates config and returns a generator drawing traffic and
// attacks from separate streams.
func NewGenerator(config Config, traffic, attacks *rand.Rand) (*Generator, error) {
	if traffic == nil || attacks == nil {
		return nil, fmt.Errorf("generator needs both traffic and attack rngs")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload config: %w", err)
	}
	g := &Generator{config: config, traffic: traffic, attacks: attacks}
	for _, s := range config.Sources {
		g.sourceTotal += s.Weight
	}
	g.Reset()
	return g, nil
}

// Reset clears the active attack and spike and restarts request IDs.
func (g *Generator) Reset() {
	g.nextID = 0
	g.attack = nil
	g.spikeFactor = 1
	g.spikeRemaining = 0
}

// Config returns the generator configuration.
func (g *Generator) Config() Config { return g.config }

// Growth returns exp(growthRate × tick).
func (g *Generator) Growth(tick int64) float64 {
	return math.Exp(g.config.GrowthRate * float64(tick))
}

// HourOfDay returns the simulated hour in [0,24) for tick.
func (g *Generator) HourOfDay(tick int64) float64 {
	h := g.config.StartHour + float64(tick)/float64(g.config.TicksPerHour)
	return math.Mod(h, 24)
}

// TimePattern returns 1 + Σ amplitude·exp(−d²/(2σ²)) where d is the circular
// distance in hours between now and each peak.
func (g *Generator) TimePattern(tick int64) float64 {
	h := g.HourOfDay(tick)
	p := 1.0
	for _, peak := range g.config.Peaks {
		d := math.Abs(h - peak.Hour)
		d = math.Min(d, 24-d)
		p += peak.Amplitude * math.Exp(-(d*d)/(2*peak.Width*peak.Width))
	}
	return p
}

// BatchSize returns the non-attack request count for tick, with the current
// spike applied and capped at MaxBatch.
func (g *Generator) BatchSize(tick int64) int {
	n := math.Round(g.config.BaseRate * g.Growth(tick) * g.TimePattern(tick) * g.spikeFactor)
	if n > float64(g.config.MaxBatch) || math.IsInf(n, 1) {
		return g.config.MaxBatch
	}
	return int(n)
}

// Generate produces the batch for tick: users, bots and any attack burst.
// An active spike is consumed by this call and reverts when its ticks run out.
func (g *Generator) Generate(tick int64) []*sim.Request {
	size := g.BatchSize(tick)
	bots := int(math.Round(float64(size) * g.config.BotRatio))
	users := size - bots

	batch := make([]*sim.Request, 0, size)
	for i := 0; i < users; i++ {
		batch = append(batch, g.user(tick))
	}
	for i := 0; i < bots; i++ {
		batch = append(batch, g.bot(tick))
	}
	batch = append(batch, g.attackBurst(tick)...)

	if g.spikeRemaining > 0 {
		g.spikeRemaining--
		if g.spikeRemaining == 0 {
			logrus.Infof("[tick %07d] workload: spike x%.1f ended", tick, g.spikeFactor)
			g.spikeFactor = 1
		}
	}
	return batch
}

func (g *Generator) newRequest(tick int64, kind sim.RequestKind, source string) *sim.Request {
	g.nextID++
	return sim.NewRequest(fmt.Sprintf("t%d-%d", tick, g.nextID), tick, kind, source)
}

func (g *Generator) pickSource() Source {
	x := g.traffic.Float64() * g.sourceTotal
	for _, s := range g.config.Sources {
		if x < s.Weight {
			return s
		}
		x -= s.Weight
	}
	return g.config.Sources[len(g.config.Sources)-1]
}

func (g *Generator) user(tick int64) *sim.Request {
	src := g.pickSource()
	req := g.newRequest(tick, sim.KindUser, src.Name)
	routes, ok := sourceRoutes[src.Name]
	if !ok {
		routes = defaultRoutes
	}
	r := routes[g.traffic.Intn(len(routes))]
	req.Method, req.URLPath, req.Query = r.method, r.path, r.query
	if req.Method == "POST" || req.Method == "PUT" {
		req.Body = fmt.Sprintf(`{"item":%d,"qty":%d}`, g.traffic.Intn(500), 1+g.traffic.Intn(3))
	}
	ua, ok := userAgents[src.Name]
	if !ok {
		ua = userAgents[SourceWeb]
	}
	req.UserAgent = ua
	n := g.traffic.Intn(clientPool)
	req.ClientIP = fmt.Sprintf("10.%d.%d.%d", n/65536, (n/256)%256, n%256)
	req.SizeKB = 1 + g.traffic.Intn(32)
	req.Value = src.Value
	return req
}

func (g *Generator) bot(tick int64) *sim.Request {
	p := botProfiles[g.traffic.Intn(len(botProfiles))]
	req := g.newRequest(tick, sim.KindBot, p.source)
	r := defaultRoutes[g.traffic.Intn(len(defaultRoutes))]
	req.Method, req.URLPath, req.Query = "GET", r.path, r.query
	req.UserAgent = p.userAgent
	req.ClientIP = fmt.Sprintf("100.64.%d.%d", g.traffic.Intn(4), g.traffic.Intn(256))
	req.SizeKB = 1
	return req
}
