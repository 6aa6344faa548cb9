package workload

import (
	"fmt"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/sirupsen/logrus"
)

// Attack vectors. The vector is carried as the request Source.
const (
	VectorSQLi          = "sqli"
	VectorXSS           = "xss"
	VectorPathTraversal = "path_traversal"
	VectorBadIP         = "bad_ip"
	VectorFlood         = "flood"
)

// Vectors lists every attack vector.
var Vectors = []string{VectorSQLi, VectorXSS, VectorPathTraversal, VectorBadIP, VectorFlood}

// Attack is one attack episode, active for ticks [StartTick, EndTick].
type Attack struct {
	Vector    string `json:"vector"`
	StartTick int64  `json:"start_tick"`
	EndTick   int64  `json:"end_tick"`
}

var (
	sqliPayloads = []string{"id=1' OR '1'='1", "q=1 UNION SELECT username,password FROM users", "id=5; DROP TABLE orders"}
	xssPayloads  = []string{"q=<script>alert(1)</script>", "name=<img src=x onerror=alert(1)>", "next=javascript:alert(document.cookie)"}
	traversal    = []string{"/static/../../etc/passwd", "/download/..%2f..%2fetc/shadow", "/.env"}
)

// ActiveAttack returns the attack in progress, if any.
func (g *Generator) ActiveAttack() (Attack, bool) {
	if g.attack == nil {
		return Attack{}, false
	}
	return *g.attack, true
}

// StartAttack begins an episode at tick. Only one attack may be active.
func (g *Generator) StartAttack(tick int64, vector string, durationTicks int) error {
	if g.attack != nil {
		return fmt.Errorf("attack %s already active until tick %d", g.attack.Vector, g.attack.EndTick)
	}
	valid := false
	for _, v := range Vectors {
		valid = valid || v == vector
	}
	if !valid {
		return fmt.Errorf("unknown attack vector %q", vector)
	}
	if durationTicks < 1 {
		return fmt.Errorf("attack duration must be >= 1 tick, got %d", durationTicks)
	}
	g.attack = &Attack{Vector: vector, StartTick: tick, EndTick: tick + int64(durationTicks) - 1}
	logrus.Infof("[tick %07d] workload: %s attack started, lasting %d ticks", tick, vector, durationTicks)
	return nil
}

// attackBurst rolls for a new episode when none is active and emits the
// active episode's requests for tick.
func (g *Generator) attackBurst(tick int64) []*sim.Request {
	a := g.config.Attacks
	if g.attack == nil && g.attacks.Float64() < a.Probability {
		vector := Vectors[g.attacks.Intn(len(Vectors))]
		duration := a.MinTicks + g.attacks.Intn(a.MaxTicks-a.MinTicks+1)
		if err := g.StartAttack(tick, vector, duration); err != nil {
			logrus.Warnf("[tick %07d] workload: random attack not started: %v", tick, err)
		}
	}
	if g.attack == nil || tick < g.attack.StartTick {
		return nil
	}

	n := a.MinRequests + g.attacks.Intn(a.MaxRequests-a.MinRequests+1)
	out := make([]*sim.Request, n)
	for i := range out {
		out[i] = g.attackRequest(tick, g.attack.Vector)
	}
	if tick >= g.attack.EndTick {
		logrus.Infof("[tick %07d] workload: %s attack ended", tick, g.attack.Vector)
		g.attack = nil
	}
	return out
}

func (g *Generator) attackRequest(tick int64, vector string) *sim.Request {
	req := g.newRequest(tick, sim.KindAttack, vector)
	req.Value = g.config.Attacks.Value
	req.UserAgent = "Mozilla/5.0 (X11; Linux x86_64)"
	req.ClientIP = fmt.Sprintf("45.%d.%d.%d", 10+g.attacks.Intn(50), g.attacks.Intn(256), g.attacks.Intn(256))
	req.SizeKB = 1
	switch vector {
	case VectorSQLi:
		req.URLPath = "/products"
		req.Query = sqliPayloads[g.attacks.Intn(len(sqliPayloads))]
	case VectorXSS:
		req.Method = "POST"
		req.URLPath = "/api/comments"
		req.Body = xssPayloads[g.attacks.Intn(len(xssPayloads))]
	case VectorPathTraversal:
		req.URLPath = traversal[g.attacks.Intn(len(traversal))]
	case VectorBadIP:
		// reputation-listed documentation ranges
		req.ClientIP = fmt.Sprintf("203.0.113.%d", g.attacks.Intn(256))
		req.URLPath = "/login"
		req.Method = "POST"
		req.Body = `{"user":"admin","password":"hunter2"}`
	case VectorFlood:
		// few sources, many requests: rate-based rules catch these
		req.ClientIP = fmt.Sprintf("198.18.0.%d", g.attacks.Intn(4))
		req.UserAgent = ""
		req.URLPath = "/"
	}
	return req
}
