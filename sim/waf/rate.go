package waf

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the per-client limiter table. When exceeded the
// table is cleared, which forgives every tracked client at once.
const maxTrackedClients = 1 << 16

// rateLimiter tracks one token bucket per client IP. Buckets hold limit tokens
// and refill at limit/window per second, so a client sustaining more than limit
// requests per window starts matching.
type rateLimiter struct {
	limit   int
	every   rate.Limit
	clients map[string]*rate.Limiter
}

// Match implements Matcher: true once the client has exhausted its bucket.
func (l *rateLimiter) Match(in Input, now time.Time) bool {
	lim, ok := l.clients[in.ClientIP]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			logrus.Debugf("waf: rate limiter tracking %d clients, resetting", len(l.clients))
			l.clients = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.every, l.limit)
		l.clients[in.ClientIP] = lim
	}
	return !lim.AllowN(now, 1)
}

// RateBased builds a rule that matches clients exceeding limit requests per
// window. now passed to Evaluate must be simulated time for deterministic runs.
func RateBased(name string, priority int, action Action, limit int, window time.Duration) (Rule, error) {
	if limit <= 0 {
		return Rule{}, fmt.Errorf("rate rule %q: limit must be > 0, got %d", name, limit)
	}
	if window <= 0 {
		return Rule{}, fmt.Errorf("rate rule %q: window must be > 0, got %v", name, window)
	}
	return Rule{
		Name:     name,
		Priority: priority,
		Action:   action,
		Kind:     KindRate,
		Match: &rateLimiter{
			limit:   limit,
			every:   rate.Limit(float64(limit) / window.Seconds()),
			clients: make(map[string]*rate.Limiter),
		},
	}, nil
}
