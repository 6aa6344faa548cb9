// Defines the Request struct that models one unit of synthetic traffic.
// Tracks kind, business value, accumulated latency and the hops it passed through.

package sim

import (
	"fmt"
)

// RequestKind classifies where a request came from.
type RequestKind string

const (
	KindUser   RequestKind = "user"
	KindBot    RequestKind = "bot"
	KindAttack RequestKind = "attack"
)

// RequestStatus represents the disposition of a request within its tick.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusProcessed RequestStatus = "processed"
	StatusDropped   RequestStatus = "dropped"
	StatusBlocked   RequestStatus = "blocked"
)

// Hop records one service a request passed through and the latency added there.
type Hop struct {
	ServiceID string
	LatencyMs int
}

// Request models a single request's journey in one tick.
//
// Ownership moves with the batch: the service currently holding a request is the
// only writer of Status, LatencyMs and Path. Every other field is fixed at creation.
type Request struct {
	ID     string      // Unique identifier for the request
	Tick   int64       // Tick this request belongs to; never carried into the next one
	Kind   RequestKind // user, bot, attack
	Source string      // sub-source tag (web, mobile, api, crawler, sqli, ...)

	Value  float64 // Business value; negative for attacks
	SizeKB int     // Payload size

	// HTTP-ish attributes read by firewall rules, caches and databases.
	Method    string
	URLPath   string
	Query     string
	ClientIP  string
	UserAgent string
	Body      string

	Status    RequestStatus
	LatencyMs int   // Accumulated latency, non-decreasing
	Path      []Hop // Services visited in order
}

// NewRequest creates a pending request with the required identity fields.
func NewRequest(id string, tick int64, kind RequestKind, source string) *Request {
	return &Request{
		ID:      id,
		Tick:    tick,
		Kind:    kind,
		Source:  source,
		Method:  "GET",
		URLPath: "/",
		Status:  StatusPending,
	}
}

// AddHop records a visit to serviceID and adds its latency.
// Negative latencies are clamped to zero so LatencyMs never decreases.
func (r *Request) AddHop(serviceID string, latencyMs int) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	r.LatencyMs += latencyMs
	r.Path = append(r.Path, Hop{ServiceID: serviceID, LatencyMs: latencyMs})
}

// IsRead reports whether the request only reads state (GET/HEAD).
func (r *Request) IsRead() bool {
	return r.Method == "GET" || r.Method == "HEAD" || r.Method == ""
}

// CacheKey is the key caches use for this request.
func (r *Request) CacheKey() string {
	if r.Query == "" {
		return r.URLPath
	}
	return r.URLPath + "?" + r.Query
}

// This method returns a human-readable string representation of a Request.
func (r Request) String() string {
	return fmt.Sprintf("Request: (ID: %s, Kind: %s, Status: %s, LatencyMs: %d, Hops: %d)", r.ID, r.Kind, r.Status, r.LatencyMs, len(r.Path))
}
