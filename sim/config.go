package sim

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Provider identifies the cloud a service is deployed on.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderGCP   Provider = "gcp"
	ProviderAzure Provider = "azure"
)

// Providers lists the known providers in display order.
var Providers = []Provider{ProviderAWS, ProviderGCP, ProviderAzure}

// ServiceType identifies the role a service plays.
type ServiceType string

const (
	TypeLoadBalancer ServiceType = "load_balancer"
	TypeCompute      ServiceType = "compute"
	TypeCache        ServiceType = "cache"
	TypeDatabase     ServiceType = "database"
	TypeQueue        ServiceType = "queue"
	TypeFirewall     ServiceType = "firewall"
)

// ServiceTypes lists the known service types.
var ServiceTypes = []ServiceType{TypeLoadBalancer, TypeCompute, TypeCache, TypeDatabase, TypeQueue, TypeFirewall}

// IsValidProvider returns true if p is one of the known providers.
func IsValidProvider(p Provider) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// IsValidServiceType returns true if t is one of the known service types.
func IsValidServiceType(t ServiceType) bool {
	for _, known := range ServiceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ServiceConfig is the deployment request accepted by Registry.Deploy.
// Params carries provider/type specific settings (instance class, engine,
// replication, rule sets, ...). Values are whatever a YAML or JSON decoder
// produced: strings, numbers, bools, lists and maps.
type ServiceConfig struct {
	ID       string         `yaml:"id,omitempty" json:"id,omitempty"`
	Provider Provider       `yaml:"provider" json:"provider"`
	Type     ServiceType    `yaml:"type" json:"type"`
	Capacity int            `yaml:"capacity" json:"capacity"`
	BaseCost float64        `yaml:"base_cost" json:"base_cost"`
	Params   map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Params is a typed reader over ServiceConfig.Params that records every
// malformed value it encounters, so a variant can report all problems at once.
type Params struct {
	raw    map[string]any
	errors []string
}

// NewParams wraps a raw parameter map. A nil map is valid.
func NewParams(raw map[string]any) *Params {
	return &Params{raw: raw}
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.raw[key]
	return ok
}

// Violations returns the problems recorded so far.
func (p *Params) Violations() []string {
	return p.errors
}

func (p *Params) fail(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

// String returns the string value for key, or def when absent.
func (p *Params) String(key, def string) string {
	v, ok := p.raw[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		p.fail("param %q must be a string, got %T", key, v)
		return def
	}
}

// OneOf returns the string value for key and records a violation when it is
// not among allowed.
func (p *Params) OneOf(key, def string, allowed ...string) string {
	s := p.String(key, def)
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	p.fail("param %q must be one of [%s], got %q", key, strings.Join(allowed, ", "), s)
	return def
}

// Float returns the numeric value for key, or def when absent. NaN and
// infinities are violations.
func (p *Params) Float(key string, def float64) float64 {
	f := p.number(key, def)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail("param %q must be finite, got %v", key, f)
		return def
	}
	return f
}

func (p *Params) number(key string, def float64) float64 {
	v, ok := p.raw[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			p.fail("param %q must be numeric, got %q", key, n)
			return def
		}
		return f
	default:
		p.fail("param %q must be numeric, got %T", key, v)
		return def
	}
}

// Int returns the integer value for key, or def when absent.
func (p *Params) Int(key string, def int) int {
	if !p.Has(key) {
		return def
	}
	f := p.Float(key, float64(def))
	if f != float64(int(f)) {
		p.fail("param %q must be an integer, got %v", key, f)
		return def
	}
	return int(f)
}

// NonNegativeInt is Int plus a >= 0 check.
func (p *Params) NonNegativeInt(key string, def int) int {
	n := p.Int(key, def)
	if n < 0 {
		p.fail("param %q must be >= 0, got %d", key, n)
		return def
	}
	return n
}

// Bool returns the boolean value for key, or def when absent.
func (p *Params) Bool(key string, def bool) bool {
	v, ok := p.raw[key]
	if !ok || v == nil {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			p.fail("param %q must be a boolean, got %q", key, b)
			return def
		}
		return parsed
	default:
		p.fail("param %q must be a boolean, got %T", key, v)
		return def
	}
}

// List returns the raw list for key, or nil when absent.
func (p *Params) List(key string) []any {
	v, ok := p.raw[key]
	if !ok || v == nil {
		return nil
	}
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	default:
		p.fail("param %q must be a list, got %T", key, v)
		return nil
	}
}

// StringList returns key as a list of strings.
func (p *Params) StringList(key string) []string {
	raw := p.List(key)
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			p.fail("param %q[%d] must be a string, got %T", key, i, v)
			continue
		}
		out = append(out, s)
	}
	return out
}

// Unknown returns keys not in known, sorted. Variants use it to reject typos.
func (p *Params) Unknown(known ...string) []string {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	var out []string
	for k := range p.raw {
		if !set[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
