package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_TypedReadsWithDefaults(t *testing.T) {
	p := NewParams(map[string]any{
		"name":    "m5.large",
		"ratio":   0.7,
		"count":   3,
		"flag":    "true",
		"groups":  []any{"common", "ip_reputation"},
		"numeric": "1.5",
	})

	assert.Equal(t, "m5.large", p.String("name", ""))
	assert.Equal(t, "fallback", p.String("missing", "fallback"))
	assert.InDelta(t, 0.7, p.Float("ratio", 0), 1e-9)
	assert.InDelta(t, 1.5, p.Float("numeric", 0), 1e-9)
	assert.Equal(t, 3, p.Int("count", 0))
	assert.True(t, p.Bool("flag", false))
	assert.Equal(t, []string{"common", "ip_reputation"}, p.StringList("groups"))
	assert.Empty(t, p.Violations())
}

func TestParams_ViolationsAccumulate(t *testing.T) {
	p := NewParams(map[string]any{
		"count":    2.5,
		"negative": -1,
		"flag":     "maybe",
		"engine":   "oracle",
		"nan":      math.NaN(),
		"inf":      "+Inf",
	})

	assert.Equal(t, 7, p.Int("count", 7))
	assert.Equal(t, 0, p.NonNegativeInt("negative", 0))
	assert.False(t, p.Bool("flag", false))
	assert.Equal(t, "redis", p.OneOf("engine", "redis", "redis", "memcached"))
	assert.Equal(t, 0.9, p.Float("nan", 0.9))
	assert.Equal(t, 1.5, p.Float("inf", 1.5))

	assert.Len(t, p.Violations(), 6)
}

func TestParams_Unknown(t *testing.T) {
	p := NewParams(map[string]any{"b": 1, "a": 2, "known": 3})

	assert.Equal(t, []string{"a", "b"}, p.Unknown("known"))
}

func TestParams_NilMap(t *testing.T) {
	p := NewParams(nil)

	assert.False(t, p.Has("x"))
	assert.Equal(t, 5, p.Int("x", 5))
	assert.Empty(t, p.Unknown())
}

func TestValidProviderAndType(t *testing.T) {
	assert.True(t, IsValidProvider(ProviderAzure))
	assert.False(t, IsValidProvider("oracle"))
	assert.True(t, IsValidServiceType(TypeFirewall))
	assert.False(t, IsValidServiceType("cdn"))
}

func TestConfigurationError_ListsViolations(t *testing.T) {
	err := newConfigurationError("svc-1", []string{"capacity must be > 0", "unknown provider"})

	assert.EqualError(t, err, `invalid service config "svc-1": capacity must be > 0; unknown provider`)
	assert.NoError(t, newConfigurationError("svc-1", nil))
}
