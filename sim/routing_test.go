package sim

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubService is a minimal Service for routing tests.
type stubService struct {
	id       string
	capacity int
}

func (s *stubService) ID() string                { return s.id }
func (s *stubService) Provider() Provider        { return ProviderAWS }
func (s *stubService) Type() ServiceType         { return TypeCompute }
func (s *stubService) Capacity() int             { return s.capacity }
func (s *stubService) Cost() float64             { return 0 }
func (s *stubService) CostBreakdown() []CostTerm { return nil }
func (s *stubService) State() ServiceState       { return ServiceState{ID: s.id} }
func (s *stubService) Process(_ TickContext, batch []*Request) ProcessResult {
	for _, r := range batch {
		r.Status = StatusProcessed
	}
	return ProcessResult{Processed: batch}
}

func stubs(capacities ...int) []Service {
	out := make([]Service, len(capacities))
	for i, c := range capacities {
		out[i] = &stubService{id: fmt.Sprintf("svc-%d", i), capacity: c}
	}
	return out
}

func batchOf(n int) []*Request {
	out := make([]*Request, n)
	for i := range out {
		out[i] = NewRequest(fmt.Sprintf("req-%d", i), 0, KindUser, "web")
	}
	return out
}

// TestRoundRobin_UniformAcrossInstances verifies every request lands in exactly
// one partition and partitions differ in size by at most one.
func TestRoundRobin_UniformAcrossInstances(t *testing.T) {
	// GIVEN three candidates regardless of capacity
	policy := NewRoutingPolicy("round-robin", nil)
	candidates := stubs(10, 1000, 50)

	// WHEN ten requests are partitioned
	parts := policy.Partition(batchOf(10), candidates)

	// THEN sizes are 4/3/3 and the total is preserved
	assert.Len(t, parts, 3)
	assert.Len(t, parts[0], 4)
	assert.Len(t, parts[1], 3)
	assert.Len(t, parts[2], 3)
}

// TestRoundRobin_RotationCarriesOver verifies single-request batches rotate.
func TestRoundRobin_RotationCarriesOver(t *testing.T) {
	policy := NewRoutingPolicy("", nil)
	candidates := stubs(1, 1)

	first := policy.Partition(batchOf(1), candidates)
	second := policy.Partition(batchOf(1), candidates)

	assert.Len(t, first[0], 1)
	assert.Len(t, second[1], 1)
}

// TestCapacityWeighted_Proportional verifies shares follow capacity.
func TestCapacityWeighted_Proportional(t *testing.T) {
	policy := NewRoutingPolicy("capacity-weighted", nil)
	candidates := stubs(300, 100)

	parts := policy.Partition(batchOf(40), candidates)

	assert.Len(t, parts[0], 30)
	assert.Len(t, parts[1], 10)
}

func TestRoutingPolicy_NoCandidates(t *testing.T) {
	for _, name := range []string{"round-robin", "capacity-weighted", "random"} {
		parts := NewRoutingPolicy(name, rand.New(rand.NewSource(1))).Partition(batchOf(5), nil)
		assert.Empty(t, parts, name)
	}
}

func TestNewRoutingPolicy_UnknownPanics(t *testing.T) {
	assert.False(t, IsValidRoutingPolicy("least-loaded"))
	assert.Panics(t, func() { NewRoutingPolicy("least-loaded", nil) })
	assert.Panics(t, func() { NewRoutingPolicy("random", nil) })
}

// TestRandom_SeededAndComplete verifies random routing keeps every request and
// replays under the same seed.
func TestRandom_SeededAndComplete(t *testing.T) {
	candidates := stubs(1, 1, 1)
	a := NewRoutingPolicy("random", rand.New(rand.NewSource(7))).Partition(batchOf(60), candidates)
	b := NewRoutingPolicy("random", rand.New(rand.NewSource(7))).Partition(batchOf(60), candidates)

	total := 0
	for i := range a {
		total += len(a[i])
		assert.Equal(t, len(a[i]), len(b[i]))
	}
	assert.Equal(t, 60, total)
}
