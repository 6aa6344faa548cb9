package sim

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, topology bool) *Registry {
	t.Helper()
	return NewRegistry(RegistryConfig{Topology: topology}, NewPartitionedRNG(NewSimulationKey(42)))
}

func mustDeploy(t *testing.T, r *Registry, cfg ServiceConfig) Service {
	t.Helper()
	svc, err := r.Deploy(cfg)
	require.NoError(t, err)
	return svc
}

func httpBatch(n int, method, path string) []*Request {
	out := make([]*Request, n)
	for i := range out {
		out[i] = NewRequest(fmt.Sprintf("%s-%s-%d", method, path, i), 0, KindUser, "web")
		out[i].Method = method
		out[i].URLPath = path
		out[i].UserAgent = "Mozilla/5.0"
		out[i].ClientIP = fmt.Sprintf("10.0.%d.%d", i/250, i%250)
	}
	return out
}

// TestRegistry_ZeroServicesDropsEverything verifies:
// GIVEN no deployed services
// WHEN a non-empty batch is processed
// THEN every request is dropped and availability is 0.
func TestRegistry_ZeroServicesDropsEverything(t *testing.T) {
	r := newTestRegistry(t, false)
	batch := httpBatch(25, "GET", "/")

	res := r.Process(NewTickContext(0), batch)

	assert.Equal(t, 25, res.Dropped)
	assert.Zero(t, res.Processed)
	for _, req := range batch {
		assert.Equal(t, StatusDropped, req.Status)
	}
	snap := NewGameMetrics(DefaultMetricsConfig()).Update(res)
	assert.Equal(t, 0.0, snap.Availability)
}

// TestRegistry_DeployListsEveryViolation verifies all violations are reported
// together and the registry is untouched.
func TestRegistry_DeployListsEveryViolation(t *testing.T) {
	r := newTestRegistry(t, false)

	_, err := r.Deploy(ServiceConfig{Provider: "oracle", Type: TypeCompute, Capacity: 0, BaseCost: -1})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Violations, 3)
	assert.Contains(t, err.Error(), "capacity")
	assert.Contains(t, err.Error(), "base_cost")
	assert.Contains(t, err.Error(), "oracle")
	assert.Equal(t, 0, r.Len())
}

// TestRegistry_DeployMergesVariantViolations verifies variant parameter rules
// surface through Deploy alongside common ones.
func TestRegistry_DeployMergesVariantViolations(t *testing.T) {
	r := newTestRegistry(t, false)

	_, err := r.Deploy(ServiceConfig{
		Provider: ProviderAWS, Type: TypeCompute, Capacity: -5, BaseCost: 1,
		Params: map[string]any{"spot": true, "reserved": true},
	})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Violations, 2)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DefaultAndDuplicateIDs(t *testing.T) {
	r := newTestRegistry(t, false)

	first := mustDeploy(t, r, ServiceConfig{Provider: ProviderGCP, Type: TypeCache, Capacity: 100, BaseCost: 1})
	assert.Equal(t, "gcp-cache-1", first.ID())

	_, err := r.Deploy(ServiceConfig{ID: "gcp-cache-1", Provider: ProviderGCP, Type: TypeCache, Capacity: 100})
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())

	second := mustDeploy(t, r, ServiceConfig{Provider: ProviderAzure, Type: TypeQueue, Capacity: 100})
	assert.Equal(t, "azure-queue-2", second.ID())
}

// TestRegistry_RemoveIsIdempotent verifies removing twice is harmless.
func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, false)
	svc := mustDeploy(t, r, ServiceConfig{Provider: ProviderAWS, Type: TypeCompute, Capacity: 100})

	assert.True(t, r.Remove(svc.ID()))
	assert.False(t, r.Remove(svc.ID()))
	assert.False(t, r.Remove("never-deployed"))
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(svc.ID())
	assert.False(t, ok)
}

// TestRegistry_Conservation verifies processed + dropped + blocked == offered
// across mixed variants, overload and firewall blocks.
func TestRegistry_Conservation(t *testing.T) {
	for _, topology := range []bool{false, true} {
		t.Run(fmt.Sprintf("topology=%v", topology), func(t *testing.T) {
			r := newTestRegistry(t, topology)
			mustDeploy(t, r, ServiceConfig{Provider: ProviderAWS, Type: TypeFirewall, Capacity: 200, BaseCost: 1,
				Params: map[string]any{"custom_rules": []any{map[string]any{"name": "admin", "action": "BLOCK", "path": "/admin"}}}})
			mustDeploy(t, r, ServiceConfig{Provider: ProviderAWS, Type: TypeCompute, Capacity: 20, BaseCost: 1})
			mustDeploy(t, r, ServiceConfig{Provider: ProviderGCP, Type: TypeDatabase, Capacity: 50, BaseCost: 2})

			for tick := int64(0); tick < 5; tick++ {
				batch := append(httpBatch(40, "GET", "/"), httpBatch(10, "GET", "/admin")...)
				batch = append(batch, httpBatch(20, "POST", "/api/orders")...)

				res := r.Process(NewTickContext(tick), batch)

				assert.Equal(t, res.Offered, res.Processed+res.Dropped+res.Blocked)
				assert.Equal(t, 70, res.Offered)
				kc := res.ByKind[KindUser]
				assert.Equal(t, 70, kc.Offered)
				for _, req := range batch {
					assert.NotEqual(t, StatusPending, req.Status)
				}
			}
		})
	}
}

// TestRegistry_IdleServicesStillUpdate verifies every service runs each tick.
func TestRegistry_IdleServicesStillUpdate(t *testing.T) {
	r := newTestRegistry(t, false)
	a := mustDeploy(t, r, ServiceConfig{Provider: ProviderAWS, Type: TypeCompute, Capacity: 10})
	b := mustDeploy(t, r, ServiceConfig{Provider: ProviderAWS, Type: TypeCompute, Capacity: 10})

	r.Process(NewTickContext(0), httpBatch(40, "GET", "/"))
	require.Equal(t, HealthFailed, b.State().Health)

	res := r.Process(NewTickContext(1), httpBatch(1, "GET", "/"))

	assert.Len(t, res.Services, 2)
	assert.Equal(t, HealthHealthy, a.State().Health)
	assert.Equal(t, HealthHealthy, b.State().Health)
}

// TestRegistry_TopologyPaths verifies requests traverse stages in order and
// leave early when blocked or finished.
func TestRegistry_TopologyPaths(t *testing.T) {
	r := newTestRegistry(t, true)
	fw := mustDeploy(t, r, ServiceConfig{ID: "fw", Provider: ProviderAWS, Type: TypeFirewall, Capacity: 100})
	db := mustDeploy(t, r, ServiceConfig{ID: "db", Provider: ProviderAWS, Type: TypeDatabase, Capacity: 100})
	vm := mustDeploy(t, r, ServiceConfig{ID: "vm", Provider: ProviderAWS, Type: TypeCompute, Capacity: 100})

	page := httpBatch(1, "GET", "/")[0]
	api := httpBatch(1, "POST", "/api/orders")[0]
	attack := NewRequest("atk", 0, KindAttack, "sqli")
	attack.URLPath = "/search"
	attack.Query = "q=1 UNION SELECT password FROM users"
	attack.UserAgent = "sqlmap"

	res := r.Process(NewTickContext(0), []*Request{page, api, attack})

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Blocked)
	assert.Equal(t, []string{fw.ID(), vm.ID()}, hopIDs(page))
	assert.Equal(t, []string{fw.ID(), vm.ID(), db.ID()}, hopIDs(api))
	assert.Equal(t, []string{fw.ID()}, hopIDs(attack))
	assert.Greater(t, api.LatencyMs, page.LatencyMs)
	require.Len(t, res.Decisions, 3)
	assert.Equal(t, "BLOCK", res.Decisions[2].Action)
}

func hopIDs(r *Request) []string {
	ids := make([]string, len(r.Path))
	for i, h := range r.Path {
		ids[i] = h.ServiceID
	}
	return ids
}

// TestRegistry_SectionsRebuiltEachTick verifies provider buckets and costs.
func TestRegistry_SectionsRebuiltEachTick(t *testing.T) {
	r := newTestRegistry(t, false)
	mustDeploy(t, r, ServiceConfig{ID: "a", Provider: ProviderAWS, Type: TypeCompute, Capacity: 100, BaseCost: 2})
	mustDeploy(t, r, ServiceConfig{ID: "g", Provider: ProviderGCP, Type: TypeQueue, Capacity: 100, BaseCost: 1})

	res := r.Process(NewTickContext(0), httpBatch(10, "GET", "/"))

	require.Len(t, res.Sections, 3)
	assert.Equal(t, ProviderAWS, res.Sections[0].Provider)
	assert.Equal(t, []string{"a"}, res.Sections[0].ServiceIDs)
	assert.Equal(t, []string{"g"}, res.Sections[1].ServiceIDs)
	assert.Empty(t, res.Sections[2].ServiceIDs)
	total := 0.0
	for _, s := range res.Sections {
		total += s.Cost.InexactFloat64()
	}
	assert.InDelta(t, res.Cost, total, 1e-9)

	r.Remove("a")
	assert.Empty(t, r.Sections()[0].ServiceIDs)
}

// TestRegistry_SameSeedSameOutcome verifies per-instance randomness replays
// under a fixed seed.
func TestRegistry_SameSeedSameOutcome(t *testing.T) {
	run := func() []int {
		r := newTestRegistry(t, false)
		mustDeploy(t, r, ServiceConfig{Provider: ProviderAWS, Type: TypeCompute, Capacity: 100,
			Params: map[string]any{"pricing": "spot", "spot_interruption_rate": 0.3}})
		var drops []int
		for tick := int64(0); tick < 30; tick++ {
			drops = append(drops, r.Process(NewTickContext(tick), httpBatch(50, "GET", "/")).Dropped)
		}
		return drops
	}
	first := run()
	assert.Equal(t, first, run())
	assert.Contains(t, first, 50)
}
