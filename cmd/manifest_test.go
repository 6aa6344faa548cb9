package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `
services:
  - provider: aws
    type: firewall
    capacity: 1000
    base_cost: 0.05
    params:
      default_action: ALLOW
  - provider: aws
    type: compute
    capacity: 500
    base_cost: 0.1
schedule:
  - tick: 4
    attack:
      vector: sqli
      duration_seconds: 2
  - tick: 2
    spike:
      multiplier: 2
      duration_seconds: 3
`

// testGameConfig yields exactly 100 user requests per tick and no random attacks.
func testGameConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.TickInterval = time.Hour
	cfg.Workload.BaseRate = 100
	cfg.Workload.GrowthRate = 0
	cfg.Workload.Peaks = nil
	cfg.Workload.BotRatio = 0
	cfg.Workload.Attacks.Probability = 0
	return cfg
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeFile(t, "deploy.yaml", manifestYAML))
	require.NoError(t, err)

	require.Len(t, m.Services, 2)
	assert.Equal(t, sim.TypeFirewall, m.Services[0].Type)
	assert.Equal(t, "ALLOW", m.Services[0].Params["default_action"])
	require.Len(t, m.Schedule, 2)
	assert.Equal(t, int64(2), m.Schedule[0].Tick, "schedule is sorted by tick")
	assert.Empty(t, m.Validate())
}

// TestLoadManifest_UnknownField verifies strict decoding rejects typos.
func TestLoadManifest_UnknownField(t *testing.T) {
	_, err := decodeManifest(strings.NewReader("services:\n  - provider: aws\n    type: compute\n    capcity: 5\n"))
	assert.ErrorContains(t, err, "capcity")
}

func TestLoadManifest_Empty(t *testing.T) {
	m, err := decodeManifest(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, m.Services)
}

// TestManifest_ValidateReportsEveryProblem verifies each bad service and
// schedule entry yields its own error.
func TestManifest_ValidateReportsEveryProblem(t *testing.T) {
	m, err := decodeManifest(strings.NewReader(`
services:
  - provider: aws
    type: compute
    capacity: 0
    base_cost: 1
  - provider: gcp
    type: cache
    capacity: 10
    base_cost: 1
schedule:
  - tick: 1
`))
	require.NoError(t, err)

	errs := m.Validate()
	require.Len(t, errs, 2)
	var cfgErr *sim.ConfigurationError
	assert.True(t, errors.As(errs[0], &cfgErr))
	assert.Contains(t, errs[0].Error(), "services[0]")
	assert.Contains(t, errs[1].Error(), "schedule[0]")
}

func TestScheduledCommand_Issue(t *testing.T) {
	g, err := game.New(testGameConfig())
	require.NoError(t, err)

	require.NoError(t, ScheduledCommand{Deploy: &sim.ServiceConfig{Provider: sim.ProviderGCP, Type: sim.TypeCompute, Capacity: 200, BaseCost: 1}}.Issue(g))
	require.NoError(t, ScheduledCommand{Spike: &SpikeCommand{Multiplier: 2, DurationSeconds: 1}}.Issue(g))
	require.NoError(t, ScheduledCommand{Attack: &AttackCommand{Vector: "xss", DurationSeconds: 1}}.Issue(g))
	require.NoError(t, ScheduledCommand{Remove: "gcp-compute-1"}.Issue(g))
	assert.Error(t, ScheduledCommand{Remove: "gcp-compute-1"}.Issue(g))
	assert.Error(t, ScheduledCommand{}.Issue(g))

	s := g.Snapshot()
	assert.Empty(t, s.Services)
	assert.Equal(t, 2.0, s.SpikeMultiplier)
	require.NotNil(t, s.Attack)
	assert.Equal(t, "xss", s.Attack.Vector)
}
