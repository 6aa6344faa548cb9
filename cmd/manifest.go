package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/game"
	_ "github.com/infra-sim/infra-sim/sim/services"
	"gopkg.in/yaml.v3"
)

// Manifest is a deployment file: the services to deploy before the first tick
// and commands to issue at given ticks during a headless run.
type Manifest struct {
	Services []sim.ServiceConfig `yaml:"services"`
	Schedule []ScheduledCommand  `yaml:"schedule"`
}

// ScheduledCommand fires before the tick it names. Exactly one of Spike,
// Attack, Deploy or Remove is set.
type ScheduledCommand struct {
	Tick   int64              `yaml:"tick"`
	Spike  *SpikeCommand      `yaml:"spike,omitempty"`
	Attack *AttackCommand     `yaml:"attack,omitempty"`
	Deploy *sim.ServiceConfig `yaml:"deploy,omitempty"`
	Remove string             `yaml:"remove,omitempty"`
}

// SpikeCommand is the body of a traffic spike command.
type SpikeCommand struct {
	Multiplier      float64 `yaml:"multiplier" json:"multiplier"`
	DurationSeconds int     `yaml:"duration_seconds" json:"duration_seconds"`
}

// AttackCommand is the body of an attack command.
type AttackCommand struct {
	Vector          string `yaml:"vector" json:"vector"`
	DurationSeconds int    `yaml:"duration_seconds" json:"duration_seconds"`
}

// LoadManifest reads a manifest with strict field checking: a misspelled key
// is an error, not a silently ignored setting.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return decodeManifest(bytes.NewReader(data))
}

func decodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	sort.SliceStable(m.Schedule, func(i, j int) bool { return m.Schedule[i].Tick < m.Schedule[j].Tick })
	return &m, nil
}

// Validate deploys every service into a scratch registry and checks the
// schedule, returning one error per problem.
func (m *Manifest) Validate() []error {
	var errs []error
	reg := sim.NewRegistry(sim.RegistryConfig{}, sim.NewPartitionedRNG(sim.NewSimulationKey(game.DefaultSeed)))
	for i, svc := range m.Services {
		if _, err := reg.Deploy(svc); err != nil {
			errs = append(errs, fmt.Errorf("services[%d]: %w", i, err))
		}
	}
	for i, c := range m.Schedule {
		set := 0
		for _, present := range []bool{c.Spike != nil, c.Attack != nil, c.Deploy != nil, c.Remove != ""} {
			if present {
				set++
			}
		}
		if set != 1 {
			errs = append(errs, fmt.Errorf("schedule[%d]: exactly one of spike, attack, deploy or remove required, got %d", i, set))
		}
		if c.Tick < 0 {
			errs = append(errs, fmt.Errorf("schedule[%d]: tick must be >= 0, got %d", i, c.Tick))
		}
	}
	return errs
}

// Apply deploys the manifest's services into g. The first failure aborts.
func (m *Manifest) Apply(g *game.Game) error {
	for i, svc := range m.Services {
		if _, err := g.DeployService(svc); err != nil {
			return fmt.Errorf("services[%d]: %w", i, err)
		}
	}
	return nil
}

// Issue runs one scheduled command against g.
func (c ScheduledCommand) Issue(g *game.Game) error {
	switch {
	case c.Spike != nil:
		return g.TriggerSpike(c.Spike.Multiplier, c.Spike.DurationSeconds)
	case c.Attack != nil:
		return g.StartAttack(c.Attack.Vector, c.Attack.DurationSeconds)
	case c.Deploy != nil:
		_, err := g.DeployService(*c.Deploy)
		return err
	case c.Remove != "":
		return g.RemoveService(c.Remove)
	default:
		return fmt.Errorf("empty command at tick %d", c.Tick)
	}
}
