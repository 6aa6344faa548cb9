package cmd

import (
	"fmt"
	"strings"

	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix scopes environment overrides, e.g. INFRASIM_METRICS_SLA_THRESHOLD.
const envPrefix = "infrasim"

// gameFlags are the command-line overrides shared by run and serve.
var gameFlags = []string{"seed", "routing", "topology", "trace"}

func addGameFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("seed", game.DefaultSeed, "Seed for traffic and service randomness")
	cmd.Flags().String("routing", "round-robin", "Routing policy (round-robin, capacity-weighted, random)")
	cmd.Flags().Bool("topology", false, "Route requests through typed stages instead of a flat pool")
	cmd.Flags().String("trace", "none", "Decision trace level (none, ticks, decisions)")
}

// newViper layers defaults, the config file, INFRASIM_* env vars and cmd's
// changed flags, in increasing precedence. cmd may be nil.
func newViper(path string, cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key must be known to viper for env overrides to reach Unmarshal.
	d := game.DefaultConfig()
	v.SetDefault("seed", d.Seed)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("routing", d.Routing)
	v.SetDefault("topology", d.Topology)
	v.SetDefault("metrics.sla_threshold", d.Metrics.SLAThreshold)
	v.SetDefault("metrics.sla_window", d.Metrics.SLAWindow)
	v.SetDefault("metrics.initial_reputation", d.Metrics.InitialReputation)
	v.SetDefault("workload.base_rate", d.Workload.BaseRate)
	v.SetDefault("workload.growth_rate", d.Workload.GrowthRate)
	v.SetDefault("workload.max_batch", d.Workload.MaxBatch)
	v.SetDefault("workload.ticks_per_hour", d.Workload.TicksPerHour)
	v.SetDefault("workload.start_hour", d.Workload.StartHour)
	v.SetDefault("workload.bot_ratio", d.Workload.BotRatio)
	v.SetDefault("workload.attacks.probability", d.Workload.Attacks.Probability)
	v.SetDefault("trace.level", string(d.Trace.Level))
	v.SetDefault("trace.max_records", d.Trace.MaxRecords)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		logrus.Infof("config: loaded %s", v.ConfigFileUsed())
	}

	if cmd != nil {
		for _, name := range gameFlags {
			key := name
			if name == "trace" {
				key = "trace.level"
			}
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}
	return v, nil
}

// loadConfig resolves the game configuration for cmd.
func loadConfig(path string, cmd *cobra.Command) (game.Config, error) {
	v, err := newViper(path, cmd)
	if err != nil {
		return game.Config{}, err
	}
	cfg := game.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return game.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return game.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
