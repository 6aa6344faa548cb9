package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	manifestPath   string // Deployment manifest
	runTicks       int    // Ticks to simulate
	dashboardEvery int    // Dashboard period in ticks
	printTrace     bool   // Print the trace summary at the end
)

// runCmd simulates a manifest headlessly, as fast as possible.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a deployment manifest headlessly for a number of ticks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, cmd)
		if err != nil {
			return err
		}
		var manifest *Manifest
		if manifestPath != "" {
			if manifest, err = LoadManifest(manifestPath); err != nil {
				return err
			}
		} else {
			manifest = &Manifest{}
		}
		return runHeadless(cmd.OutOrStdout(), cfg, manifest, runTicks, dashboardEvery, printTrace)
	},
}

// runHeadless plays manifest for up to ticks ticks, drawing the dashboard every
// `every` ticks (0 draws only the final state).
func runHeadless(w io.Writer, cfg game.Config, manifest *Manifest, ticks, every int, withTrace bool) error {
	g, err := game.New(cfg)
	if err != nil {
		return err
	}
	if err := manifest.Apply(g); err != nil {
		return err
	}
	logrus.Infof("run: %d services deployed, simulating %d ticks (session %s)", len(manifest.Services), ticks, g.SessionID())

	if every > 0 {
		unsubscribe := g.Subscribe(func(ev game.Event) {
			if ev.Type != game.EventRenderRequested {
				return
			}
			if s := ev.Payload.(game.Snapshot); s.Tick%int64(every) == 0 {
				fmt.Fprintln(w, renderDashboard(s))
			}
		})
		defer unsubscribe()
	}

	next := 0
	for i := 0; i < ticks; i++ {
		tick := g.Snapshot().Tick
		for ; next < len(manifest.Schedule) && manifest.Schedule[next].Tick <= tick; next++ {
			c := manifest.Schedule[next]
			if err := c.Issue(g); err != nil {
				printWarn(w, "tick %d: scheduled command failed: %v", tick, err)
			}
		}
		if g.Advance(1) == 0 {
			break
		}
	}

	s := g.Snapshot()
	fmt.Fprintln(w, renderDashboard(s))
	if s.State == sim.StateOver {
		printError(w, "GAME OVER at tick %d: %s", s.Tick, s.Reason)
	} else {
		printSuccess(w, "Survived %d ticks: availability %.2f%%, reputation %.1f, total cost %s",
			s.Tick, s.Metrics.Availability, s.Metrics.Reputation, s.TotalCost.StringFixed(2))
	}
	if withTrace {
		data, err := json.MarshalIndent(g.TraceSummary(), "", "  ")
		if err != nil {
			return err
		}
		printInfo(w, "=== Trace Summary ===")
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func init() {
	addGameFlags(runCmd)
	runCmd.Flags().StringVar(&manifestPath, "manifest", "", "Deployment manifest (YAML)")
	runCmd.Flags().IntVar(&runTicks, "ticks", 300, "Number of ticks to simulate")
	runCmd.Flags().IntVar(&dashboardEvery, "dashboard-every", 0, "Draw the dashboard every N ticks (0 = final state only)")
	runCmd.Flags().BoolVar(&printTrace, "summary", false, "Print the decision trace summary at the end")
}
