package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	listenAddr  string // HTTP listen address
	serveFile   string // Manifest deployed at startup
	autoStart   bool   // Start the clock immediately
	tickPeriod  time.Duration
	shutdownMax = 5 * time.Second
)

// serveCmd runs a live game behind the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a live game over HTTP with a websocket notification stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("tick-interval") {
			cfg.TickInterval = tickPeriod
		}
		g, err := game.New(cfg)
		if err != nil {
			return err
		}
		if serveFile != "" {
			m, err := LoadManifest(serveFile)
			if err != nil {
				return err
			}
			if err := m.Apply(g); err != nil {
				return err
			}
		}
		g.Subscribe(recordEvent)
		if autoStart {
			if err := g.Start(); err != nil {
				return err
			}
		}

		if logLevel != "debug" && logLevel != "trace" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{Addr: listenAddr, Handler: newRouter(g)}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		errCh := make(chan error, 1)
		go func() {
			printInfo(cmd.OutOrStdout(), "infra-sim listening on %s (session %s)", listenAddr, g.SessionID())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			g.Pause()
			return err
		case <-ctx.Done():
		}
		logrus.Info("serve: shutting down")
		g.Pause()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownMax)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	addGameFlags(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveFile, "manifest", "", "Deployment manifest applied at startup")
	serveCmd.Flags().BoolVar(&autoStart, "start", false, "Start the clock immediately")
	serveCmd.Flags().DurationVar(&tickPeriod, "tick-interval", time.Second, "Wall-clock period of one tick")
}
