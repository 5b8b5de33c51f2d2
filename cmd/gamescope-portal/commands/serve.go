package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/gamescope-portal/internal/api"
	"github.com/bryanchriswhite/gamescope-portal/internal/backend"
	"github.com/bryanchriswhite/gamescope-portal/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/bryanchriswhite/gamescope-portal/internal/portal"
	"github.com/bryanchriswhite/gamescope-portal/internal/session"
	"github.com/bryanchriswhite/gamescope-portal/internal/stream"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal backend",
	Long: `Run the portal backend on the session bus.

The backend owns the configured bus name and serves the ScreenCast,
Screenshot and Access interfaces until interrupted.`,
	Example: `  # Run with defaults
  gamescope-portal serve

  # Discover the stream through the PipeWire registry
  gamescope-portal serve --strategy pipewire

  # Enable the local status API
  gamescope-portal serve --api --api-listen 127.0.0.1:8089

  # Start with debug logging
  gamescope-portal serve --log-level debug --log-pretty`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("strategy", "", "stream discovery strategy (wayland or pipewire)")
	serveCmd.Flags().Bool("api", false, "enable the status API")
	serveCmd.Flags().String("api-listen", "", "status API listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("strategy", cfg.Stream.Strategy).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl := gamescope.NewCtl(cfg.Screenshot.Helper)
	report := gamescope.Probe(ctx, ctl)

	resolver, err := stream.New(cfg.Stream)
	if err != nil {
		return err
	}

	sessions := session.NewRegistry()
	screenCast := portal.NewScreenCast(sessions, resolver)
	screenshot := portal.NewScreenshot(ctl, cfg.Screenshot)

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	b := backend.New(ctx, conn, screenCast, screenshot, portal.NewAccess())
	if err := b.Register(conn, cfg.DBus.BusName); err != nil {
		return err
	}

	if cfg.API.Enabled {
		server := api.NewServer(sessions, resolver, configMgr, report)
		go func() {
			if err := server.Start(ctx, cfg.API.Listen); err != nil {
				log.Error().Err(err).Msg("Status API stopped")
			}
		}()
	}

	log.Info().
		Str("bus_name", cfg.DBus.BusName).
		Bool("api", cfg.API.Enabled).
		Msg("gamescope-portal is running")

	<-ctx.Done()

	log.Info().Int("open_sessions", sessions.Len()).Msg("Shutting down gracefully...")
	return nil
}
