package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "gamescope-portal",
		Short: "xdg-desktop-portal backend for gamescope",
		Long: `gamescope-portal implements the xdg-desktop-portal backend interfaces
for gamescope sessions, so sandboxed applications can record the screen and
take screenshots in gaming mode.

Features:
  • ScreenCast: hands out gamescope's PipeWire stream
  • Screenshot: captures through gamescopectl
  • Access: grants access dialogs so the frontend routes to this backend
  • Persistent configuration (YAML, GAMESCOPE_PORTAL_* environment)
  • Optional local status API`,
		SilenceUsage: true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/gamescope-portal/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable console logs")
	rootCmd.PersistentFlags().Bool("journald", false, "log to the systemd journal")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig creates the config manager, applies command line overrides and
// configures the logger from the result.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	overrides := []struct {
		flag string
		key  string
	}{
		{"log-level", "log_level"},
		{"log-pretty", "log_pretty"},
		{"journald", "journald"},
		{"strategy", "stream.strategy"},
		{"api", "api.enabled"},
		{"api-listen", "api.listen"},
	}
	for _, o := range overrides {
		f := flags.Lookup(o.flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := configMgr.Set(o.key, f.Value.String()); err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", o.flag, err)
		}
	}

	cfg := configMgr.Get()
	logger.Configure(logger.Options{
		Level:    cfg.LogLevel,
		Pretty:   cfg.LogPretty,
		Journald: cfg.Journald,
	})

	return configMgr, nil
}
