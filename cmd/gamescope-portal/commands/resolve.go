package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/bryanchriswhite/gamescope-portal/internal/stream"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Discover the gamescope PipeWire node",
	Long:  `Run one stream discovery and print the PipeWire node id gamescope publishes.`,
	Example: `  # Ask gamescope over its wayland socket
  gamescope-portal resolve

  # Scan the PipeWire registry instead
  gamescope-portal resolve --strategy pipewire`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().String("strategy", "", "stream discovery strategy (wayland or pipewire)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	resolver, err := stream.New(configMgr.Get().Stream)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	nodeID, err := resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("%s discovery failed: %w", resolver.Name(), err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "resolved via %s in %s\n", resolver.Name(), time.Since(started).Round(time.Millisecond))
	fmt.Fprintln(cmd.OutOrStdout(), nodeID)
	return nil
}
