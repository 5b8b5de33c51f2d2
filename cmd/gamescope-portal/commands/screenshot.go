package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/bryanchriswhite/gamescope-portal/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-portal/internal/portal"
	"github.com/spf13/cobra"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Take a screenshot of the gamescope output",
	Long: `Take one screenshot the way the portal does and print its file URI.

The file is written to the configured screenshot directory, or the XDG
pictures directory when none is set.`,
	Example: `  # Save into ~/Pictures
  gamescope-portal screenshot

  # Save elsewhere
  gamescope-portal screenshot --dir /tmp/shots`,
	Args: cobra.NoArgs,
	RunE: runScreenshot,
}

func init() {
	rootCmd.AddCommand(screenshotCmd)

	screenshotCmd.Flags().String("dir", "", "destination directory")
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cfg := configMgr.Get().Screenshot
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Directory = dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shot := portal.NewScreenshot(gamescope.NewCtl(cfg.Helper), cfg)
	uri, err := shot.Take(ctx, portal.ScreenshotRequest{AppID: "gamescope-portal"})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), uri)
	return nil
}
