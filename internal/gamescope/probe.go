package gamescope

import (
	"context"
	"os"

	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/shirou/gopsutil/v3/process"
)

// compositorNames are the process names gamescope runs under
var compositorNames = map[string]bool{
	"gamescope":    true,
	"gamescope-wl": true,
}

// Report is the outcome of the startup probe
type Report struct {
	Desktop         string `json:"desktop"`
	UnderGamescope  bool   `json:"under_gamescope"`
	CtlVersion      string `json:"ctl_version,omitempty"`
	CtlError        string `json:"ctl_error,omitempty"`
	CompositorPID   int32  `json:"compositor_pid,omitempty"`
	CompositorFound bool   `json:"compositor_found"`
}

// RunningUnderGamescope reports whether XDG_CURRENT_DESKTOP names gamescope
func RunningUnderGamescope() bool {
	return os.Getenv("XDG_CURRENT_DESKTOP") == "gamescope"
}

// FindCompositor looks for a running gamescope process
func FindCompositor(ctx context.Context) (int32, bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes can exit while we iterate
			continue
		}
		if compositorNames[name] {
			return p.Pid, true, nil
		}
	}
	return 0, false, nil
}

// Probe checks the environment at startup. Nothing it finds is fatal; it
// only warns about degraded functionality.
func Probe(ctx context.Context, ctl *Ctl) Report {
	log := logger.WithComponent("probe")

	report := Report{
		Desktop:        os.Getenv("XDG_CURRENT_DESKTOP"),
		UnderGamescope: RunningUnderGamescope(),
	}
	if !report.UnderGamescope {
		log.Warn().Str("desktop", report.Desktop).Msg("Not running under a gamescope session")
	}

	version, err := ctl.Version(ctx)
	if err != nil {
		report.CtlError = err.Error()
		log.Error().Err(err).Msg("Failed to run gamescopectl, expect degraded functionality")
	} else {
		report.CtlVersion = version
		log.Debug().Str("version", version).Msg("gamescopectl available")
	}

	pid, found, err := FindCompositor(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to scan processes for gamescope")
	case found:
		report.CompositorPID = pid
		report.CompositorFound = true
		log.Info().Int32("pid", pid).Msg("Found gamescope compositor process")
	default:
		log.Warn().Msg("No gamescope compositor process found")
	}

	return report
}
