package portal

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// screenshotLayout is the timestamp format of screenshot file names
const screenshotLayout = "20060102_150405"

// Helper captures the gamescope output into a file
type Helper interface {
	Screenshot(ctx context.Context, dest string) error
}

// Screenshot orchestrates gamescopectl screenshots into the pictures directory
type Screenshot struct {
	helper Helper
	cfg    config.ScreenshotConfig

	picturesDir func() string
	now         func() time.Time
}

// NewScreenshot creates an orchestrator driving helper
func NewScreenshot(helper Helper, cfg config.ScreenshotConfig) *Screenshot {
	s := &Screenshot{
		helper: helper,
		cfg:    cfg,
		now:    time.Now,
	}
	s.picturesDir = func() string {
		if s.cfg.Directory != "" {
			return s.cfg.Directory
		}
		return xdg.UserDirs.Pictures
	}
	return s
}

// Destination composes the path and file URI of a screenshot taken now
func (s *Screenshot) Destination() (string, string, error) {
	dir := s.picturesDir()
	if dir == "" {
		return "", "", ErrNoDestinationDirectory
	}

	name := fmt.Sprintf("Screenshot_%s.png", s.now().Format(screenshotLayout))
	path := filepath.Join(dir, name)
	if !filepath.IsAbs(path) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	uri := (&url.URL{Scheme: "file", Path: path}).String()
	return path, uri, nil
}

// Take captures a screenshot and returns its file URI. It waits for the
// helper to exit and, when configured, for the file to stop changing.
func (s *Screenshot) Take(ctx context.Context, req ScreenshotRequest) (string, error) {
	log := logger.WithComponent("screenshot")

	path, uri, err := s.Destination()
	if err != nil {
		log.Error().Err(err).Msg("Failed to compose screenshot destination")
		return "", err
	}

	var watcher *fsnotify.Watcher
	if s.cfg.WaitForFile {
		// Armed before launching so an early write is not missed
		watcher, err = fsnotify.NewWatcher()
		if err == nil {
			if addErr := watcher.Add(filepath.Dir(path)); addErr != nil {
				watcher.Close()
				watcher, err = nil, addErr
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("dir", filepath.Dir(path)).Msg("Failed to watch screenshot directory")
		}
	}
	if watcher != nil {
		defer watcher.Close()
	}

	log.Info().
		Str("app_id", req.AppID).
		Str("path", path).
		Bool("interactive", req.Interactive).
		Msg("Taking screenshot")

	if err := s.helper.Screenshot(ctx, path); err != nil {
		err = fmt.Errorf("%w: %w", ErrHelperFailed, err)
		log.Error().Err(err).Str("path", path).Msg("Screenshot helper failed")
		return "", err
	}

	if watcher != nil {
		if s.waitForFile(ctx, watcher, filepath.Base(path)) {
			log.Info().Str("uri", uri).Msg("Screenshot written")
		} else {
			log.Info().Str("uri", uri).Msg("Screenshot pending")
		}
	}

	return uri, nil
}

// waitForFile reports whether a write to name was followed by a quiet
// period. It returns false on timeout, cancellation or a closed watcher.
func (s *Screenshot) waitForFile(ctx context.Context, watcher *fsnotify.Watcher, name string) bool {
	log := logger.WithComponent("screenshot")

	deadline := time.NewTimer(s.cfg.CompletionTimeout)
	defer deadline.Stop()

	var settle <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if filepath.Base(event.Name) != name || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if s.cfg.Settle <= 0 {
				return true
			}
			settle = time.After(s.cfg.Settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return false
			}
			log.Warn().Err(err).Msg("Screenshot watch error")
		case <-settle:
			return true
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// PickColor is not supported by gamescope
func (s *Screenshot) PickColor(ctx context.Context, req ScreenshotRequest) (Color, error) {
	logger.WithComponent("screenshot").Debug().Str("app_id", req.AppID).Msg("PickColor requested")
	return Color{}, ErrUnsupported
}
