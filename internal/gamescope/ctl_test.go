package gamescope

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeHelper installs a fake gamescopectl shell script
func writeHelper(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gamescopectl")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCtl_Version(t *testing.T) {
	ctl := NewCtl(writeHelper(t, `[ "$1" = version ] && echo "gamescope version 3.16.1" && exit 0; exit 2`))

	version, err := ctl.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gamescope version 3.16.1", version)
}

func TestCtl_ScreenshotPassesDestination(t *testing.T) {
	ctl := NewCtl(writeHelper(t, `[ "$1" = screenshot ] || exit 2; echo png > "$2"`))
	dest := filepath.Join(t.TempDir(), "shot.png")

	require.NoError(t, ctl.Screenshot(context.Background(), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "png\n", string(data))
}

func TestCtl_NonZeroExitIncludesOutput(t *testing.T) {
	ctl := NewCtl(writeHelper(t, `echo "no gamescope instance" >&2; exit 1`))

	err := ctl.Screenshot(context.Background(), "/tmp/x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gamescope instance")
	assert.Contains(t, err.Error(), "screenshot")
}

func TestCtl_MissingBinary(t *testing.T) {
	ctl := NewCtl(filepath.Join(t.TempDir(), "missing"))

	_, err := ctl.Version(context.Background())
	assert.Error(t, err)
}

func TestNewCtl_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultCtl, NewCtl("").Path())
}

func TestProbe_NeverFails(t *testing.T) {
	t.Setenv("XDG_CURRENT_DESKTOP", "KDE")
	ctl := NewCtl(filepath.Join(t.TempDir(), "missing"))

	report := Probe(context.Background(), ctl)
	assert.False(t, report.UnderGamescope)
	assert.Equal(t, "KDE", report.Desktop)
	assert.NotEmpty(t, report.CtlError)
}

func TestRunningUnderGamescope(t *testing.T) {
	t.Setenv("XDG_CURRENT_DESKTOP", "gamescope")
	assert.True(t, RunningUnderGamescope())
}
