package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// run executes the root command with args and returns its stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestConfigInitSetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))
	assert.FileExists(t, path)

	_, err = run(t, "config", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "set", "stream.strategy", "pipewire", "--config", path)
	require.NoError(t, err)

	out, err = run(t, "config", "get", "stream.strategy", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "pipewire", strings.TrimSpace(out))

	_, err = run(t, "config", "set", "stream.strategy", "x11", "--config", path)
	assert.Error(t, err)

	_, err = run(t, "config", "set", "no.such.key", "1", "--config", path)
	assert.ErrorContains(t, err, "unknown configuration key")
}

func TestConfigSet_DoesNotPersistOverrides(t *testing.T) {
	t.Setenv("GAMESCOPE_PORTAL_STREAM_STRATEGY", "pipewire")
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "config", "set", "screenshot.helper", "/opt/bin/gamescopectl", "--log-level", "error", "--config", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved config.Config
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, "/opt/bin/gamescopectl", saved.Screenshot.Helper)
	assert.Equal(t, config.StrategyWayland, saved.Stream.Strategy)
	assert.Equal(t, "info", saved.LogLevel)
}

func TestConfigShowJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "config", "show", "--format", "json", "--config", path)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, config.DefaultBusName, cfg.DBus.BusName)
	assert.Equal(t, config.StrategyWayland, cfg.Stream.Strategy)

	_, err = run(t, "config", "show", "--format", "toml", "--config", path)
	assert.ErrorContains(t, err, "unsupported format")
}

func TestConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "path must not create the file")
}

func TestResolve_NoCompositor(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	t.Setenv("GAMESCOPE_WAYLAND_DISPLAY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "resolve", "--strategy", "wayland", "--config", path)
	assert.ErrorContains(t, err, "wayland discovery failed")
}
