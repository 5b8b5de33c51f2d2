package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Stream discovery strategies
const (
	StrategyWayland  = "wayland"
	StrategyPipeWire = "pipewire"
)

// DefaultBusName is the well-known name the backend owns on the session bus
const DefaultBusName = "org.freedesktop.impl.portal.desktop.gamescope"

// EnvPrefix prefixes environment overrides, e.g. GAMESCOPE_PORTAL_STREAM_STRATEGY
const EnvPrefix = "GAMESCOPE_PORTAL"

// Config represents the application configuration
type Config struct {
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogPretty  bool             `mapstructure:"log_pretty" yaml:"log_pretty" json:"log_pretty"`
	Journald   bool             `mapstructure:"journald" yaml:"journald" json:"journald"`
	Stream     StreamConfig     `mapstructure:"stream" yaml:"stream" json:"stream"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot" json:"screenshot"`
	DBus       DBusConfig       `mapstructure:"dbus" yaml:"dbus" json:"dbus"`
	API        APIConfig        `mapstructure:"api" yaml:"api" json:"api"`
}

// StreamConfig selects and tunes the PipeWire node discovery strategy
type StreamConfig struct {
	Strategy string         `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	Wayland  WaylandConfig  `mapstructure:"wayland" yaml:"wayland" json:"wayland"`
	PipeWire PipeWireConfig `mapstructure:"pipewire" yaml:"pipewire" json:"pipewire"`
}

// WaylandConfig configures the gamescope wayland handshake.
// An empty Display falls back to $GAMESCOPE_WAYLAND_DISPLAY, then gamescope-0.
// A zero RoundtripTimeout leaves roundtrips unbounded.
type WaylandConfig struct {
	Display          string        `mapstructure:"display" yaml:"display" json:"display"`
	RoundtripTimeout time.Duration `mapstructure:"roundtrip_timeout" yaml:"roundtrip_timeout" json:"roundtrip_timeout"`
}

// PipeWireConfig configures the PipeWire registry scan
type PipeWireConfig struct {
	NodeName string        `mapstructure:"node_name" yaml:"node_name" json:"node_name"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Command  string        `mapstructure:"command" yaml:"command" json:"command"`
	Args     []string      `mapstructure:"args" yaml:"args" json:"args"`
}

// ScreenshotConfig configures the screenshot orchestrator
type ScreenshotConfig struct {
	// Directory overrides the XDG pictures directory when set
	Directory         string        `mapstructure:"directory" yaml:"directory" json:"directory"`
	Helper            string        `mapstructure:"helper" yaml:"helper" json:"helper"`
	WaitForFile       bool          `mapstructure:"wait_for_file" yaml:"wait_for_file" json:"wait_for_file"`
	Settle            time.Duration `mapstructure:"settle" yaml:"settle" json:"settle"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout" yaml:"completion_timeout" json:"completion_timeout"`
}

// DBusConfig configures the session bus registration
type DBusConfig struct {
	BusName string `mapstructure:"bus_name" yaml:"bus_name" json:"bus_name"`
}

// APIConfig configures the optional diagnostics HTTP server
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" json:"listen"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Stream: StreamConfig{
			Strategy: StrategyWayland,
			Wayland: WaylandConfig{
				RoundtripTimeout: 5 * time.Second,
			},
			PipeWire: PipeWireConfig{
				NodeName: "gamescope",
				Timeout:  time.Second,
				Command:  "pw-dump",
				Args:     []string{"--monitor", "--no-colors"},
			},
		},
		Screenshot: ScreenshotConfig{
			Helper:            "gamescopectl",
			WaitForFile:       true,
			Settle:            200 * time.Millisecond,
			CompletionTimeout: 5 * time.Second,
		},
		DBus: DBusConfig{
			BusName: DefaultBusName,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8089",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_pretty", defaults.LogPretty)
	v.SetDefault("journald", defaults.Journald)

	v.SetDefault("stream.strategy", defaults.Stream.Strategy)
	v.SetDefault("stream.wayland.display", defaults.Stream.Wayland.Display)
	v.SetDefault("stream.wayland.roundtrip_timeout", defaults.Stream.Wayland.RoundtripTimeout)
	v.SetDefault("stream.pipewire.node_name", defaults.Stream.PipeWire.NodeName)
	v.SetDefault("stream.pipewire.timeout", defaults.Stream.PipeWire.Timeout)
	v.SetDefault("stream.pipewire.command", defaults.Stream.PipeWire.Command)
	v.SetDefault("stream.pipewire.args", defaults.Stream.PipeWire.Args)

	v.SetDefault("screenshot.directory", defaults.Screenshot.Directory)
	v.SetDefault("screenshot.helper", defaults.Screenshot.Helper)
	v.SetDefault("screenshot.wait_for_file", defaults.Screenshot.WaitForFile)
	v.SetDefault("screenshot.settle", defaults.Screenshot.Settle)
	v.SetDefault("screenshot.completion_timeout", defaults.Screenshot.CompletionTimeout)

	v.SetDefault("dbus.bus_name", defaults.DBus.BusName)

	v.SetDefault("api.enabled", defaults.API.Enabled)
	v.SetDefault("api.listen", defaults.API.Listen)
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if _, ok := logger.LookupLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("invalid log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	switch c.Stream.Strategy {
	case StrategyWayland, StrategyPipeWire:
	default:
		return fmt.Errorf("invalid stream strategy %q (use %q or %q)", c.Stream.Strategy, StrategyWayland, StrategyPipeWire)
	}
	if c.Stream.Wayland.RoundtripTimeout < 0 {
		return fmt.Errorf("stream.wayland.roundtrip_timeout must not be negative")
	}
	if c.Stream.PipeWire.Timeout <= 0 {
		return fmt.Errorf("stream.pipewire.timeout must be positive")
	}
	if c.Stream.PipeWire.NodeName == "" {
		return fmt.Errorf("stream.pipewire.node_name must not be empty")
	}
	if c.Stream.PipeWire.Command == "" {
		return fmt.Errorf("stream.pipewire.command must not be empty")
	}
	if c.Screenshot.Helper == "" {
		return fmt.Errorf("screenshot.helper must not be empty")
	}
	if c.Screenshot.Settle < 0 || c.Screenshot.CompletionTimeout < 0 {
		return fmt.Errorf("screenshot durations must not be negative")
	}
	if c.DBus.BusName == "" {
		return fmt.Errorf("dbus.bus_name must not be empty")
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/gamescope-portal/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "gamescope-portal", "config.yaml")
}

// Manager handles configuration.
// It keeps two views: the effective one (defaults, file, environment and
// Set overrides) and the file-backed one (defaults and file) that Save writes.
type Manager struct {
	configPath string
	v          *viper.Viper
	file       *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager.
// A missing config file is not an error; defaults and environment apply.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := DefaultPath()
	if configFile != "" {
		actualConfigPath = configFile
	}

	v := newViper(actualConfigPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
		file:       newViper(actualConfigPath),
	}

	if _, err := os.Stat(actualConfigPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := m.file.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Debug().
			Str("path", m.configPath).
			Msg("Config loaded")
	} else if os.IsNotExist(err) {
		logger.WithComponent("config").Debug().
			Str("path", m.configPath).
			Msg("Config file not found, using defaults")
	} else {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if err := m.reload(); err != nil {
		return nil, err
	}

	return m, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

// decode unmarshals and validates the state of v
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// reload decodes the effective viper state into a fresh Config
func (m *Manager) reload() error {
	cfg, err := decode(m.v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Default()
	}

	cfg := *m.config
	cfg.Stream.PipeWire.Args = append([]string(nil), m.config.Stream.PipeWire.Args...)
	return &cfg
}

// GetViper exposes the underlying viper instance for key lookups
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Set overrides a single key for this process and re-validates the
// configuration. The previous value is restored when the new one is invalid.
// Save does not write Set overrides; use SaveKey to persist a value.
func (m *Manager) Set(key string, value interface{}) error {
	previous := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, previous)
		return err
	}
	return nil
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.Set("log_level", level)
}

// SaveKey sets key for this process and writes it to the config file along
// with the values already in the file.
func (m *Manager) SaveKey(key string, value interface{}) error {
	if err := m.Set(key, value); err != nil {
		return err
	}

	previous := m.file.Get(key)
	m.file.Set(key, value)
	cfg, err := decode(m.file)
	if err != nil {
		m.file.Set(key, previous)
		return err
	}
	return m.write(cfg)
}

// Save writes the file-backed configuration (defaults, the file and keys
// written by SaveKey) to disk as YAML.
func (m *Manager) Save() error {
	cfg, err := decode(m.file)
	if err != nil {
		return err
	}
	return m.write(cfg)
}

func (m *Manager) write(cfg *Config) error {
	log := logger.WithComponent("config")
	log.Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	log.Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
