package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// LOOPBRIDGE_BRIDGE_WORKERS=8.
const EnvPrefix = "LOOPBRIDGE"

// Config represents the complete loopbridge configuration
type Config struct {
	Bridge    BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" yaml:"heartbeat"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// BridgeConfig controls the bridge created by `loopbridge run`
type BridgeConfig struct {
	// App is the registered application identifier to host (see `loopbridge apps`)
	App string `mapstructure:"app" yaml:"app"`
	// Workers is the number of goroutines issuing execution requests
	Workers int `mapstructure:"workers" yaml:"workers"`
	// RequestsPerWorker is how many deferred calls each worker schedules
	RequestsPerWorker int `mapstructure:"requests_per_worker" yaml:"requests_per_worker"`
	// RunFor bounds how long the loop runs before owner teardown (0 = until signal or app quit)
	RunFor time.Duration `mapstructure:"run_for" yaml:"run_for"`
}

// HeartbeatConfig controls the heartbeat application
type HeartbeatConfig struct {
	// IntervalMs is the tick period in milliseconds
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
	// MaxBeats quits the application after this many ticks (0 = never)
	MaxBeats int `mapstructure:"max_beats" yaml:"max_beats"`
}

// WatchConfig controls the directory-watching application
type WatchConfig struct {
	// Dir is the directory to watch (default: current directory)
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Patterns are glob patterns matched against file base names; empty matches everything
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	// DebounceMs coalesces bursts of filesystem events
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	// QuitFile asks the application to quit when a file with this base name appears
	QuitFile string `mapstructure:"quit_file" yaml:"quit_file"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for loopbridge.log; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which the log file rotates (0 = no rotation)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			App:               "heartbeat",
			Workers:           3,
			RequestsPerWorker: 10,
			RunFor:            5 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			IntervalMs: 250,
			MaxBeats:   0,
		},
		Watch: WatchConfig{
			Dir:        ".",
			Patterns:   []string{},
			DebounceMs: 100,
			QuitFile:   "",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// Interval returns the heartbeat period as a time.Duration
func (c *HeartbeatConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Debounce returns the watch debounce window as a time.Duration
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ResolveDir expands a leading ~ in the log directory.
func (c *LoggingConfig) ResolveDir() string {
	return expandHome(c.Dir)
}

// ResolveDir expands a leading ~ and makes the watch directory absolute.
func (c *WatchConfig) ResolveDir() string {
	path := expandHome(c.Dir)
	if path == "" {
		path = "."
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	applyDefaults(viper.GetViper())
}

// New returns an isolated viper instance with defaults registered and
// LOOPBRIDGE_* environment overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	applyDefaults(v)
	BindEnv(v)
	return v
}

// BindEnv enables environment overrides on v: bridge.workers is read from
// LOOPBRIDGE_BRIDGE_WORKERS.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func applyDefaults(v *viper.Viper) {
	defaults := Default()

	// Bridge defaults
	v.SetDefault("bridge.app", defaults.Bridge.App)
	v.SetDefault("bridge.workers", defaults.Bridge.Workers)
	v.SetDefault("bridge.requests_per_worker", defaults.Bridge.RequestsPerWorker)
	v.SetDefault("bridge.run_for", defaults.Bridge.RunFor)

	// Heartbeat defaults
	v.SetDefault("heartbeat.interval_ms", defaults.Heartbeat.IntervalMs)
	v.SetDefault("heartbeat.max_beats", defaults.Heartbeat.MaxBeats)

	// Watch defaults
	v.SetDefault("watch.dir", defaults.Watch.Dir)
	v.SetDefault("watch.patterns", defaults.Watch.Patterns)
	v.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
	v.SetDefault("watch.quit_file", defaults.Watch.QuitFile)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "loopbridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loopbridge"
	}
	return filepath.Join(home, ".config", "loopbridge")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
