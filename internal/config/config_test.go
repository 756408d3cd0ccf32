package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if cfg.Bridge.App != "heartbeat" {
		t.Errorf("Bridge.App = %q, want %q", cfg.Bridge.App, "heartbeat")
	}
	if cfg.Bridge.Workers != 3 {
		t.Errorf("Bridge.Workers = %d, want 3", cfg.Bridge.Workers)
	}
	if cfg.Bridge.RunFor != 5*time.Second {
		t.Errorf("Bridge.RunFor = %v, want 5s", cfg.Bridge.RunFor)
	}
	if cfg.Heartbeat.IntervalMs != 250 {
		t.Errorf("Heartbeat.IntervalMs = %d, want 250", cfg.Heartbeat.IntervalMs)
	}
	if cfg.Watch.DebounceMs != 100 {
		t.Errorf("Watch.DebounceMs = %d, want 100", cfg.Watch.DebounceMs)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Compress {
		t.Error("Logging.Compress should be false by default")
	}
}

func TestDurations(t *testing.T) {
	hb := HeartbeatConfig{IntervalMs: 40}
	if got := hb.Interval(); got != 40*time.Millisecond {
		t.Errorf("Interval() = %v, want 40ms", got)
	}
	w := WatchConfig{DebounceMs: 0}
	if got := w.Debounce(); got != 0 {
		t.Errorf("Debounce() = %v, want 0", got)
	}
}

func TestResolveDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	l := LoggingConfig{Dir: "~/logs"}
	if got, want := l.ResolveDir(), filepath.Join(home, "logs"); got != want {
		t.Errorf("LoggingConfig.ResolveDir() = %q, want %q", got, want)
	}
	l = LoggingConfig{}
	if got := l.ResolveDir(); got != "" {
		t.Errorf("empty log dir resolved to %q", got)
	}

	w := WatchConfig{}
	if got := w.ResolveDir(); !filepath.IsAbs(got) {
		t.Errorf("WatchConfig.ResolveDir() = %q, want absolute path", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got, want := ConfigDir(), "/custom/config/loopbridge"; got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
		if got, want := ConfigFile(), "/custom/config/loopbridge/config.yaml"; got != want {
			t.Errorf("ConfigFile() = %q, want %q", got, want)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "loopbridge"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestGet(t *testing.T) {
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Bridge.App != "heartbeat" {
		t.Errorf("Get().Bridge.App = %q, want %q", cfg.Bridge.App, "heartbeat")
	}
}

func TestLoadFrom_YAML(t *testing.T) {
	v := New()
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
bridge:
  app: watch
  workers: 8
  run_for: 1500ms
watch:
  patterns: ["*.go", "go.mod"]
  quit_file: STOP
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Bridge.App != "watch" || cfg.Bridge.Workers != 8 {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.Bridge.RunFor != 1500*time.Millisecond {
		t.Errorf("RunFor = %v, want 1.5s", cfg.Bridge.RunFor)
	}
	if cfg.Bridge.RequestsPerWorker != 10 {
		t.Errorf("RequestsPerWorker = %d, want default 10", cfg.Bridge.RequestsPerWorker)
	}
	if len(cfg.Watch.Patterns) != 2 || cfg.Watch.QuitFile != "STOP" {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	t.Setenv("LOOPBRIDGE_BRIDGE_WORKERS", "12")
	t.Setenv("LOOPBRIDGE_HEARTBEAT_MAX_BEATS", "4")

	cfg, err := LoadFrom(New())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Bridge.Workers != 12 {
		t.Errorf("Workers = %d, want 12", cfg.Bridge.Workers)
	}
	if cfg.Heartbeat.MaxBeats != 4 {
		t.Errorf("MaxBeats = %d, want 4", cfg.Heartbeat.MaxBeats)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	v := New()
	v.Set("bridge.workers", -1)
	v.Set("logging.level", "loud")

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("expected validation error")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
	}
}
