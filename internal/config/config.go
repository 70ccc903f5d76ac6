package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkerBinary configures how one supervised worker's executable is found.
type WorkerBinary struct {
	// Path overrides resolution entirely when set.
	Path string `yaml:"path"`
	// PreferSidecar tries the bundled binary next to the shell first.
	PreferSidecar bool `yaml:"prefer_sidecar"`
}

// ControlConfig configures the loopback API the desktop UI talks to.
type ControlConfig struct {
	BindAddr string `yaml:"bind_addr"`
	// Token secures the control API. Generated on first load when empty.
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

// TracingConfig selects the span exporter: "none", "stdout" or "otlp".
type TracingConfig struct {
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// BindHost is the host the engine process binds its API to.
	BindHost string `yaml:"bind_host"`
	// Auth enables per-session engine credentials.
	Auth bool `yaml:"auth"`
	// PublicHost overrides the host used in externally reachable URLs.
	PublicHost string `yaml:"public_host"`
	// Dev widens the spawned workers' CORS allow-list with a wildcard.
	Dev      bool   `yaml:"dev"`
	LogLevel string `yaml:"log_level"`

	Engine WorkerBinary `yaml:"engine"`
	Hub    WorkerBinary `yaml:"hub"`
	Server WorkerBinary `yaml:"server"`
	Bot    WorkerBinary `yaml:"bot"`

	Control   ControlConfig   `yaml:"control"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

const configFileName = "config.yaml"

// HomeDir resolves the shell's data directory: OPENWORK_HOME, else
// ~/.openwork.
func HomeDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("OPENWORK_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".openwork"), nil
}

// Load reads config.yaml from the shell home (creating the directory if
// needed), applies defaults and environment overrides. A missing file is
// not an error; defaults apply.
func Load() (*Config, error) {
	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", homeDir, err)
	}

	cfg := defaults()
	cfg.HomeDir = homeDir

	path := filepath.Join(homeDir, configFileName)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// first run
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.HomeDir = homeDir
	applyEnvOverrides(cfg)
	fillDefaults(cfg)
	return cfg, nil
}

// Save writes the config back to <home>/config.yaml.
func (c *Config) Save() error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(c.HomeDir, configFileName)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Path returns the config file location.
func (c *Config) Path() string {
	return filepath.Join(c.HomeDir, configFileName)
}

func defaults() *Config {
	return &Config{
		BindHost: "0.0.0.0",
		Auth:     true,
		LogLevel: "info",
		Control: ControlConfig{
			BindAddr: "127.0.0.1:4096",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"tauri://localhost",
				"http://tauri.localhost",
			},
		},
		Scheduler: SchedulerConfig{Enabled: true, IntervalSeconds: 60},
		Tracing:   TracingConfig{Exporter: "none"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OPENWORK_OPENCODE_BIND_HOST")); v != "" {
		cfg.BindHost = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_OPENCODE_AUTH")); v != "" {
		cfg.Auth = v == "1" || strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_PUBLIC_HOST")); v != "" {
		cfg.PublicHost = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_DEV")); v != "" {
		cfg.Dev = v == "1" || strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_OPENCODE_PATH")); v != "" {
		cfg.Engine.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_OPENWRK_PATH")); v != "" {
		cfg.Hub.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_SERVER_PATH")); v != "" {
		cfg.Server.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_OWPENBOT_PATH")); v != "" {
		cfg.Bot.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_CONTROL_TOKEN")); v != "" {
		cfg.Control.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENWORK_CONTROL_ADDR")); v != "" {
		cfg.Control.BindAddr = v
	}
}

func fillDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.BindHost) == "" {
		cfg.BindHost = "0.0.0.0"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Control.BindAddr) == "" {
		cfg.Control.BindAddr = "127.0.0.1:4096"
	}
	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 60
	}
	if strings.TrimSpace(cfg.Tracing.Exporter) == "" {
		cfg.Tracing.Exporter = "none"
	}
}
