// Package config loads and validates the launcher configuration.
//
// The file is optional: a missing config yields the built-in defaults so a
// checkout with zero setup still runs. The pipeline treats the loaded
// configuration as read-only input; only `proxyrunner init` ever writes it.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when -c is not given.
const DefaultPath = "proxyrunner.yaml"

// Config represents the launcher configuration.
type Config struct {
	Target  TargetConfig  `yaml:"target"`
	Build   BuildConfig   `yaml:"build,omitempty"`
	Flush   FlushConfig   `yaml:"flush,omitempty"`
	Env     EnvConfig     `yaml:"env,omitempty"`
	Launch  LaunchConfig  `yaml:"launch,omitempty"`
	Watch   WatchConfig   `yaml:"watch,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// TargetConfig names the engine artifact and where the toolchain runs.
type TargetConfig struct {
	Name string `yaml:"name"` // artifact name the resolver matches against
	Dir  string `yaml:"dir"`  // toolchain working directory
}

// BuildConfig controls the build invocation.
type BuildConfig struct {
	Command string `yaml:"command,omitempty"` // toolchain binary
	Mode    string `yaml:"mode,omitempty"`    // build-mode flag used when the CLI omits one (e.g. "--release")
	Timeout string `yaml:"timeout,omitempty"` // duration string, e.g. "10m"
}

// FlushConfig controls the neighbor cache flush preceding every run.
type FlushConfig struct {
	Command string `yaml:"command,omitempty"` // flush binary
	Scope   string `yaml:"scope,omitempty"`   // neighbor table scope
}

// EnvConfig declares the child-process environment. Nothing here touches the
// launcher's own environment; entries become variables on the build and
// launch subprocesses only.
type EnvConfig struct {
	Backtrace string            `yaml:"backtrace,omitempty"` // off|on|full
	Log       map[string]string `yaml:"log,omitempty"`       // subsystem -> verbosity level
	Files     []string          `yaml:"files,omitempty"`     // dotenv files merged into the plan
	Set       map[string]string `yaml:"set,omitempty"`       // explicit entries, win over files
}

// LaunchConfig controls execution of the resolved binary.
type LaunchConfig struct {
	Command     string `yaml:"command,omitempty"`      // elevation facility
	GracePeriod string `yaml:"grace_period,omitempty"` // watch mode: window between SIGTERM and SIGKILL
}

// WatchConfig controls the rebuild-and-relaunch daemon.
type WatchConfig struct {
	Paths      []string `yaml:"paths,omitempty"`      // files or directories to watch
	Extensions []string `yaml:"extensions,omitempty"` // file suffixes that count as source changes
	Debounce   string   `yaml:"debounce,omitempty"`   // quiet window after the last event
	MaxDelay   string   `yaml:"max_delay,omitempty"`  // hard cap on debounce deferral
	Interval   string   `yaml:"interval,omitempty"`   // >0 adds a periodic relaunch schedule
	HTTPAddr   string   `yaml:"http_addr,omitempty"`  // enables /metrics /healthz /status when set
	ReportDir  string   `yaml:"report_dir,omitempty"` // launch reports written here per cycle
}

// LoggingConfig controls the launcher's own log output (the child's
// verbosity is the env section's concern).
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Load reads the configuration from the specified file. A missing file is not
// an error: the built-in defaults apply.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Debug("configuration file not found, using defaults", "path", configPath)
		return Default(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Target: TargetConfig{
			Name: DefaultTargetName,
			Dir:  ".",
		},
		Build: BuildConfig{
			Command: DefaultBuildCommand,
			Timeout: DefaultBuildTimeout,
		},
		Flush: FlushConfig{
			Command: DefaultFlushCommand,
			Scope:   DefaultFlushScope,
		},
		Env: EnvConfig{
			Backtrace: "on",
			Log: map[string]string{
				"proxy_engine": "info",
				"proxyengine":  "info",
				"e2d2":         "info",
			},
		},
		Launch: LaunchConfig{
			Command:     DefaultLaunchCommand,
			GracePeriod: DefaultGracePeriod,
		},
		Watch: WatchConfig{
			Paths:      []string{"src", "Cargo.toml"},
			Extensions: []string{".rs", ".toml"},
			Debounce:   DefaultWatchDebounce,
			MaxDelay:   DefaultWatchMaxDelay,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
