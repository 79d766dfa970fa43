package config

import (
	"strings"
	"time"
)

// Built-in defaults. Every knob has a zero-setup value so the launcher works
// from a bare checkout with no config file at all.
const (
	DefaultTargetName    = "proxy_engine"
	DefaultBuildCommand  = "cargo"
	DefaultBuildTimeout  = "10m"
	DefaultFlushCommand  = "ip"
	DefaultFlushScope    = "all"
	DefaultLaunchCommand = "sudo"
	DefaultGracePeriod   = "5s"
	DefaultWatchDebounce = "2s"
	DefaultWatchMaxDelay = "30s"
)

// applyDefaults fills unset fields after unmarshal. Env semantics (backtrace
// mode, per-subsystem levels) are deliberately not defaulted here; the env
// planner owns those and fills gaps itself.
func applyDefaults(cfg *Config) {
	if cfg.Target.Name == "" {
		cfg.Target.Name = DefaultTargetName
	}
	if cfg.Target.Dir == "" {
		cfg.Target.Dir = "."
	}

	if cfg.Build.Command == "" {
		cfg.Build.Command = DefaultBuildCommand
	}
	if cfg.Build.Timeout == "" {
		cfg.Build.Timeout = DefaultBuildTimeout
	}

	if cfg.Flush.Command == "" {
		cfg.Flush.Command = DefaultFlushCommand
	}
	if cfg.Flush.Scope == "" {
		cfg.Flush.Scope = DefaultFlushScope
	}

	if cfg.Launch.Command == "" {
		cfg.Launch.Command = DefaultLaunchCommand
	}
	if cfg.Launch.GracePeriod == "" {
		cfg.Launch.GracePeriod = DefaultGracePeriod
	}

	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{"src", "Cargo.toml"}
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".rs", ".toml"}
	}
	for i, ext := range cfg.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			cfg.Watch.Extensions[i] = "." + ext
		}
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
	if cfg.Watch.MaxDelay == "" {
		cfg.Watch.MaxDelay = DefaultWatchMaxDelay
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	} else {
		cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	} else {
		cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	}
}

// TimeoutDuration returns the parsed build timeout, falling back to the
// default when the string is unset or malformed.
func (b BuildConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(b.Timeout, DefaultBuildTimeout)
}

// GraceDuration returns the parsed stop grace period.
func (l LaunchConfig) GraceDuration() time.Duration {
	return parseDurationOr(l.GracePeriod, DefaultGracePeriod)
}

// DebounceDuration returns the parsed debounce quiet window.
func (w WatchConfig) DebounceDuration() time.Duration {
	return parseDurationOr(w.Debounce, DefaultWatchDebounce)
}

// MaxDelayDuration returns the parsed debounce deferral cap.
func (w WatchConfig) MaxDelayDuration() time.Duration {
	return parseDurationOr(w.MaxDelay, DefaultWatchMaxDelay)
}

// IntervalDuration returns the periodic relaunch interval; zero means the
// schedule is disabled.
func (w WatchConfig) IntervalDuration() time.Duration {
	if w.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(w.Interval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func parseDurationOr(raw, fallback string) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}
