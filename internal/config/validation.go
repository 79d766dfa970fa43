package config

import (
	"errors"
	"fmt"
	"time"
)

// validateConfig checks the loaded configuration after defaults have been
// applied. Env section semantics (backtrace modes, subsystem levels) are
// validated by the env planner, which owns their meaning.
func validateConfig(cfg *Config) error {
	if cfg.Target.Name == "" {
		return errors.New("target.name cannot be empty")
	}
	if cfg.Build.Command == "" {
		return errors.New("build.command cannot be empty")
	}
	if cfg.Flush.Command == "" {
		return errors.New("flush.command cannot be empty")
	}
	if cfg.Launch.Command == "" {
		return errors.New("launch.command cannot be empty")
	}

	if err := validateDuration("build.timeout", cfg.Build.Timeout); err != nil {
		return err
	}
	if err := validateDuration("launch.grace_period", cfg.Launch.GracePeriod); err != nil {
		return err
	}
	if err := validateDuration("watch.debounce", cfg.Watch.Debounce); err != nil {
		return err
	}
	if err := validateDuration("watch.max_delay", cfg.Watch.MaxDelay); err != nil {
		return err
	}
	if cfg.Watch.Interval != "" {
		d, err := time.ParseDuration(cfg.Watch.Interval)
		if err != nil {
			return fmt.Errorf("invalid watch.interval %q: %w", cfg.Watch.Interval, err)
		}
		if d < 0 {
			return fmt.Errorf("watch.interval cannot be negative: %s", cfg.Watch.Interval)
		}
	}

	return nil
}

func validateDuration(field, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive: %s", field, raw)
	}
	return nil
}
