package runenv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
)

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan()

	require.Equal(t, BacktraceOn, plan.Backtrace)
	require.Len(t, plan.Levels, 3)
	for _, s := range []Subsystem{SubsystemEngine, SubsystemLibrary, SubsystemFramework} {
		require.Equal(t, LevelInfo, plan.Levels[s], "subsystem %s", s)
	}
}

func TestLogFilterDeterministic(t *testing.T) {
	plan := DefaultPlan()

	// Sorted by subsystem name, stable across invocations.
	want := "e2d2=info,proxy_engine=info,proxyengine=info"
	require.Equal(t, want, plan.LogFilter())
	require.Equal(t, want, plan.LogFilter())
}

func TestNewOverrides(t *testing.T) {
	plan, err := New(config.EnvConfig{
		Backtrace: "full",
		Log: map[string]string{
			"proxy_engine": "TRACE",
			"mycrate":      "debug",
		},
		Set: map[string]string{"ENGINE_CORES": "4"},
	})
	require.NoError(t, err)

	require.Equal(t, BacktraceFull, plan.Backtrace)
	require.Equal(t, LevelTrace, plan.Levels[SubsystemEngine])
	// Unmentioned subsystems keep their defaults.
	require.Equal(t, LevelInfo, plan.Levels[SubsystemFramework])
	// Arbitrary extra subsystems flow into the filter.
	require.Equal(t, LevelDebug, plan.Levels[Subsystem("mycrate")])
	require.Contains(t, plan.LogFilter(), "mycrate=debug")
	require.Equal(t, "4", plan.Extra["ENGINE_CORES"])
}

func TestNewRejectsBadValues(t *testing.T) {
	_, err := New(config.EnvConfig{Backtrace: "sometimes"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "env.backtrace")

	_, err = New(config.EnvConfig{Log: map[string]string{"e2d2": "loud"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "env.log.e2d2")

	_, err = New(config.EnvConfig{Set: map[string]string{EnvLogFilter: "everything"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "managed")
}

func TestNewDotenvMerge(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "engine.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HUGEPAGES=512\nENGINE_CORES=2\n"), 0o644))

	plan, err := New(config.EnvConfig{
		Files: []string{envFile},
		Set:   map[string]string{"ENGINE_CORES": "8"},
	})
	require.NoError(t, err)

	require.Equal(t, "512", plan.Extra["HUGEPAGES"])
	// Explicit set entries win over file entries.
	require.Equal(t, "8", plan.Extra["ENGINE_CORES"])

	// The launcher's own environment stays untouched.
	require.Empty(t, os.Getenv("HUGEPAGES"))

	_, err = New(config.EnvConfig{Files: []string{filepath.Join(dir, "missing.env")}})
	require.Error(t, err)
}

func TestVariablesBacktraceRendering(t *testing.T) {
	plan := DefaultPlan()

	plan.Backtrace = BacktraceOff
	_, present := plan.Variables()[EnvBacktrace]
	require.False(t, present, "off must leave the variable absent")

	plan.Backtrace = BacktraceOn
	require.Equal(t, "1", plan.Variables()[EnvBacktrace])

	plan.Backtrace = BacktraceFull
	require.Equal(t, "full", plan.Variables()[EnvBacktrace])
}

func TestEnviron(t *testing.T) {
	plan := DefaultPlan()
	plan.Extra["ENGINE_CORES"] = "4"

	base := []string{
		"PATH=/usr/bin",
		"RUST_LOG=stale_filter",
		"RUST_BACKTRACE=stale",
		"ENGINE_CORES=1",
		"HOME=/root",
	}
	env := plan.Environ(base)

	joined := strings.Join(env, "\n")
	require.Contains(t, joined, "PATH=/usr/bin")
	require.Contains(t, joined, "HOME=/root")
	require.Contains(t, joined, "RUST_BACKTRACE=1")
	require.Contains(t, joined, "RUST_LOG=e2d2=info,proxy_engine=info,proxyengine=info")
	require.Contains(t, joined, "ENGINE_CORES=4")
	require.NotContains(t, joined, "stale")

	// Each owned key appears exactly once.
	for _, key := range []string{"RUST_BACKTRACE=", "RUST_LOG=", "ENGINE_CORES="} {
		require.Equal(t, 1, strings.Count(joined, key), "key %s", key)
	}
}

func TestEnvironOffStripsStaleBacktrace(t *testing.T) {
	plan := DefaultPlan()
	plan.Backtrace = BacktraceOff

	env := plan.Environ([]string{"RUST_BACKTRACE=1", "PATH=/usr/bin"})
	for _, kv := range env {
		require.False(t, strings.HasPrefix(kv, "RUST_BACKTRACE="), "stale backtrace entry must not survive: %v", env)
	}
}
