// Package runenv computes the child-process environment for the engine.
//
// The launcher never mutates its own process environment. Everything the
// engine needs (backtrace switch, per-subsystem log verbosity, extra
// variables) is collected into an explicit Plan, and the plan is rendered
// into environ form only at the subprocess boundary. The same rendered
// environment is handed to both the build toolchain and the elevated child,
// so what the build saw is exactly what the engine runs under.
package runenv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	"git.home.luguber.info/inful/proxyrunner/internal/normalize"
)

// Variable names owned by the plan. User-supplied entries may not collide
// with these; the backtrace and log sections are their single source.
const (
	EnvBacktrace = "RUST_BACKTRACE"
	EnvLogFilter = "RUST_LOG"
)

// BacktraceMode controls the engine's crash backtrace output.
type BacktraceMode string

const (
	BacktraceOff  BacktraceMode = "off"
	BacktraceOn   BacktraceMode = "on"
	BacktraceFull BacktraceMode = "full"
)

var backtraceNormalizer = normalize.New(map[string]BacktraceMode{
	"off":  BacktraceOff,
	"0":    BacktraceOff,
	"on":   BacktraceOn,
	"1":    BacktraceOn,
	"full": BacktraceFull,
}, BacktraceOn)

// Subsystem identifies a log producer inside the launched engine.
type Subsystem string

// The three producers every run configures. Arbitrary additional subsystems
// from the config are carried through untouched; the filter syntax accepts
// any crate name.
const (
	SubsystemEngine    Subsystem = "proxy_engine" // engine binary
	SubsystemLibrary   Subsystem = "proxyengine"  // engine library
	SubsystemFramework Subsystem = "e2d2"         // packet framework
)

func defaultSubsystems() []Subsystem {
	return []Subsystem{SubsystemEngine, SubsystemLibrary, SubsystemFramework}
}

// Level is a per-subsystem verbosity level.
type Level string

const (
	LevelOff   Level = "off"
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelTrace Level = "trace"
)

var levelNormalizer = normalize.New(map[string]Level{
	"off":   LevelOff,
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelTrace,
}, LevelInfo)

// Plan is the fully resolved child environment: one value per knob, no
// implicit process state.
type Plan struct {
	Backtrace BacktraceMode
	Levels    map[Subsystem]Level
	Extra     map[string]string
}

// DefaultPlan returns the zero-config plan: backtraces on, every known
// subsystem at info.
func DefaultPlan() *Plan {
	levels := make(map[Subsystem]Level, 3)
	for _, s := range defaultSubsystems() {
		levels[s] = LevelInfo
	}
	return &Plan{
		Backtrace: BacktraceOn,
		Levels:    levels,
		Extra:     map[string]string{},
	}
}

// New builds a plan from the env config section. Unknown backtrace modes and
// levels are rejected rather than guessed; dotenv files listed in the config
// are read (never applied to the launcher's own environment) and merged under
// the explicit set entries.
func New(cfg config.EnvConfig) (*Plan, error) {
	plan := DefaultPlan()

	if cfg.Backtrace != "" {
		mode, err := backtraceNormalizer.NormalizeStrict(cfg.Backtrace)
		if err != nil {
			return nil, fmt.Errorf("env.backtrace: %w", err)
		}
		plan.Backtrace = mode
	}

	for name, raw := range cfg.Log {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("env.log: subsystem name cannot be empty")
		}
		level, err := levelNormalizer.NormalizeStrict(raw)
		if err != nil {
			return nil, fmt.Errorf("env.log.%s: %w", name, err)
		}
		plan.Levels[Subsystem(name)] = level
	}

	if len(cfg.Files) > 0 {
		fileVars, err := godotenv.Read(cfg.Files...)
		if err != nil {
			return nil, fmt.Errorf("env.files: %w", err)
		}
		for k, v := range fileVars {
			plan.Extra[k] = v
		}
	}
	for k, v := range cfg.Set {
		plan.Extra[k] = v
	}

	for k := range plan.Extra {
		if k == EnvBacktrace || k == EnvLogFilter {
			return nil, fmt.Errorf("env entry %s is managed by the backtrace/log sections", k)
		}
	}

	return plan, nil
}

// LogFilter renders the per-subsystem levels as a single filter expression,
// subsystems sorted so the value is stable across runs.
func (p *Plan) LogFilter() string {
	names := make([]string, 0, len(p.Levels))
	for s := range p.Levels {
		names = append(names, string(s))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+string(p.Levels[Subsystem(name)]))
	}
	return strings.Join(parts, ",")
}

// Variables returns the plan as a map. Backtrace off means the variable is
// absent entirely, not set to a disabling value.
func (p *Plan) Variables() map[string]string {
	vars := make(map[string]string, len(p.Extra)+2)
	for k, v := range p.Extra {
		vars[k] = v
	}
	switch p.Backtrace {
	case BacktraceOn:
		vars[EnvBacktrace] = "1"
	case BacktraceFull:
		vars[EnvBacktrace] = "full"
	}
	if len(p.Levels) > 0 {
		vars[EnvLogFilter] = p.LogFilter()
	}
	return vars
}

// Environ merges the plan over a base environment (usually os.Environ()).
// Base entries for plan-owned keys are dropped first so each variable appears
// exactly once; plan entries are appended in sorted order.
func (p *Plan) Environ(base []string) []string {
	vars := p.Variables()

	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, owned := vars[key]; owned {
			continue
		}
		if key == EnvBacktrace || key == EnvLogFilter {
			// Plan owns these even when it leaves them unset (backtrace off).
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}
