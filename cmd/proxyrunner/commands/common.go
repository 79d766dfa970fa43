package commands

import (
	"log/slog"
	"os"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	perrors "git.home.luguber.info/inful/proxyrunner/internal/errors"
	"github.com/alecthomas/kong"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"proxyrunner.yaml"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	ReportDir string           `name:"report-dir" help:"Directory to write launch reports into (launch-report.json and .txt)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run   RunCmd   `cmd:"" default:"withargs" help:"Flush the neighbor cache, build the engine, and launch it once"`
	Watch WatchCmd `cmd:"" help:"Rebuild and relaunch the engine whenever its sources change"`
	Init  InitCmd  `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; set up a baseline logger before any
// command output. Commands refine the level and format once the
// configuration has been loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// LoadConfig reads the effective configuration for a command. A missing file
// falls back to the built-in defaults inside config.Load; anything else is a
// configuration error.
func LoadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, perrors.ConfigInvalid(err.Error(), err)
	}
	return cfg, nil
}

// SetupLogging replaces the baseline logger with one built from the merged
// configuration. The verbose flag wins over the configured level.
func SetupLogging(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.Logging.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// splitEngineArgs maps the raw positionals onto the launch surface: the
// first goes to the engine verbatim, the second to the build invocation.
// Anything further is ignored with a notice rather than rejected.
func splitEngineArgs(args []string, logger *slog.Logger) (engineArg, buildMode string) {
	if len(args) > 0 {
		engineArg = args[0]
	}
	if len(args) > 1 {
		buildMode = args[1]
	}
	if len(args) > 2 {
		logger.Debug("Ignoring extra positional arguments", "args", args[2:])
	}
	return engineArg, buildMode
}
