package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/proxyrunner/internal/pipeline"
)

// RunCmd implements the default single-pass launch: flush the neighbor
// cache, configure the child environment, build and resolve the engine
// binary, and hand the terminal over to it.
type RunCmd struct {
	Args []string `arg:"" optional:"" passthrough:"" help:"Engine argument and build-mode flag, forwarded verbatim (e.g. engine.toml --release)."`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	logger := SetupLogging(cfg, root.Verbose)

	engineArg, buildMode := splitEngineArgs(r.Args, logger)

	// Signals cancel the preparation stages only. Once the engine is running
	// the launcher stops intercepting, and the terminal delivers interrupts
	// straight to the child.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipe := pipeline.New(cfg, pipeline.WithLogger(logger))
	report, err := pipe.Run(ctx, pipeline.Request{EngineArg: engineArg, BuildMode: buildMode})
	if report != nil && root.ReportDir != "" {
		if perr := report.Persist(root.ReportDir); perr != nil {
			logger.Warn("Failed to persist launch report", "dir", root.ReportDir, "error", perr)
		}
	}
	return err
}
