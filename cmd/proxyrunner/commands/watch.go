package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/proxyrunner/internal/watch"
)

// WatchCmd implements the 'watch' command: a daemon that reruns the launch
// pipeline whenever the engine sources change, stopping the previous child
// first.
type WatchCmd struct {
	Args []string `arg:"" optional:"" passthrough:"" help:"Engine argument and build-mode flag, forwarded verbatim to every launch cycle."`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	logger := SetupLogging(cfg, root.Verbose)

	// The CLI flag wins over the configured report directory.
	if root.ReportDir != "" {
		cfg.Watch.ReportDir = root.ReportDir
	}

	engineArg, buildMode := splitEngineArgs(w.Args, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := watch.NewDaemon(cfg, engineArg, buildMode, logger)
	if err != nil {
		return fmt.Errorf("failed to create watch daemon: %w", err)
	}

	logger.Info("Watch mode started, waiting for shutdown signal",
		"paths", cfg.Watch.Paths,
		"http_addr", cfg.Watch.HTTPAddr)
	return d.Run(ctx)
}
