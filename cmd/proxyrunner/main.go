package main

import (
	"log/slog"
	"os"

	"git.home.luguber.info/inful/proxyrunner/cmd/proxyrunner/commands"
	perrors "git.home.luguber.info/inful/proxyrunner/internal/errors"
	"git.home.luguber.info/inful/proxyrunner/internal/launch"
	"git.home.luguber.info/inful/proxyrunner/internal/version"
	"github.com/alecthomas/kong"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("proxyrunner"),
		kong.Description("Flush the host neighbor cache, build the packet engine, and launch it with elevated privileges."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := ctx.Run(&commands.Global{Logger: slog.Default()}, &cli)
	if err == nil {
		return
	}

	// The engine's own exit code passes through verbatim; everything else
	// maps onto the launcher's category exit codes.
	if code, ok := launch.IsExitError(err); ok {
		os.Exit(code)
	}
	perrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
