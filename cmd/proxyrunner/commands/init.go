package commands

import (
	"fmt"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	perrors "git.home.luguber.info/inful/proxyrunner/internal/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	// User-facing messages go to stdout; the structured log stays on stderr.
	fmt.Printf("Writing configuration to %s\n", root.Config)
	if err := config.Init(root.Config, i.Force); err != nil {
		return perrors.ConfigInvalid(err.Error(), err)
	}
	fmt.Println("initialized successfully")
	return nil
}
