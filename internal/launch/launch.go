// Package launch executes the resolved engine binary with elevated
// privileges. The engine drives raw network interfaces, so it runs under an
// elevation command with the environment preserved; the launcher's job is to
// get out of the way (inherited stdio, no signal interception) and to report
// the child's exit code faithfully.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/proxyrunner/internal/artifact"
)

// ExitError carries a child's non-zero exit code to the CLI boundary, where
// it becomes the launcher's own exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("engine exited with code %d", e.Code)
}

// IsExitError extracts a child exit code from an error chain.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Spec describes one launch of the engine binary.
type Spec struct {
	BinaryPath string
	Arg        string   // single positional argument, omitted when empty
	Env        []string // complete environment, already merged
}

// Runner executes the engine until it exits.
type Runner interface {
	Run(ctx context.Context, spec Spec) error
}

// ElevatedRunner wraps the binary in an elevation command
// (`sudo -E -- <binary> [arg]`) and waits for it in the foreground.
type ElevatedRunner struct {
	command string
	logger  *slog.Logger
}

// NewElevatedRunner builds a runner around the given elevation command.
func NewElevatedRunner(command string, logger *slog.Logger) *ElevatedRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevatedRunner{command: command, logger: logger}
}

// Run validates the artifact, then executes it elevated with stdio inherited.
// The context gates the start only: once the child is running the launcher
// ignores SIGINT/SIGTERM so terminal interrupts reach the child through the
// foreground process group, and the launcher survives to report the child's
// status. The child is deliberately not detached into its own session here.
func (r *ElevatedRunner) Run(ctx context.Context, spec Spec) error {
	if err := artifact.Validate(spec.BinaryPath); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := elevationArgs(spec)
	r.logger.Debug("launching engine",
		"command", r.command,
		"binary", spec.BinaryPath,
		"arg", spec.Arg)

	cmd := exec.Command(r.command, args...)
	cmd.Env = spec.Env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.command, err)
	}

	signal.Ignore(syscall.SIGINT, syscall.SIGTERM)
	defer signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitCode(exitErr)}
	}
	return fmt.Errorf("waiting for %s: %w", r.command, err)
}

// elevationArgs renders the argv after the elevation command: environment
// preserved, option parsing terminated, exactly one forwarded argument.
func elevationArgs(spec Spec) []string {
	args := []string{"-E", "--", spec.BinaryPath}
	if spec.Arg != "" {
		args = append(args, spec.Arg)
	}
	return args
}

// exitCode maps a wait result onto the shell convention: the literal code
// for a normal exit, 128+signal when the child died on a signal.
func exitCode(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return err.ExitCode()
}
