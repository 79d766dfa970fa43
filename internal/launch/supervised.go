package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"git.home.luguber.info/inful/proxyrunner/internal/artifact"
)

// SupervisedRunner starts the engine for watch mode: the child gets its own
// process group so the supervisor can stop the whole elevated tree between
// relaunches without signaling itself.
type SupervisedRunner struct {
	command string
	grace   time.Duration
	logger  *slog.Logger
}

// NewSupervisedRunner builds a runner with the given elevation command and
// stop grace period.
func NewSupervisedRunner(command string, grace time.Duration, logger *slog.Logger) *SupervisedRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SupervisedRunner{command: command, grace: grace, logger: logger}
}

// Handle tracks one running child.
type Handle struct {
	cmd    *exec.Cmd
	pgid   int
	grace  time.Duration
	logger *slog.Logger
	done   chan struct{}
	err    error
}

// Start validates the artifact and launches it detached into its own process
// group. Stdio stays inherited so engine output lands on the daemon's
// terminal.
func (r *SupervisedRunner) Start(spec Spec) (*Handle, error) {
	if err := artifact.Validate(spec.BinaryPath); err != nil {
		return nil, err
	}

	cmd := exec.Command(r.command, elevationArgs(spec)...)
	cmd.Env = spec.Env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.command, err)
	}

	h := &Handle{
		cmd:    cmd,
		pgid:   cmd.Process.Pid,
		grace:  r.grace,
		logger: r.logger,
		done:   make(chan struct{}),
	}
	r.logger.Debug("engine started", "pid", cmd.Process.Pid)

	go func() {
		defer close(h.done)
		err := cmd.Wait()
		if err == nil {
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.err = &ExitError{Code: exitCode(exitErr)}
			return
		}
		h.err = err
	}()
	return h, nil
}

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the child exits and returns its status, ExitError for a
// non-zero code.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Stop terminates the child's process group: SIGTERM first, SIGKILL once the
// grace period runs out. The elevation command relays the TERM to the engine
// so a well-behaved child gets its shutdown window. Returns the child's exit
// status.
func (h *Handle) Stop(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	default:
	}

	h.logger.Debug("stopping engine", "pid", h.cmd.Process.Pid, "grace", h.grace)
	_ = syscall.Kill(-h.pgid, syscall.SIGTERM)

	graceTimer := time.NewTimer(h.grace)
	defer graceTimer.Stop()
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
	case <-graceTimer.C:
		h.logger.Warn("engine ignored SIGTERM, killing process group", "pid", h.cmd.Process.Pid)
	}

	_ = syscall.Kill(-h.pgid, syscall.SIGKILL)
	<-h.done
	return h.err
}
