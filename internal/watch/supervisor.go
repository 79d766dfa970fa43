package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	"git.home.luguber.info/inful/proxyrunner/internal/launch"
	"git.home.luguber.info/inful/proxyrunner/internal/logfields"
	"git.home.luguber.info/inful/proxyrunner/internal/metrics"
	"git.home.luguber.info/inful/proxyrunner/internal/pipeline"
)

// Relaunch trigger reasons.
const (
	ReasonInitial      = "initial"
	ReasonSourceChange = "source_change"
	ReasonSchedule     = "schedule"
)

// handleRunner adapts the process-group SupervisedRunner to the blocking
// launch.Runner contract the pipeline expects, while keeping the live handle
// reachable so the supervisor can stop the child mid-run.
type handleRunner struct {
	runner *launch.SupervisedRunner

	mu     sync.Mutex
	handle *launch.Handle
}

func (a *handleRunner) Run(ctx context.Context, spec launch.Spec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := a.runner.Start(spec)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.handle = nil
		a.mu.Unlock()
	}()
	return h.Wait()
}

// stop terminates the currently running child, if any, and waits for it.
func (a *handleRunner) stop(ctx context.Context) {
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h != nil {
		_ = h.Stop(ctx)
	}
}

// Supervisor owns the engine lifecycle in watch mode: triggers arrive from
// the watcher, the scheduler, or startup; each one stops the running child
// and runs a fresh launch cycle through the unchanged pipeline.
type Supervisor struct {
	pipe      *pipeline.Pipeline
	adapter   *handleRunner
	recorder  metrics.Recorder
	logger    *slog.Logger
	reportDir string
	grace     time.Duration
	req       pipeline.Request

	cycles chan string

	mu   sync.Mutex
	last *pipeline.LaunchReport
}

// NewSupervisor builds the supervisor and its pipeline. EngineArg and
// buildMode carry the CLI positionals into every cycle.
func NewSupervisor(cfg *config.Config, engineArg, buildMode string, recorder metrics.Recorder, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	adapter := &handleRunner{
		runner: launch.NewSupervisedRunner(cfg.Launch.Command, cfg.Launch.GraceDuration(), logger),
	}
	return &Supervisor{
		pipe: pipeline.New(cfg,
			pipeline.WithRunner(adapter),
			pipeline.WithRecorder(recorder),
			pipeline.WithLogger(logger)),
		adapter:   adapter,
		recorder:  recorder,
		logger:    logger,
		reportDir: cfg.Watch.ReportDir,
		grace:     cfg.Launch.GraceDuration(),
		req:       pipeline.Request{EngineArg: engineArg, BuildMode: buildMode},
		cycles:    make(chan string, 1),
	}
}

// RequestCycle asks for a relaunch. When one is already pending the trigger
// is dropped; the pending cycle will pick up the same sources anyway.
func (s *Supervisor) RequestCycle(reason string) {
	select {
	case s.cycles <- reason:
	default:
		s.logger.Debug("Relaunch already pending, dropping trigger", logfields.Reason(reason))
	}
}

// Last returns the most recent completed launch report, nil before the first
// cycle finishes.
func (s *Supervisor) Last() *pipeline.LaunchReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run processes cycles until the context is canceled. The initial launch is
// queued automatically. Always stops the child before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	s.RequestCycle(ReasonInitial)
	for {
		var reason string
		select {
		case <-ctx.Done():
			return nil
		case reason = <-s.cycles:
		}

		cycleDone := make(chan struct{})
		go func() {
			defer close(cycleDone)
			s.runCycle(ctx, reason)
		}()

		select {
		case <-ctx.Done():
			s.stopChild()
			<-cycleDone
			return nil
		case next := <-s.cycles:
			s.stopChild()
			<-cycleDone
			// Requeue so the outer loop starts the next cycle; the
			// channel was just drained so this cannot drop.
			s.RequestCycle(next)
		case <-cycleDone:
		}
	}
}

func (s *Supervisor) runCycle(ctx context.Context, reason string) {
	s.recorder.IncRelaunch(reason)
	req := s.req
	req.Trigger = reason

	report, err := s.pipe.Run(ctx, req)
	if err != nil {
		if code, ok := launch.IsExitError(err); ok {
			s.logger.Warn("Engine exited", logfields.ExitCode(code), logfields.Reason(reason))
		} else {
			s.logger.Error("Launch cycle failed", logfields.Error(err), logfields.Reason(reason))
		}
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if s.reportDir != "" {
		if perr := report.Persist(s.reportDir); perr != nil {
			s.logger.Warn("Report persist failed", logfields.Error(perr))
		}
	}
}

// stopChild tears down the running engine with the configured grace period.
// Bounded independently of the daemon context, which may already be closed
// during shutdown.
func (s *Supervisor) stopChild() {
	stopCtx, cancel := context.WithTimeout(context.Background(), s.grace+5*time.Second)
	defer cancel()
	s.adapter.stop(stopCtx)
}
