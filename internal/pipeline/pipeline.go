// Package pipeline orchestrates the four launch stages: flush the neighbor
// cache, configure the child environment, resolve the engine binary from the
// build toolchain, and execute it elevated. Stages run strictly in order and
// the first failure aborts the run; the cache flush is never undone.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/proxyrunner/internal/artifact"
	"git.home.luguber.info/inful/proxyrunner/internal/cargo"
	"git.home.luguber.info/inful/proxyrunner/internal/config"
	perrors "git.home.luguber.info/inful/proxyrunner/internal/errors"
	"git.home.luguber.info/inful/proxyrunner/internal/gitmeta"
	"git.home.luguber.info/inful/proxyrunner/internal/launch"
	"git.home.luguber.info/inful/proxyrunner/internal/logfields"
	"git.home.luguber.info/inful/proxyrunner/internal/metrics"
	"git.home.luguber.info/inful/proxyrunner/internal/neighbor"
	"git.home.luguber.info/inful/proxyrunner/internal/runenv"
)

// Request describes one launch attempt.
type Request struct {
	EngineArg string // forwarded verbatim to the engine; may be empty
	BuildMode string // second positional, overrides config build.mode
	Trigger   string // run | initial | source_change | schedule
}

// Pipeline wires the stage implementations together. The zero value is not
// usable; construct with New.
type Pipeline struct {
	cfg      *config.Config
	flusher  neighbor.Flusher
	builder  cargo.Builder
	runner   launch.Runner
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures pipeline construction.
type Option func(*Pipeline)

// WithFlusher replaces the neighbor-cache flusher.
func WithFlusher(f neighbor.Flusher) Option {
	return func(p *Pipeline) { p.flusher = f }
}

// WithBuilder replaces the build toolchain invoker.
func WithBuilder(b cargo.Builder) Option {
	return func(p *Pipeline) { p.builder = b }
}

// WithRunner replaces the privileged launcher.
func WithRunner(r launch.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline from configuration. Stage implementations default to
// the real tool invokers and can be substituted through options.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.flusher == nil {
		p.flusher = neighbor.NewIPFlusher(cfg.Flush.Command, cfg.Flush.Scope, p.logger)
	}
	if p.builder == nil {
		p.builder = cargo.NewBinaryBuilder(cfg.Build.Command, p.logger)
	}
	if p.runner == nil {
		p.runner = launch.NewElevatedRunner(cfg.Launch.Command, p.logger)
	}
	return p
}

// runState carries per-run data between stages.
type runState struct {
	req     Request
	report  *LaunchReport
	plan    *runenv.Plan
	environ []string
	binary  string
}

// Run executes one launch attempt and always returns a report, also on
// failure. The returned error is the stage error that aborted the run, or
// the child's ExitError when the engine itself exited non-zero.
func (p *Pipeline) Run(ctx context.Context, req Request) (*LaunchReport, error) {
	if req.Trigger == "" {
		req.Trigger = "run"
	}
	if req.BuildMode == "" {
		req.BuildMode = p.cfg.Build.Mode
	}
	rs := &runState{
		req:    req,
		report: newLaunchReport(req.Trigger, p.cfg.Target.Name, req.BuildMode, req.EngineArg),
	}
	p.stampSource(rs)

	p.logger.Info("Launch starting",
		logfields.RunID(rs.report.RunID),
		logfields.Target(p.cfg.Target.Name),
		logfields.BuildMode(req.BuildMode),
		logfields.Reason(req.Trigger))

	stages := []StageDef{
		{Name: StageFlushCache, Fn: p.stageFlush},
		{Name: StageConfigureEnv, Fn: p.stageConfigureEnv},
		{Name: StageResolveBinary, Fn: p.stageResolve},
		{Name: StageLaunchEngine, Fn: p.stageLaunch},
	}

	err := p.runStages(ctx, rs, stages)
	if err != nil {
		rs.report.fail(err)
	}
	rs.report.finish()
	rs.report.deriveOutcome()
	p.recorder.ObserveRunDuration(rs.report.End.Sub(rs.report.Start))
	if rs.report.Outcome == OutcomeSuccess {
		p.recorder.IncRunOutcome(metrics.OutcomeSuccess)
	} else {
		p.recorder.IncRunOutcome(metrics.OutcomeFailure)
	}

	p.logger.Info("Launch finished",
		logfields.RunID(rs.report.RunID),
		logfields.State(string(rs.report.CurrentState())),
		slog.String("outcome", string(rs.report.Outcome)),
		logfields.DurationMS(float64(rs.report.End.Sub(rs.report.Start).Milliseconds())))
	return rs.report, err
}

// runStages executes stages in order, recording timing and stopping on the
// first error.
func (p *Pipeline) runStages(ctx context.Context, rs *runState, stages []StageDef) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			p.recorder.IncStageResult(string(st.Name), metrics.ResultCanceled)
			return fmt.Errorf("stage %s canceled: %w", st.Name, ctx.Err())
		default:
		}
		t0 := time.Now()
		err := st.Fn(ctx, rs)
		dur := time.Since(t0)
		rs.report.StageDurations[string(st.Name)] = dur
		p.recorder.ObserveStageDuration(string(st.Name), dur)
		if err != nil {
			result := metrics.ResultFailure
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result = metrics.ResultCanceled
			}
			p.recorder.IncStageResult(string(st.Name), result)
			p.logger.Error("Stage failed",
				logfields.Stage(string(st.Name)),
				logfields.DurationMS(float64(dur.Milliseconds())),
				logfields.Error(err))
			return err
		}
		p.recorder.IncStageResult(string(st.Name), metrics.ResultSuccess)
		p.logger.Debug("Stage completed",
			logfields.Stage(string(st.Name)),
			logfields.State(string(rs.report.CurrentState())),
			logfields.DurationMS(float64(dur.Milliseconds())))
	}
	return nil
}

// stampSource records the engine checkout revision on the report when the
// target directory is inside a repository.
func (p *Pipeline) stampSource(rs *runState) {
	stamp, err := gitmeta.Describe(p.cfg.Target.Dir)
	if err != nil {
		if errors.Is(err, gitmeta.ErrNotRepository) {
			p.logger.Debug("Target directory is not a repository, no source stamp")
		} else {
			p.logger.Warn("Source stamp unavailable", logfields.Error(err))
		}
		return
	}
	rs.report.Source = &stamp
	p.logger.Debug("Source stamped", logfields.Commit(stamp.ShortCommit()), logfields.Branch(stamp.Branch))
}

func (p *Pipeline) stageFlush(ctx context.Context, rs *runState) error {
	if err := p.flusher.Flush(ctx); err != nil {
		return perrors.NeighborFlushFailed(err)
	}
	rs.report.transition(StateCacheFlushed)
	return nil
}

func (p *Pipeline) stageConfigureEnv(ctx context.Context, rs *runState) error {
	plan, err := runenv.New(p.cfg.Env)
	if err != nil {
		return perrors.EnvPlanFailed(err)
	}
	rs.plan = plan
	rs.environ = plan.Environ(os.Environ())
	rs.report.transition(StateEnvConfigured)
	p.logger.Debug("Environment configured",
		slog.String("rust_log", plan.LogFilter()),
		slog.String("backtrace", string(plan.Backtrace)))
	return nil
}

func (p *Pipeline) stageResolve(ctx context.Context, rs *runState) error {
	art, err := p.builder.Build(ctx, cargo.Request{
		TargetName: p.cfg.Target.Name,
		Dir:        p.cfg.Target.Dir,
		Mode:       rs.req.BuildMode,
		Env:        rs.environ,
		Timeout:    p.cfg.Build.TimeoutDuration(),
	})
	if err != nil {
		if errors.Is(err, cargo.ErrBuildFailed) {
			return perrors.BuildFailed(err)
		}
		return perrors.ResolveFailed(p.cfg.Target.Name, err)
	}
	rs.binary = art.Path
	rs.report.Artifact = art.Path
	// Digest is informational; a vanished artifact surfaces as a launch
	// failure with the OS error, not here.
	if digest, derr := artifact.Digest(art.Path); derr == nil {
		rs.report.ArtifactDigest = digest
		p.logger.Info("Artifact resolved", logfields.Artifact(art.Path), logfields.Digest(digest))
	} else {
		p.logger.Warn("Artifact digest unavailable", logfields.Artifact(art.Path), logfields.Error(derr))
	}
	rs.report.transition(StateBuildResolved)
	return nil
}

func (p *Pipeline) stageLaunch(ctx context.Context, rs *runState) error {
	spec := launch.Spec{BinaryPath: rs.binary, Arg: rs.req.EngineArg, Env: rs.environ}
	p.recorder.SetEngineRunning(true)
	err := p.runner.Run(ctx, spec)
	p.recorder.SetEngineRunning(false)
	if err == nil {
		rs.report.transition(StateLaunched)
		code := 0
		rs.report.ChildExit = &code
		return nil
	}
	if code, ok := launch.IsExitError(err); ok {
		// The engine ran and failed on its own terms; the exit code
		// passes through verbatim.
		rs.report.transition(StateLaunched)
		rs.report.ChildExit = &code
		return err
	}
	return perrors.LaunchFailed(err)
}
