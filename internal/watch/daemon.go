package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	"git.home.luguber.info/inful/proxyrunner/internal/logfields"
	"git.home.luguber.info/inful/proxyrunner/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Daemon assembles watch mode: supervisor, source watcher, debouncer,
// optional periodic relaunch schedule, optional status HTTP server.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prom.Registry
	supervisor *Supervisor
	watcher    *SourceWatcher
	debouncer  *Debouncer
	scheduler  gocron.Scheduler
	status     *StatusServer
}

// NewDaemon validates the configuration into a ready-to-run daemon.
func NewDaemon(cfg *config.Config, engineArg, buildMode string, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	supervisor := NewSupervisor(cfg, engineArg, buildMode, recorder, logger)

	debouncer := NewDebouncer(cfg.Watch.DebounceDuration(), cfg.Watch.MaxDelayDuration(), func() {
		supervisor.RequestCycle(ReasonSourceChange)
	})

	watcher, err := NewSourceWatcher(cfg, debouncer.Trigger, logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		supervisor: supervisor,
		watcher:    watcher,
		debouncer:  debouncer,
	}

	if interval := cfg.Watch.IntervalDuration(); interval > 0 {
		scheduler, schedErr := gocron.NewScheduler()
		if schedErr != nil {
			watcher.Stop()
			return nil, fmt.Errorf("failed to create scheduler: %w", schedErr)
		}
		_, jobErr := scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { supervisor.RequestCycle(ReasonSchedule) }),
			gocron.WithName("periodic-relaunch"),
		)
		if jobErr != nil {
			watcher.Stop()
			return nil, fmt.Errorf("failed to schedule periodic relaunch: %w", jobErr)
		}
		d.scheduler = scheduler
	}

	if cfg.Watch.HTTPAddr != "" {
		d.status = NewStatusServer(cfg.Watch.HTTPAddr, registry, supervisor, logger)
	}
	return d, nil
}

// Run drives the daemon until the context is canceled, then tears everything
// down in order: child, scheduler, watcher, HTTP server.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("Watch mode starting",
		logfields.Target(d.cfg.Target.Name),
		slog.String("debounce", d.cfg.Watch.DebounceDuration().String()),
		slog.String("interval", d.cfg.Watch.IntervalDuration().String()))

	if d.status != nil {
		if err := d.status.Start(); err != nil {
			d.watcher.Stop()
			return fmt.Errorf("status server: %w", err)
		}
	}
	d.watcher.Start(ctx)
	if d.scheduler != nil {
		d.scheduler.Start()
	}

	// Blocks until shutdown; stops the child itself.
	err := d.supervisor.Run(ctx)

	d.debouncer.Stop()
	if d.scheduler != nil {
		if shutdownErr := d.scheduler.Shutdown(); shutdownErr != nil {
			d.logger.Warn("Scheduler shutdown failed", logfields.Error(shutdownErr))
		}
	}
	d.watcher.Stop()
	if d.status != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := d.status.Stop(stopCtx); stopErr != nil {
			d.logger.Warn("Status server shutdown failed", logfields.Error(stopErr))
		}
	}
	d.logger.Info("Watch mode stopped")
	return err
}
