package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	runDuration   prom.Histogram
	stageResults  *prom.CounterVec
	runOutcomes   *prom.CounterVec
	relaunches    *prom.CounterVec
	engineRunning prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "proxyrunner",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual launch stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "proxyrunner",
			Name:      "run_duration_seconds",
			Help:      "Total duration from cache flush to engine start",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "proxyrunner",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "proxyrunner",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.relaunches = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "proxyrunner",
			Name:      "relaunches_total",
			Help:      "Engine relaunches by trigger reason",
		}, []string{"reason"})
		pr.engineRunning = prom.NewGauge(prom.GaugeOpts{
			Namespace: "proxyrunner",
			Name:      "engine_running",
			Help:      "1 while a supervised engine process is alive",
		})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcomes, pr.relaunches, pr.engineRunning)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRelaunch(reason string) {
	if p == nil || p.relaunches == nil {
		return
	}
	p.relaunches.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) SetEngineRunning(running bool) {
	if p == nil || p.engineRunning == nil {
		return
	}
	if running {
		p.engineRunning.Set(1)
	} else {
		p.engineRunning.Set(0)
	}
}
