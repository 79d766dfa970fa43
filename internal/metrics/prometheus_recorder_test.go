package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("resolve_binary", 150*time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncStageResult("resolve_binary", ResultSuccess)
	pr.IncRunOutcome(OutcomeSuccess)
	pr.IncRelaunch("source_change")
	pr.SetEngineRunning(true)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveStageDuration("flush_neighbor_cache", time.Second)
	pr.ObserveRunDuration(time.Second)
	pr.IncStageResult("flush_neighbor_cache", ResultFailure)
	pr.IncRunOutcome(OutcomeFailure)
	pr.IncRelaunch("schedule")
	pr.SetEngineRunning(false)
}

func TestHTTPHandlerServesNamespace(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncRunOutcome(OutcomeSuccess)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "proxyrunner_run_outcomes_total") {
		t.Errorf("scrape output missing run outcome counter:\n%s", body)
	}
}
