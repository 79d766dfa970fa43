package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	"git.home.luguber.info/inful/proxyrunner/internal/metrics"
)

// captureRecorder records relaunch reasons for assertions.
type captureRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	reasons []string
}

func (c *captureRecorder) IncRelaunch(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
}

func (c *captureRecorder) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reasons...)
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// supervisorFixture builds a config whose external tools are all stub
// scripts: a no-op ip, a cargo emitting one artifact record, a pass-through
// elevation command, and an engine that logs each start and waits for TERM.
func supervisorFixture(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	launches := filepath.Join(dir, "launches.log")

	engine := writeScript(t, dir, "proxy_engine",
		fmt.Sprintf("#!/bin/sh\ntrap 'exit 0' TERM\necho start >> %s\nwhile :; do sleep 0.05; done\n", launches))
	record := fmt.Sprintf(`{"reason":"compiler-artifact","target":{"name":"proxy_engine"},"profile":{"test":false},"filenames":[%q],"executable":%q}`, engine, engine)
	cargoStub := writeScript(t, dir, "cargo", "#!/bin/sh\nprintf '%s\\n' '"+record+"'\n")
	ipStub := writeScript(t, dir, "ip", "#!/bin/sh\nexit 0\n")
	sudoStub := writeScript(t, dir, "sudo", "#!/bin/sh\nshift 2\nexec \"$@\"\n")

	cfg := config.Default()
	cfg.Target.Dir = dir
	cfg.Build.Command = cargoStub
	cfg.Flush.Command = ipStub
	cfg.Launch.Command = sudoStub
	cfg.Launch.GracePeriod = "2s"
	return cfg, launches
}

func waitForLaunches(t *testing.T, logPath string, want int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(logPath)
		if err == nil && strings.Count(string(data), "start") >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("engine did not reach %d launches", want)
}

func TestSupervisorStopsChildBeforeRelaunch(t *testing.T) {
	cfg, launches := supervisorFixture(t)
	rec := &captureRecorder{}
	s := NewSupervisor(cfg, "engine.toml", "", rec, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitForLaunches(t, launches, 1)
	s.RequestCycle(ReasonSourceChange)
	waitForLaunches(t, launches, 2)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	last := s.Last()
	if last == nil {
		t.Fatal("no report recorded")
	}
	if last.Trigger != ReasonSourceChange {
		t.Errorf("last trigger = %q, want %q", last.Trigger, ReasonSourceChange)
	}
	if last.ChildExit == nil || *last.ChildExit != 0 {
		t.Errorf("child exit = %v, want 0 (engine traps TERM)", last.ChildExit)
	}

	reasons := rec.snapshot()
	if len(reasons) != 2 || reasons[0] != ReasonInitial || reasons[1] != ReasonSourceChange {
		t.Errorf("relaunch reasons = %v", reasons)
	}
}

func TestSupervisorPersistsReports(t *testing.T) {
	cfg, launches := supervisorFixture(t)
	reportDir := t.TempDir()
	cfg.Watch.ReportDir = reportDir
	s := NewSupervisor(cfg, "", "", &captureRecorder{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitForLaunches(t, launches, 1)
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	data, err := os.ReadFile(filepath.Join(reportDir, "launch-report.json"))
	if err != nil {
		t.Fatalf("report not persisted: %v", err)
	}
	if !strings.Contains(string(data), `"trigger": "initial"`) {
		t.Errorf("report missing trigger: %s", data)
	}
}

func TestSupervisorSurvivesFailedCycle(t *testing.T) {
	cfg, _ := supervisorFixture(t)
	// Break the build; every cycle fails before launching.
	cfg.Build.Command = writeScript(t, cfg.Target.Dir, "cargo-broken", "#!/bin/sh\nexit 1\n")
	rec := &captureRecorder{}
	s := NewSupervisor(cfg, "", "", rec, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for s.Last() == nil && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	last := s.Last()
	if last == nil {
		t.Fatal("failed cycle produced no report")
	}

	// The daemon keeps accepting triggers after a failure.
	s.RequestCycle(ReasonSchedule)
	deadline = time.Now().Add(10 * time.Second)
	for len(rec.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	reasons := rec.snapshot()
	if len(reasons) < 2 {
		t.Fatalf("reasons = %v, want at least initial+schedule", reasons)
	}
}
