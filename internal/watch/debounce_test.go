package watch

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(50*time.Millisecond, time.Second, func() { fires.Add(1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want 1", got)
	}
}

func TestDebouncerMaxDelayBoundsBurst(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(60*time.Millisecond, 150*time.Millisecond, func() { fires.Add(1) })
	defer d.Stop()

	// Trigger faster than the quiet window for longer than the max delay.
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.Trigger()
		time.Sleep(20 * time.Millisecond)
	}

	if fires.Load() == 0 {
		t.Fatal("continuous triggering starved the fire; max delay not honored")
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(50*time.Millisecond, time.Second, func() { fires.Add(1) })

	d.Trigger()
	d.Stop()
	time.Sleep(150 * time.Millisecond)

	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d after Stop, want 0", got)
	}
}

func TestDebouncerSeparateBursts(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(30*time.Millisecond, time.Second, func() { fires.Add(1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(120 * time.Millisecond)
	d.Trigger()
	time.Sleep(120 * time.Millisecond)

	if got := fires.Load(); got != 2 {
		t.Fatalf("fires = %d, want 2 for two separate bursts", got)
	}
}
