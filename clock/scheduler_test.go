package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_FiresInVirtualTime(t *testing.T) {
	v := NewVirtual()
	s := NewScheduler(v)
	defer s.Stop()

	var fired atomic.Int32
	s.SchedulePeriodic(1_000_000_000, func() {
		fired.Add(1)
	})

	// Nothing fires until time moves.
	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired %d times before time moved, want 0", got)
	}

	// A single 3s jump catches up one period at a time.
	v.MoveTimeForward(3_000_000_000)
	waitFor(t, func() bool { return fired.Load() == 3 }, "task to fire 3 times")
}

func TestScheduler_StopHaltsTasks(t *testing.T) {
	v := NewVirtual()
	s := NewScheduler(v)

	var fired atomic.Int32
	s.SchedulePeriodic(1_000, func() {
		fired.Add(1)
	})

	v.MoveTimeForward(1_000)
	waitFor(t, func() bool { return fired.Load() == 1 }, "first firing")

	s.Stop()
	before := fired.Load()
	v.MoveTimeForward(10_000)
	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != before {
		t.Errorf("task fired after Stop: %d -> %d", before, got)
	}
}

func TestScheduler_SystemClock(t *testing.T) {
	s := NewScheduler(System())
	defer s.Stop()

	var fired atomic.Int32
	s.SchedulePeriodic(int64(5*time.Millisecond), func() {
		fired.Add(1)
	})

	waitFor(t, func() bool { return fired.Load() >= 2 }, "periodic task on system clock")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
