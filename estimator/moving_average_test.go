package estimator

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestWindowLengthRoundsUpToPowerOfTwo(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"exact power of two", 32, 32},
		{"rounds up", 1000, 1024},
		{"tiny window clamps", 1, 2},
		{"one above a power", 33, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewMovingAverage(tt.requested)
			if got := e.WindowLength(); got != tt.want {
				t.Errorf("WindowLength() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateImpossiblyLargeUntilWindowFills(t *testing.T) {
	e := NewMovingAverage(32)
	var now int64
	for i := 0; i < 31; i++ {
		now += 100
		e.RecordInterval(now)
		if got := e.EstimatedInterval(now); got != ImpossiblyLarge {
			t.Fatalf("EstimatedInterval() after %d samples = %d, want ImpossiblyLarge", i+1, got)
		}
	}
	now += 100
	e.RecordInterval(now)
	if got := e.EstimatedInterval(now); got == ImpossiblyLarge {
		t.Error("EstimatedInterval() after full window = ImpossiblyLarge, want finite")
	}
}

func TestEstimateConstantRate(t *testing.T) {
	const interval = 5_000_000 // 5 ms
	e := NewMovingAverage(1024)

	var now int64
	for i := 0; i < 2000; i++ {
		now += interval
		e.RecordInterval(now)
	}

	if got := e.EstimatedInterval(now); got != interval {
		t.Errorf("EstimatedInterval() = %d, want %d", got, interval)
	}
}

func TestEstimatePinnedToQueryTimeDuringLull(t *testing.T) {
	const interval = 100
	e := NewMovingAverage(32)

	var now int64
	for i := 0; i < 32; i++ {
		now += interval
		e.RecordInterval(now)
	}

	// A lull grows the estimate: the window end is pinned to the query
	// time, so the span widens while the sample count stays fixed.
	lullEnd := now + 31*interval
	want := (lullEnd - interval) / 31 // span from the oldest sample at t=100
	if got := e.EstimatedInterval(lullEnd); got != want {
		t.Errorf("EstimatedInterval(%d) = %d, want %d", lullEnd, got, want)
	}
}

func TestEstimateNeverBelowOne(t *testing.T) {
	e := NewMovingAverage(4)
	for i := 0; i < 4; i++ {
		e.RecordInterval(10) // all samples at the same instant
	}
	if got := e.EstimatedInterval(10); got != 1 {
		t.Errorf("EstimatedInterval() = %d, want 1", got)
	}
}

func TestConcurrentRecordingKeepsEstimateSane(t *testing.T) {
	const goroutines = 4
	const perGoroutine = 25_000

	e := NewMovingAverage(1024)
	var now atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				e.RecordInterval(now.Add(1))
			}
		}()
	}

	// Concurrent reads must terminate and never return a negative span.
	readsDone := make(chan struct{})
	go func() {
		defer close(readsDone)
		for i := 0; i < 1000; i++ {
			if got := e.EstimatedInterval(int64(i)); got < 1 {
				t.Errorf("EstimatedInterval() = %d, want >= 1", got)
				return
			}
		}
	}()

	wg.Wait()
	<-readsDone
}
