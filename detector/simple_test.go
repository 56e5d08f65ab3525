package detector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/hiccup/clock"
)

type pauseCollector struct {
	mu     sync.Mutex
	pauses [][2]int64
}

func (p *pauseCollector) HandlePause(length, endTime int64) {
	p.mu.Lock()
	p.pauses = append(p.pauses, [2]int64{length, endTime})
	p.mu.Unlock()
}

func (p *pauseCollector) snapshot() [][2]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]int64(nil), p.pauses...)
}

func TestSimpleDetectorThreadCountValidation(t *testing.T) {
	tests := []struct {
		name    string
		threads int
		wantErr bool
	}{
		{"one thread", 1, false},
		{"sixty-four threads", 64, false},
		{"negative", -1, true},
		{"too many", 65, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewSimpleDetector(SimpleConfig{Threads: tt.threads, Clock: clock.NewVirtual()})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			d.Shutdown()
		})
	}
}

// newStallableDetector builds a 3-observer detector on a virtual clock
// and walks time forward until the observers have an established loop
// baseline.
func newStallableDetector(t *testing.T) (*SimpleDetector, *clock.Virtual, *pauseCollector) {
	t.Helper()

	v := clock.NewVirtual()
	d, err := NewSimpleDetector(SimpleConfig{
		SleepInterval:         1_000_000,  // 1 ms
		NotificationThreshold: 10_000_000, // 10 ms
		Threads:               3,
		Clock:                 v,
	})
	require.NoError(t, err)

	collector := &pauseCollector{}
	d.AddListener(collector, false)

	// Establish the shortest-time-around-loop baseline at ~1 ms.
	for i := 0; i < 30; i++ {
		v.MoveTimeForward(1_000_000)
		time.Sleep(2 * time.Millisecond)
	}
	require.Empty(t, collector.snapshot(), "baseline ticks must not report pauses")

	return d, v, collector
}

func TestSingleObserverStallsAreNotPauses(t *testing.T) {
	d, _, collector := newStallableDetector(t)
	defer d.Shutdown()

	// Stall each observer alone for 20 ms; the others keep consensus
	// moving, so no process-wide pause exists.
	for bit := uint64(1); bit <= 4; bit <<= 1 {
		d.StallDetectorThreads(bit, 20_000_000)
	}

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, collector.snapshot(), "a single-thread stall was reported as a pause")
}

func TestConsensusStallIsReportedOnce(t *testing.T) {
	d, _, collector := newStallableDetector(t)
	defer d.Shutdown()

	// All three observers stalled together: a process-wide pause.
	d.StallDetectorThreads(0x7, 20_000_000)

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) == 1
	}, 2*time.Second, time.Millisecond)

	pauses := collector.snapshot()
	require.Len(t, pauses, 1, "consensus stall must be reported exactly once")
	require.Greater(t, pauses[0][0], int64(10_000_000),
		"reported pause must exceed the notification threshold")

	// No trailing duplicates once things settle.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, collector.snapshot(), 1)
}

func TestSkipConsensusTimeSuppressesDetection(t *testing.T) {
	d, v, collector := newStallableDetector(t)
	defer d.Shutdown()

	// Jump time by 100 ms but pre-advance the consensus slot: no observer
	// sees a delta, so no pause is reported.
	d.SkipConsensusTimeTo(v.NowNanos() + 100_000_000)
	v.MoveTimeForward(100_000_000)

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, collector.snapshot())
}

func TestShutdownTerminatesObservers(t *testing.T) {
	v := clock.NewVirtual()
	d, err := NewSimpleDetector(SimpleConfig{Clock: v})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown hung with observers blocked in a virtual sleep")
	}
}
