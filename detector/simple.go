package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/hiccup/clock"
)

// Defaults for SimpleDetector, in nanoseconds.
const (
	DefaultSleepInterval         = 1_000_000 // 1 ms
	DefaultNotificationThreshold = 1_000_000 // 1 ms
	DefaultDetectorThreads       = 3
)

// SimpleConfig configures a SimpleDetector. Zero fields take the
// corresponding defaults; continuous spinning (no sleep between ticks)
// is requested explicitly via SpinMode.
type SimpleConfig struct {
	// SleepInterval is how long each observer sleeps between ticks (ns).
	SleepInterval int64

	// SpinMode makes observers busy-loop instead of sleeping, for
	// sub-millisecond detection at the cost of burned cores.
	SpinMode bool

	// NotificationThreshold is the minimum stall length reported (ns).
	NotificationThreshold int64

	// Threads is the number of consensus observer goroutines (1..64).
	Threads int

	// Clock supplies time; defaults to the system clock. Tests inject a
	// virtual clock for deterministic stall scenarios.
	Clock clock.Clock

	// Logger, when set, receives a debug line per detected pause.
	Logger *slog.Logger
}

// SimpleDetector discovers process-wide stalls by consensus across N
// observer goroutines sharing one atomic "latest observed time" slot.
//
// Each observer periodically publishes the current time with a CAS over
// the prior value. Only one observer wins the exchange per tick, and the
// winner's observed delta can only have accrued if every other observer
// was also unable to advance the slot, so a stall local to one goroutine
// (e.g. blocked I/O) never reports. The winner subtracts its own shortest
// observed loop time as the baseline for loop overhead and reports the
// remainder when it exceeds the notification threshold.
type SimpleDetector struct {
	*Core

	sleepInterval         int64
	notificationThreshold int64
	numThreads            int
	clk                   clock.Clock
	logger                *slog.Logger

	consensusLatestTime atomic.Int64

	// Test support: observers spin while their bit is set in stallMask,
	// and exit when it is set in stopMask.
	stallMask atomic.Uint64
	stopMask  atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimpleDetector creates and starts a detector with the given
// configuration.
func NewSimpleDetector(cfg SimpleConfig) (*SimpleDetector, error) {
	if cfg.Threads == 0 {
		cfg.Threads = DefaultDetectorThreads
	}
	if cfg.Threads < 1 || cfg.Threads > 64 {
		return nil, fmt.Errorf("detector: thread count must be between 1 and 64, got %d", cfg.Threads)
	}
	if cfg.SleepInterval == 0 && !cfg.SpinMode {
		cfg.SleepInterval = DefaultSleepInterval
	}
	if cfg.SpinMode {
		cfg.SleepInterval = 0
	}
	if cfg.NotificationThreshold == 0 {
		cfg.NotificationThreshold = DefaultNotificationThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &SimpleDetector{
		Core:                  NewCore(),
		sleepInterval:         cfg.SleepInterval,
		notificationThreshold: cfg.NotificationThreshold,
		numThreads:            cfg.Threads,
		clk:                   cfg.Clock,
		logger:                cfg.Logger,
		cancel:                cancel,
	}
	for i := 0; i < d.numThreads; i++ {
		d.wg.Add(1)
		go d.observe(ctx, i)
	}
	return d, nil
}

// NewDefaultSimpleDetector creates a detector with the default sleep
// interval (1 ms), notification threshold (1 ms), and observer count (3).
func NewDefaultSimpleDetector() *SimpleDetector {
	d, err := NewSimpleDetector(SimpleConfig{})
	if err != nil {
		// Unreachable: defaults are always valid.
		panic(err)
	}
	return d
}

// Shutdown stops the observer goroutines cooperatively, then stops the
// dispatcher after pending notifications drain.
func (d *SimpleDetector) Shutdown() {
	d.stopMask.Store(math.MaxUint64)
	d.cancel()
	d.wg.Wait()
	d.Core.Shutdown()
}

func (d *SimpleDetector) observe(ctx context.Context, threadNumber int) {
	defer d.wg.Done()
	threadMask := uint64(1) << threadNumber

	shortestObservedTimeAroundLoop := int64(math.MaxInt64)

	observedLastUpdateTime := d.consensusLatestTime.Load()
	now := d.clk.NowNanos()
	prevNow := now
	d.consensusLatestTime.CompareAndSwap(observedLastUpdateTime, now)

	for d.stopMask.Load()&threadMask == 0 {
		if d.sleepInterval != 0 {
			if err := d.clk.SleepNanos(ctx, d.sleepInterval); err != nil {
				continue
			}
		}

		// Test support: spin while externally asked to stall.
		for d.stallMask.Load()&threadMask != 0 && d.stopMask.Load()&threadMask == 0 {
			runtime.Gosched()
		}

		observedLastUpdateTime = d.consensusLatestTime.Load()
		// The consensus sample above happens-before the time read below.
		now = d.clk.NowNanos()

		shortestObservedTimeAroundLoop = min(now-prevNow, shortestObservedTimeAroundLoop)

		// Move consensus time forward while it lags. Only the winner of
		// the exchange acts on the delta; losers reload and retry.
		for now > observedLastUpdateTime {
			if d.consensusLatestTime.CompareAndSwap(observedLastUpdateTime, now) {
				deltaTime := now - observedLastUpdateTime
				hiccupTime := max(deltaTime-shortestObservedTimeAroundLoop, 0)
				if hiccupTime > d.notificationThreshold {
					if d.logger != nil {
						d.logger.Debug("pause detected",
							"observer", threadNumber,
							"length", time.Duration(hiccupTime),
							"endTime", now)
					}
					d.Notify(hiccupTime, now)
				}
				break
			}
			observedLastUpdateTime = d.consensusLatestTime.Load()
		}

		prevNow = now
	}
}

// StallDetectorThreads artificially stalls the observers selected by
// threadNumberMask for stallLength nanoseconds. Test support: used to
// verify that consensus stalls report and partial stalls do not.
//
// With a virtual clock the stall advances time in sub-threshold steps so
// that unstalled observers keep consensus moving without tripping the
// threshold themselves; with the system clock it simply sleeps.
func (d *SimpleDetector) StallDetectorThreads(threadNumberMask uint64, stallLength int64) {
	savedMask := d.stallMask.Load()
	d.stallMask.Store(threadNumberMask)

	if v, ok := d.clk.(*clock.Virtual); ok {
		startTime := d.clk.NowNanos()
		endTime := startTime + stallLength
		for remaining := stallLength; remaining > 0; remaining = endTime - d.clk.NowNanos() {
			step := min(remaining, d.notificationThreshold/2)
			v.MoveTimeForward(step)
			// Give observers a chance to run against the new time.
			time.Sleep(time.Millisecond)
		}
	} else {
		time.Sleep(time.Duration(stallLength))
	}

	d.stallMask.Store(savedMask)
	// Let stalled observers notice the restored mask and publish.
	time.Sleep(time.Millisecond)
}

// SkipConsensusTimeTo moves the consensus observed time forward without a
// pause being detected for the skip. Test support for artificial clocks.
func (d *SimpleDetector) SkipConsensusTimeTo(newConsensusTime int64) {
	d.consensusLatestTime.Store(newConsensusTime)
}
