// Package stats records observed operation latencies and reports interval
// histograms whose tails survive coordinated omission.
//
// A LatencyStats tracks latencies in an HDR histogram while estimating
// the observed recording rate. When a registered pause detector reports a
// process-wide stall, LatencyStats synthesises the recordings the stall
// swallowed into a separate corrections histogram, using the estimated
// inter-recording interval to size the back-filled linear tail. Interval
// reads atomically rotate double-buffered histogram pairs, so recording
// proceeds concurrently and never blocks on readers.
package stats

import (
	"fmt"
	"sync/atomic"
	"weak"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/hiccup/clock"
	"github.com/wesleyorama2/hiccup/detector"
	"github.com/wesleyorama2/hiccup/estimator"
	"github.com/wesleyorama2/hiccup/histogram"
	"github.com/wesleyorama2/hiccup/phaser"
)

// Defaults for LatencyStats configuration. Values are nanoseconds unless
// noted.
const (
	DefaultLowestTrackableLatency  = 1_000             // 1 µs
	DefaultHighestTrackableLatency = 3_600_000_000_000 // 1 hour
	DefaultSignificantDigits       = 2
	DefaultEstimatorWindowLength   = 1024
	DefaultEstimatorTimeCap        = 10_000_000_000 // 10 s
)

// Config configures a LatencyStats. Zero fields take the corresponding
// defaults; a nil PauseDetector selects the process-wide default detector
// (created lazily on first use).
type Config struct {
	// LowestTrackableLatency is the smallest distinguishable latency (ns).
	LowestTrackableLatency int64

	// HighestTrackableLatency is the largest trackable latency (ns).
	HighestTrackableLatency int64

	// SignificantDigits is the histogram value precision (1..5).
	SignificantDigits int

	// EstimatorWindowLength is the interval estimator's moving window
	// size; rounded up to a power of two.
	EstimatorWindowLength int

	// EstimatorTimeCap bounds the age of estimator samples (ns).
	EstimatorTimeCap int64

	// PauseDetector supplies pause events. Nil selects the process-wide
	// default.
	PauseDetector detector.PauseDetector

	// Clock supplies time; defaults to the system clock.
	Clock clock.Clock
}

// LatencyStats records latencies and produces pause-corrected interval
// histograms.
//
// RecordLatency is safe for arbitrary concurrent callers and is wait-free
// up to the underlying histogram record (a short bucket-increment
// critical section). Interval reads serialise against each other on the
// phaser's reader lock and against writers only through the phase flip.
type LatencyStats struct {
	lowestTrackableLatency  int64
	highestTrackableLatency int64
	significantDigits       int

	clk clock.Clock
	det detector.PauseDetector

	// Writers load the active pointers inside their phaser critical
	// section; the reader swaps them during rotation and flips the phase
	// before touching the inactive side.
	activeRecordings    atomic.Pointer[histogram.Atomic]
	activeCorrections   atomic.Pointer[histogram.Atomic]
	inactiveRecordings  *histogram.Atomic
	inactiveCorrections *histogram.Atomic

	recordingPhaser   *phaser.WriterReaderPhaser
	intervalEstimator *estimator.TimeCapped

	tracker *pauseTracker
}

// New creates a LatencyStats from cfg, registering it with the pause
// detector. The caller should Stop it when done; an abandoned instance
// deregisters itself once collected.
func New(cfg Config) (*LatencyStats, error) {
	if cfg.LowestTrackableLatency == 0 {
		cfg.LowestTrackableLatency = DefaultLowestTrackableLatency
	}
	if cfg.HighestTrackableLatency == 0 {
		cfg.HighestTrackableLatency = DefaultHighestTrackableLatency
	}
	if cfg.SignificantDigits == 0 {
		cfg.SignificantDigits = DefaultSignificantDigits
	}
	if cfg.EstimatorWindowLength == 0 {
		cfg.EstimatorWindowLength = DefaultEstimatorWindowLength
	}
	if cfg.EstimatorTimeCap == 0 {
		cfg.EstimatorTimeCap = DefaultEstimatorTimeCap
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.PauseDetector == nil {
		cfg.PauseDetector = DefaultPauseDetector()
	}

	if cfg.LowestTrackableLatency < 1 {
		return nil, fmt.Errorf("stats: lowest trackable latency must be >= 1, got %d", cfg.LowestTrackableLatency)
	}
	if cfg.HighestTrackableLatency < 2*cfg.LowestTrackableLatency {
		return nil, fmt.Errorf("stats: highest trackable latency %d must be at least twice the lowest (%d)",
			cfg.HighestTrackableLatency, cfg.LowestTrackableLatency)
	}
	if cfg.SignificantDigits < 1 || cfg.SignificantDigits > 5 {
		return nil, fmt.Errorf("stats: significant digits must be between 1 and 5, got %d", cfg.SignificantDigits)
	}

	ls := &LatencyStats{
		lowestTrackableLatency:  cfg.LowestTrackableLatency,
		highestTrackableLatency: cfg.HighestTrackableLatency,
		significantDigits:       cfg.SignificantDigits,
		clk:                     cfg.Clock,
		det:                     cfg.PauseDetector,
		recordingPhaser:         phaser.NewWriterReaderPhaser(),
	}

	newHist := func() *histogram.Atomic {
		return histogram.New(cfg.LowestTrackableLatency, cfg.HighestTrackableLatency, cfg.SignificantDigits)
	}
	ls.activeRecordings.Store(newHist())
	ls.activeCorrections.Store(newHist())
	ls.inactiveRecordings = newHist()
	ls.inactiveCorrections = newHist()
	ls.activeRecordings.Load().SetStartTimeMs(cfg.Clock.NowMillis())
	ls.activeCorrections.Load().SetStartTimeMs(cfg.Clock.NowMillis())

	// The estimator registers at high priority, so its time cap reflects
	// a pause before our correction callback consults the estimate.
	ls.intervalEstimator = estimator.NewTimeCapped(cfg.EstimatorWindowLength, cfg.EstimatorTimeCap, cfg.PauseDetector)

	ls.tracker = &pauseTracker{ref: weak.Make(ls), det: cfg.PauseDetector}
	cfg.PauseDetector.AddListener(ls.tracker, false)

	return ls, nil
}

// RecordLatency records a single observed latency (ns) and ticks the
// interval estimator. Safe for concurrent callers. A latency above the
// highest trackable value returns the histogram's out-of-range error; the
// writer critical section is released on every path.
func (ls *LatencyStats) RecordLatency(latency int64) error {
	token := ls.recordingPhaser.WriterCriticalSectionEnter()
	defer ls.recordingPhaser.WriterCriticalSectionExit(token)

	ls.intervalEstimator.RecordInterval(ls.clk.NowNanos())
	return ls.activeRecordings.Load().RecordValue(latency)
}

// GetIntervalHistogram rotates the interval and returns a new histogram
// holding the latencies recorded since the previous rotation, with pause
// corrections folded in.
func (ls *LatencyStats) GetIntervalHistogram() *hdrhistogram.Histogram {
	target := hdrhistogram.New(ls.lowestTrackableLatency, ls.highestTrackableLatency, ls.significantDigits)
	ls.GetIntervalHistogramInto(target)
	return target
}

// GetIntervalHistogramInto rotates the interval and fills target with the
// corrected interval data, allocation-free for steady-state reporting.
func (ls *LatencyStats) GetIntervalHistogramInto(target *hdrhistogram.Histogram) {
	ls.recordingPhaser.ReaderLock()
	defer ls.recordingPhaser.ReaderUnlock()

	ls.rotate()
	ls.inactiveRecordings.CopyInto(target)
	ls.inactiveCorrections.AddTo(target)
}

// AddIntervalHistogramTo rotates the interval and adds the corrected
// interval data to target, accumulating across intervals.
func (ls *LatencyStats) AddIntervalHistogramTo(target *hdrhistogram.Histogram) {
	ls.recordingPhaser.ReaderLock()
	defer ls.recordingPhaser.ReaderUnlock()

	ls.rotate()
	ls.inactiveRecordings.AddTo(target)
	ls.inactiveCorrections.AddTo(target)
}

// GetUncorrectedIntervalHistogram rotates the interval and returns only
// the raw recorded latencies, without pause corrections.
func (ls *LatencyStats) GetUncorrectedIntervalHistogram() *hdrhistogram.Histogram {
	target := hdrhistogram.New(ls.lowestTrackableLatency, ls.highestTrackableLatency, ls.significantDigits)
	ls.recordingPhaser.ReaderLock()
	defer ls.recordingPhaser.ReaderUnlock()

	ls.rotate()
	ls.inactiveRecordings.CopyInto(target)
	return target
}

// GetLatestUncorrectedIntervalHistogram returns the raw side of the most
// recent rotation without triggering a new one.
func (ls *LatencyStats) GetLatestUncorrectedIntervalHistogram() *hdrhistogram.Histogram {
	target := hdrhistogram.New(ls.lowestTrackableLatency, ls.highestTrackableLatency, ls.significantDigits)
	ls.recordingPhaser.ReaderLock()
	defer ls.recordingPhaser.ReaderUnlock()

	ls.inactiveRecordings.CopyInto(target)
	return target
}

// IntervalEstimator exposes the recorder's rate estimator, primarily for
// inspection and tests.
func (ls *LatencyStats) IntervalEstimator() estimator.IntervalEstimator {
	return ls.intervalEstimator
}

// Stop deregisters from the pause detector. The detector itself is not
// shut down; it may be shared.
func (ls *LatencyStats) Stop() {
	ls.det.RemoveListener(ls.tracker)
	ls.intervalEstimator.Stop()
}

// rotate swaps the active and inactive histogram pairs and waits, via the
// phase flip, for every writer that might still be recording into the
// now-inactive pair. Caller must hold the phaser's reader lock.
func (ls *LatencyStats) rotate() {
	ls.inactiveRecordings.Reset()
	ls.inactiveCorrections.Reset()

	ls.inactiveRecordings = ls.activeRecordings.Swap(ls.inactiveRecordings)
	ls.inactiveCorrections = ls.activeCorrections.Swap(ls.inactiveCorrections)

	now := ls.clk.NowMillis()
	ls.activeRecordings.Load().SetStartTimeMs(now)
	ls.activeCorrections.Load().SetStartTimeMs(now)
	ls.inactiveRecordings.SetEndTimeMs(now)
	ls.inactiveCorrections.SetEndTimeMs(now)

	// After the flip, no writer that observed the previous active pair
	// remains in its critical section.
	ls.recordingPhaser.FlipPhase()
}

// recordDetectedPause synthesises the recordings a pause swallowed. With
// an estimated inter-recording interval i and a pause of length l, the
// missed operations would have observed latencies from roughly l-i down
// to i; recording (l-i) with expected interval i materialises that linear
// tail. Pauses shorter than two estimated intervals record nothing, and
// without a reliable estimate the pause is skipped entirely.
func (ls *LatencyStats) recordDetectedPause(pauseLength, pauseEndTime int64) {
	token := ls.recordingPhaser.WriterCriticalSectionEnter()
	defer ls.recordingPhaser.WriterCriticalSectionExit(token)

	estimatedInterval := ls.intervalEstimator.EstimatedInterval(pauseEndTime)
	if estimatedInterval == estimator.ImpossiblyLarge {
		return
	}
	minBar := pauseLength - estimatedInterval
	if minBar < estimatedInterval {
		return
	}
	// Correction synthesis is best-effort; a pause beyond the trackable
	// range surfaces through the histogram's own failure, not ours.
	_ = ls.activeCorrections.Load().RecordCorrectedValue(minBar, estimatedInterval)
}

// pauseTracker feeds detected pauses into a LatencyStats. It holds the
// stats weakly so a detector registration cannot keep an abandoned
// instance alive; once the referent is collected the tracker removes
// itself from the detector in-line.
type pauseTracker struct {
	ref weak.Pointer[LatencyStats]
	det detector.PauseDetector
}

func (t *pauseTracker) HandlePause(pauseLength, pauseEndTime int64) {
	if ls := t.ref.Value(); ls != nil {
		ls.recordDetectedPause(pauseLength, pauseEndTime)
	} else {
		t.det.RemoveListener(t)
	}
}
