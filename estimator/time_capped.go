package estimator

import (
	"math"
	"sort"
	"sync"
	"weak"

	"github.com/wesleyorama2/hiccup/detector"
)

// maxPausesToTrack bounds the ring of concurrently tracked pauses. A
// pause recorded past this capacity evicts the oldest live record, whose
// length is first removed from the time cap.
const maxPausesToTrack = 32

// TimeCapped is a MovingAverage whose window samples must additionally
// fit inside a capped time span ending at the query time. Samples older
// than the cap are disregarded, so the estimate adapts when the recording
// rate drops instead of averaging over stale history.
//
// When registered with a pause detector, each reported pause temporarily
// extends the time cap by the pause length until the cap no longer
// overlaps the pause, so a detected stall widens the valid window rather
// than invalidating it.
type TimeCapped struct {
	MovingAverage

	mu          sync.Mutex
	baseTimeCap int64
	timeCap     int64

	// FIFO ring of active pauses; a free slot holds math.MaxInt64 as its
	// start time.
	pauseStartTimes         [maxPausesToTrack]int64
	pauseLengths            [maxPausesToTrack]int64
	earliestPauseIndex      int
	nextPauseRecordingIndex int

	det     detector.PauseDetector
	tracker *estimatorPauseTracker
}

// NewTimeCapped creates a time-capped estimator. The window length is
// rounded up to the nearest power of two. If det is non-nil the estimator
// registers as a high-priority pause listener so that its state reflects
// a pause before normal-priority consumers observe the same event.
func NewTimeCapped(requestedWindowLength int, timeCap int64, det detector.PauseDetector) *TimeCapped {
	e := &TimeCapped{
		baseTimeCap: timeCap,
		timeCap:     timeCap,
		det:         det,
	}
	e.MovingAverage.init(requestedWindowLength)
	for i := range e.pauseStartTimes {
		e.pauseStartTimes[i] = math.MaxInt64
	}
	if det != nil {
		e.tracker = &estimatorPauseTracker{ref: weak.Make(e), det: det}
		det.AddListener(e.tracker, true)
	}
	return e
}

// RecordPause extends the time cap to account for a detected pause of the
// given length ending at pauseEndTime.
func (e *TimeCapped) RecordPause(pauseLength, pauseEndTime int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pauseStartTimes[e.nextPauseRecordingIndex] != math.MaxInt64 {
		// Overwriting a live pause record; take it out of the cap first.
		e.timeCap -= e.pauseLengths[e.nextPauseRecordingIndex]
		e.earliestPauseIndex = (e.nextPauseRecordingIndex + 1) % maxPausesToTrack
	}

	e.timeCap += pauseLength

	e.pauseStartTimes[e.nextPauseRecordingIndex] = pauseEndTime - pauseLength
	e.pauseLengths[e.nextPauseRecordingIndex] = pauseLength
	e.nextPauseRecordingIndex = (e.nextPauseRecordingIndex + 1) % maxPausesToTrack
}

// EstimatedInterval returns the average recording interval observed at
// time when, considering only window samples inside the (possibly
// pause-extended) time cap. Returns ImpossiblyLarge when fewer than two
// usable samples remain or when pause time consumes the whole span.
func (e *TimeCapped) EstimatedInterval(when int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	timeCapStartTime := e.expirePauses(when)

	sampledCount := e.sampleCount()
	if sampledCount < int64(e.windowLength) {
		return ImpossiblyLarge
	}

	// The ring is monotonically non-decreasing in logical age order from
	// the write cursor, so the number of samples outside the cap can be
	// found by binary search.
	cursor := int(sampledCount & e.windowMask)
	outside := sort.Search(e.windowLength, func(i int) bool {
		return e.intervalEndTimes[(cursor+i)&int(e.windowMask)].Load() >= timeCapStartTime
	})

	usable := e.windowLength - outside
	if usable <= 1 {
		return ImpossiblyLarge
	}

	windowStartTime := e.intervalEndTimes[(cursor+outside)&int(e.windowMask)].Load()
	windowTimeSpan := when - windowStartTime
	pauseTimeInWindow := e.timeCap - e.baseTimeCap
	effectiveTimeSpan := windowTimeSpan - pauseTimeInWindow
	if effectiveTimeSpan <= 0 {
		return ImpossiblyLarge
	}
	return max(effectiveTimeSpan/int64(usable-1), 1)
}

// expirePauses drops pause records whose start time has fallen out of the
// current query window and returns the resulting window start. Each
// eviction shrinks the cap and therefore advances the window boundary, so
// the loop runs to its fixpoint.
func (e *TimeCapped) expirePauses(when int64) int64 {
	timeCapStartTime := when - e.timeCap
	for e.pauseStartTimes[e.earliestPauseIndex] < timeCapStartTime {
		e.timeCap -= e.pauseLengths[e.earliestPauseIndex]
		e.pauseStartTimes[e.earliestPauseIndex] = math.MaxInt64
		e.pauseLengths[e.earliestPauseIndex] = 0
		e.earliestPauseIndex = (e.earliestPauseIndex + 1) % maxPausesToTrack
		timeCapStartTime = when - e.timeCap
	}
	return timeCapStartTime
}

// Stop deregisters the estimator from its pause detector. Safe to call
// when no detector was supplied.
func (e *TimeCapped) Stop() {
	if e.tracker != nil {
		e.det.RemoveListener(e.tracker)
	}
}

// estimatorPauseTracker feeds detected pauses into the estimator. It
// holds the estimator weakly so that a detector registration cannot keep
// an otherwise-unreachable estimator alive; once the referent is gone the
// tracker removes itself from the detector in-line.
type estimatorPauseTracker struct {
	ref weak.Pointer[TimeCapped]
	det detector.PauseDetector
}

func (t *estimatorPauseTracker) HandlePause(pauseLength, pauseEndTime int64) {
	if e := t.ref.Value(); e != nil {
		e.RecordPause(pauseLength, pauseEndTime)
	} else {
		t.det.RemoveListener(t)
	}
}
