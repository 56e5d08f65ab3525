// Package histogram wraps the external HDR histogram with a record path
// that is safe for concurrent writers.
//
// hdrhistogram-go's RecordValue is NOT thread-safe, so the handle guards
// every mutation with a short mutex. The critical section is a single
// bucket increment, so contention stays low even with many recording
// goroutines.
package histogram

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Atomic is a handle to an HDR histogram whose record operations may be
// invoked concurrently from multiple goroutines.
type Atomic struct {
	mu sync.Mutex
	h  *hdrhistogram.Histogram
}

// New creates a concurrent-safe histogram handle covering
// [lowestTrackable, highestTrackable] at the given number of significant
// value digits.
func New(lowestTrackable, highestTrackable int64, significantDigits int) *Atomic {
	return &Atomic{h: hdrhistogram.New(lowestTrackable, highestTrackable, significantDigits)}
}

// RecordValue records a single value. Values above the highest trackable
// value return the underlying histogram's out-of-range error.
func (a *Atomic) RecordValue(v int64) error {
	a.mu.Lock()
	err := a.h.RecordValue(v)
	a.mu.Unlock()
	return err
}

// RecordCorrectedValue records v and back-fills synthetic values at
// stride expectedInterval down to expectedInterval, materialising the
// samples an operation stream at that interval would have produced.
func (a *Atomic) RecordCorrectedValue(v, expectedInterval int64) error {
	a.mu.Lock()
	err := a.h.RecordCorrectedValue(v, expectedInterval)
	a.mu.Unlock()
	return err
}

// Reset zeroes all counts and clears the interval timestamps.
func (a *Atomic) Reset() {
	a.mu.Lock()
	a.h.Reset()
	a.h.SetStartTimeMs(0)
	a.h.SetEndTimeMs(0)
	a.mu.Unlock()
}

// SetStartTimeMs stamps the start of the interval this histogram covers.
func (a *Atomic) SetStartTimeMs(ms int64) {
	a.mu.Lock()
	a.h.SetStartTimeMs(ms)
	a.mu.Unlock()
}

// SetEndTimeMs stamps the end of the interval this histogram covers.
func (a *Atomic) SetEndTimeMs(ms int64) {
	a.mu.Lock()
	a.h.SetEndTimeMs(ms)
	a.mu.Unlock()
}

// CopyInto replaces target's contents with this histogram's counts and
// interval timestamps.
func (a *Atomic) CopyInto(target *hdrhistogram.Histogram) {
	a.mu.Lock()
	defer a.mu.Unlock()
	target.Reset()
	target.Merge(a.h)
	target.SetStartTimeMs(a.h.StartTimeMs())
	target.SetEndTimeMs(a.h.EndTimeMs())
}

// AddTo merges this histogram's counts into target.
func (a *Atomic) AddTo(target *hdrhistogram.Histogram) {
	a.mu.Lock()
	defer a.mu.Unlock()
	target.Merge(a.h)
}

// TotalCount returns the number of recorded values.
func (a *Atomic) TotalCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.TotalCount()
}
