// Package phaser provides an asymmetric synchronization primitive for
// protecting actively recorded double-buffered data structures.
//
// A WriterReaderPhaser gives writers wait-free critical sections, makes
// readers block only on other readers, and lets a reader execute a phase
// flip that is guaranteed to return only after every writer critical
// section that was in flight when the flip began has completed.
//
// The intended use pattern:
//  1. There are two data structures, "active" and "inactive".
//  2. Writers mutate the active structure as perceived at
//     WriterCriticalSectionEnter time, and only between Enter and Exit.
//  3. Only readers swap the active and inactive roles, while holding
//     ReaderLock, and they call FlipPhase after the swap.
//  4. After FlipPhase returns, the now-inactive structure is guaranteed to
//     be quiescent and can be read safely until ReaderUnlock.
package phaser

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WriterReaderPhaser coordinates wait-free writers with a flipping reader.
//
// Writer entry and exit are single atomic fetch-adds; no CAS and no
// allocation. The flip spins until the previous phase's end epoch catches
// up with the start epoch captured at the flip point, which is bounded in
// practice by the longest writer critical section.
type WriterReaderPhaser struct {
	startEpoch   atomic.Int64
	evenEndEpoch atomic.Int64
	oddEndEpoch  atomic.Int64

	readerMu   sync.Mutex
	readerHeld atomic.Bool
}

// NewWriterReaderPhaser creates a phaser in the even phase.
func NewWriterReaderPhaser() *WriterReaderPhaser {
	p := &WriterReaderPhaser{}
	p.oddEndEpoch.Store(1)
	return p
}

// WriterCriticalSectionEnter marks entry to a writer critical section and
// returns an opaque token that MUST be passed to the matching
// WriterCriticalSectionExit call. Wait-free.
func (p *WriterReaderPhaser) WriterCriticalSectionEnter() int64 {
	return p.startEpoch.Add(2) - 2
}

// WriterCriticalSectionExit marks exit from a writer critical section.
// token must be the value returned by the matching Enter call; its parity
// selects which phase's end epoch is advanced. Wait-free.
func (p *WriterReaderPhaser) WriterCriticalSectionExit(token int64) {
	if token&1 == 0 {
		p.evenEndEpoch.Add(2)
	} else {
		p.oddEndEpoch.Add(2)
	}
}

// ReaderLock enters the reader critical section. Only one reader may be
// inside at a time; writers are never blocked by it.
func (p *WriterReaderPhaser) ReaderLock() {
	p.readerMu.Lock()
	p.readerHeld.Store(true)
}

// ReaderUnlock exits the reader critical section.
func (p *WriterReaderPhaser) ReaderUnlock() {
	p.readerHeld.Store(false)
	p.readerMu.Unlock()
}

// FlipPhase flips the phase. It returns only once every writer critical
// section that may have been in flight when the flip began has exited. No
// writer activity is required for the flip to complete.
//
// FlipPhase must be called while holding ReaderLock; calling it without
// the reader lock is a programming error and panics. The flip itself is
// lock-free with respect to writers, but may spin while waiting for
// in-flight writer critical sections to complete.
func (p *WriterReaderPhaser) FlipPhase() {
	if !p.readerHeld.Load() {
		panic("phaser: FlipPhase called without holding ReaderLock")
	}

	nextPhaseIsOdd := p.startEpoch.Load()&1 == 0

	// Clear the unused next-phase end epoch to its initial value.
	var initialStartValue int64
	if nextPhaseIsOdd {
		initialStartValue = 1
		p.oddEndEpoch.Store(initialStartValue)
	} else {
		initialStartValue = 0
		p.evenEndEpoch.Store(initialStartValue)
	}

	// Switch to the new phase, capturing the start value at the flip.
	startValueAtFlip := p.startEpoch.Swap(initialStartValue)

	// Spin until the previous phase's end epoch catches up with the start
	// value at the flip point. At that instant no previous-phase writer
	// remains inside its critical section.
	prevEnd := &p.evenEndEpoch
	if !nextPhaseIsOdd {
		prevEnd = &p.oddEndEpoch
	}
	for prevEnd.Load() != startValueAtFlip {
		runtime.Gosched()
	}
}
