package stats

import (
	"sync"

	"github.com/wesleyorama2/hiccup/detector"
)

// Process-wide default pause detector, created lazily so that programs
// with several LatencyStats instances share one set of observer
// goroutines. Tests that need determinism inject their own detector via
// Config instead.
var (
	defaultDetectorMu sync.Mutex
	defaultDetector   detector.PauseDetector
)

// SetDefaultPauseDetector installs d as the process-wide default used by
// LatencyStats instances constructed without an explicit detector. The
// caller owns shutdown of any previously installed default.
func SetDefaultPauseDetector(d detector.PauseDetector) {
	defaultDetectorMu.Lock()
	defaultDetector = d
	defaultDetectorMu.Unlock()
}

// DefaultPauseDetector returns the process-wide default detector,
// creating a SimpleDetector with default settings on first use.
func DefaultPauseDetector() detector.PauseDetector {
	defaultDetectorMu.Lock()
	defer defaultDetectorMu.Unlock()
	if defaultDetector == nil {
		defaultDetector = detector.NewDefaultSimpleDetector()
	}
	return defaultDetector
}
