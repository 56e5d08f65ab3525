package stats

import (
	"testing"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/hiccup/detector"
)

// BenchmarkRecordLatency measures the single-threaded recording hot path:
// phaser entry, estimator tick, histogram record, phaser exit.
//
// Success criteria: no allocations, suitable for per-operation use in
// request paths (>1M ops/sec).
func BenchmarkRecordLatency(b *testing.B) {
	core := detector.NewCore()
	defer core.Shutdown()
	ls, err := New(Config{PauseDetector: core})
	if err != nil {
		b.Fatal(err)
	}
	defer ls.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = ls.RecordLatency(5_000_000)
	}
}

// BenchmarkRecordLatency_Parallel measures concurrent recording, the
// primary deployment shape: many request goroutines, one stats object.
func BenchmarkRecordLatency_Parallel(b *testing.B) {
	core := detector.NewCore()
	defer core.Shutdown()
	ls, err := New(Config{PauseDetector: core})
	if err != nil {
		b.Fatal(err)
	}
	defer ls.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = ls.RecordLatency(5_000_000)
		}
	})
}

// BenchmarkGetIntervalHistogramInto measures the reader side: rotation,
// phase flip, and interval copy, with no concurrent writers.
func BenchmarkGetIntervalHistogramInto(b *testing.B) {
	core := detector.NewCore()
	defer core.Shutdown()
	ls, err := New(Config{PauseDetector: core})
	if err != nil {
		b.Fatal(err)
	}
	defer ls.Stop()

	target := hdrhistogram.New(DefaultLowestTrackableLatency, DefaultHighestTrackableLatency, DefaultSignificantDigits)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ls.GetIntervalHistogramInto(target)
	}
}

// BenchmarkRecordLatencyWithRotatingReader pits parallel writers against
// a reader rotating as fast as it can, the worst-case contention shape.
func BenchmarkRecordLatencyWithRotatingReader(b *testing.B) {
	core := detector.NewCore()
	defer core.Shutdown()
	ls, err := New(Config{PauseDetector: core})
	if err != nil {
		b.Fatal(err)
	}
	defer ls.Stop()

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		target := hdrhistogram.New(DefaultLowestTrackableLatency, DefaultHighestTrackableLatency, DefaultSignificantDigits)
		for {
			select {
			case <-stop:
				return
			default:
				ls.GetIntervalHistogramInto(target)
			}
		}
	}()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = ls.RecordLatency(5_000_000)
		}
	})

	b.StopTimer()
	close(stop)
	<-readerDone
}
