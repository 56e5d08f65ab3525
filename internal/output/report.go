package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Percentiles summarises one histogram for reporting.
type Percentiles struct {
	Count int64         `json:"count"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P99   time.Duration `json:"p99"`
	P999  time.Duration `json:"p999"`
	Max   time.Duration `json:"max"`
}

// Summarize extracts reporting percentiles from a histogram.
func Summarize(h *hdrhistogram.Histogram) Percentiles {
	return Percentiles{
		Count: h.TotalCount(),
		Mean:  time.Duration(int64(h.Mean())),
		P50:   time.Duration(h.ValueAtQuantile(50)),
		P90:   time.Duration(h.ValueAtQuantile(90)),
		P99:   time.Duration(h.ValueAtQuantile(99)),
		P999:  time.Duration(h.ValueAtQuantile(99.9)),
		Max:   time.Duration(h.Max()),
	}
}

// IntervalReport is one reporting interval's corrected and uncorrected
// views side by side.
type IntervalReport struct {
	Interval    int           `json:"interval"`
	Elapsed     time.Duration `json:"elapsed"`
	Corrected   Percentiles   `json:"corrected"`
	Uncorrected Percentiles   `json:"uncorrected"`
	Pauses      int           `json:"pauses"`
	PauseTotal  time.Duration `json:"pauseTotal"`
}

// WriteText renders the report as a human-readable table.
func (r *IntervalReport) WriteText(w io.Writer, scheme *ColorScheme) {
	scheme.Header.Fprintf(w, "--- interval %d (t+%s) ---\n", r.Interval, r.Elapsed.Round(time.Millisecond))
	if r.Pauses > 0 {
		scheme.Pause.Fprintf(w, "    %d pause(s) totalling %s detected\n", r.Pauses, r.PauseTotal.Round(time.Millisecond))
	}

	fmt.Fprintf(w, "%-14s %12s %12s\n", "", "recorded", "corrected")
	row := func(label string, uncorrected, corrected any) {
		scheme.Label.Fprintf(w, "%-14s", label)
		scheme.Value.Fprintf(w, " %12v", uncorrected)
		scheme.Corrected.Fprintf(w, " %12v\n", corrected)
	}
	row("count", r.Uncorrected.Count, r.Corrected.Count)
	row("mean", r.Uncorrected.Mean.Round(time.Microsecond), r.Corrected.Mean.Round(time.Microsecond))
	row("p50", r.Uncorrected.P50.Round(time.Microsecond), r.Corrected.P50.Round(time.Microsecond))
	row("p90", r.Uncorrected.P90.Round(time.Microsecond), r.Corrected.P90.Round(time.Microsecond))
	row("p99", r.Uncorrected.P99.Round(time.Microsecond), r.Corrected.P99.Round(time.Microsecond))
	row("p99.9", r.Uncorrected.P999.Round(time.Microsecond), r.Corrected.P999.Round(time.Microsecond))
	row("max", r.Uncorrected.Max.Round(time.Microsecond), r.Corrected.Max.Round(time.Microsecond))
}

// WriteJSON renders the report as a single JSON line.
func (r *IntervalReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(r)
}

// RunSummary is the final aggregate emitted when a run ends.
type RunSummary struct {
	Duration    time.Duration `json:"duration"`
	Intervals   int           `json:"intervals"`
	Corrected   Percentiles   `json:"corrected"`
	Uncorrected Percentiles   `json:"uncorrected"`
	Pauses      int           `json:"pauses"`
	PauseTotal  time.Duration `json:"pauseTotal"`
}

// WriteText renders the run summary.
func (s *RunSummary) WriteText(w io.Writer, scheme *ColorScheme) {
	scheme.Header.Fprintf(w, "=== run summary (%s, %d intervals) ===\n", s.Duration.Round(time.Millisecond), s.Intervals)
	if s.Pauses > 0 {
		scheme.Pause.Fprintf(w, "    %d pause(s) totalling %s detected\n", s.Pauses, s.PauseTotal.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "%-14s %12s %12s\n", "", "recorded", "corrected")
	row := func(label string, uncorrected, corrected any) {
		scheme.Label.Fprintf(w, "%-14s", label)
		scheme.Value.Fprintf(w, " %12v", uncorrected)
		scheme.Corrected.Fprintf(w, " %12v\n", corrected)
	}
	row("count", s.Uncorrected.Count, s.Corrected.Count)
	row("p50", s.Uncorrected.P50.Round(time.Microsecond), s.Corrected.P50.Round(time.Microsecond))
	row("p99", s.Uncorrected.P99.Round(time.Microsecond), s.Corrected.P99.Round(time.Microsecond))
	row("p99.9", s.Uncorrected.P999.Round(time.Microsecond), s.Corrected.P999.Round(time.Microsecond))
	row("max", s.Uncorrected.Max.Round(time.Microsecond), s.Corrected.Max.Round(time.Microsecond))
}

// WriteJSON renders the run summary as JSON.
func (s *RunSummary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
