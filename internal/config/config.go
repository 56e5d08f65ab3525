// Package config provides configuration parsing and validation for the
// hiccup demo runner.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the root configuration for a demo run.
//
// Example YAML:
//
//	workload:
//	  rate: 200
//	  operationLatency: 1ms
//	  workers: 2
//	histogram:
//	  lowest: 1us
//	  highest: 1h
//	  significantDigits: 2
//	estimator:
//	  window: 1024
//	  timeCap: 10s
//	detector:
//	  sleepInterval: 1ms
//	  threshold: 1ms
//	  threads: 3
//	report:
//	  interval: 2s
type RunConfig struct {
	// Workload shapes the synthetic recording load.
	Workload WorkloadConfig `json:"workload" yaml:"workload"`

	// Histogram configures the value range and precision.
	Histogram HistogramConfig `json:"histogram,omitempty" yaml:"histogram,omitempty"`

	// Estimator configures the interval estimator.
	Estimator EstimatorConfig `json:"estimator,omitempty" yaml:"estimator,omitempty"`

	// Detector configures the pause detector.
	Detector DetectorConfig `json:"detector,omitempty" yaml:"detector,omitempty"`

	// Report configures interval reporting.
	Report ReportConfig `json:"report,omitempty" yaml:"report,omitempty"`
}

// WorkloadConfig shapes the synthetic recording workload.
type WorkloadConfig struct {
	// Rate is the target recordings per second.
	Rate float64 `json:"rate" yaml:"rate"`

	// OperationLatency is the fixed latency recorded per operation.
	OperationLatency Duration `json:"operationLatency,omitempty" yaml:"operationLatency,omitempty"`

	// Workers is the number of concurrent recording goroutines.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// HistogramConfig configures the latency histogram range.
type HistogramConfig struct {
	Lowest            Duration `json:"lowest,omitempty" yaml:"lowest,omitempty"`
	Highest           Duration `json:"highest,omitempty" yaml:"highest,omitempty"`
	SignificantDigits int      `json:"significantDigits,omitempty" yaml:"significantDigits,omitempty"`
}

// EstimatorConfig configures the interval estimator.
type EstimatorConfig struct {
	// Window is the moving window length (rounded up to a power of two).
	Window int `json:"window,omitempty" yaml:"window,omitempty"`

	// TimeCap bounds the age of estimator samples.
	TimeCap Duration `json:"timeCap,omitempty" yaml:"timeCap,omitempty"`
}

// DetectorConfig configures the consensus pause detector.
type DetectorConfig struct {
	SleepInterval Duration `json:"sleepInterval,omitempty" yaml:"sleepInterval,omitempty"`
	Threshold     Duration `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Threads       int      `json:"threads,omitempty" yaml:"threads,omitempty"`
	Spin          bool     `json:"spin,omitempty" yaml:"spin,omitempty"`
}

// ReportConfig configures interval reporting.
type ReportConfig struct {
	// Interval is how often the reporter rotates and prints.
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// Default returns a RunConfig mirroring the library defaults with a
// modest 200/s workload.
func Default() *RunConfig {
	return &RunConfig{
		Workload: WorkloadConfig{
			Rate:             200,
			OperationLatency: Duration(time.Millisecond),
			Workers:          1,
		},
		Histogram: HistogramConfig{
			Lowest:            Duration(time.Microsecond),
			Highest:           Duration(time.Hour),
			SignificantDigits: 2,
		},
		Estimator: EstimatorConfig{
			Window:  1024,
			TimeCap: Duration(10 * time.Second),
		},
		Detector: DetectorConfig{
			SleepInterval: Duration(time.Millisecond),
			Threshold:     Duration(time.Millisecond),
			Threads:       3,
		},
		Report: ReportConfig{
			Interval: Duration(2 * time.Second),
		},
	}
}

// Duration is a time.Duration that unmarshals from human-readable YAML
// strings like "30s" or "1ms".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its canonical string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Nanos returns the value in nanoseconds.
func (d Duration) Nanos() int64 {
	return int64(d)
}
