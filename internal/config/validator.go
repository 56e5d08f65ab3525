package config

import (
	"fmt"
	"strings"
)

// ValidationError is a single field-level configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add appends an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any error was collected.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate applies the semantic checks the schema cannot express.
//
// Returns nil if valid, or a ValidationErrors with every problem found.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.Workload.Rate <= 0 {
		errs.Add("workload.rate", "must be positive")
	}
	if c.Workload.Workers < 1 {
		errs.Add("workload.workers", "must be at least 1")
	}
	if c.Workload.OperationLatency <= 0 {
		errs.Add("workload.operationLatency", "must be positive")
	}

	if c.Histogram.Lowest < 1 {
		errs.Add("histogram.lowest", "must be at least 1ns")
	}
	if c.Histogram.Highest < 2*c.Histogram.Lowest {
		errs.Add("histogram.highest", "must be at least twice histogram.lowest")
	}
	if c.Histogram.SignificantDigits < 1 || c.Histogram.SignificantDigits > 5 {
		errs.Add("histogram.significantDigits", "must be between 1 and 5")
	}
	if c.Workload.OperationLatency > c.Histogram.Highest {
		errs.Add("workload.operationLatency", "exceeds histogram.highest")
	}

	if c.Estimator.Window < 2 {
		errs.Add("estimator.window", "must be at least 2")
	}
	if c.Estimator.TimeCap <= 0 {
		errs.Add("estimator.timeCap", "must be positive")
	}

	if c.Detector.Threads < 1 || c.Detector.Threads > 64 {
		errs.Add("detector.threads", "must be between 1 and 64")
	}
	if c.Detector.Threshold <= 0 {
		errs.Add("detector.threshold", "must be positive")
	}
	if !c.Detector.Spin && c.Detector.SleepInterval <= 0 {
		errs.Add("detector.sleepInterval", "must be positive unless spin mode is enabled")
	}

	if c.Report.Interval <= 0 {
		errs.Add("report.interval", "must be positive")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
