package automation

import "time"

// MetricsRecorder receives engine measurements. The metrics package provides
// a Prometheus implementation.
type MetricsRecorder interface {
	// RecordUnit observes one unit invocation.
	RecordUnit(kind UnitKind, name string, duration time.Duration, err error)
	// RecordRun observes one automation run ending in status.
	RecordRun(automation, status string, duration time.Duration)
	// RecordPaused reports the number of outstanding paused executions.
	RecordPaused(count int)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) RecordUnit(UnitKind, string, time.Duration, error) {}
func (NopMetrics) RecordRun(string, string, time.Duration)           {}
func (NopMetrics) RecordPaused(int)                                  {}
