// Package metrics exposes counters and timings for the marker loop.
package metrics

import "time"

// ResultLabel enumerates command delivery outcomes.
type ResultLabel string

const (
	ResultDelivered ResultLabel = "delivered"
	ResultFailed    ResultLabel = "failed"
)

// Recorder defines observability hooks for the tick loop. Implementations
// may forward to Prometheus or drop everything (NoopRecorder).
type Recorder interface {
	IncFrames()
	ObserveDetectDuration(d time.Duration)
	IncDetectError()
	SetMarkerPresent(present bool)
	IncCommand(cmd string, result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncFrames()                          {}
func (NoopRecorder) ObserveDetectDuration(time.Duration) {}
func (NoopRecorder) IncDetectError()                     {}
func (NoopRecorder) SetMarkerPresent(bool)               {}
func (NoopRecorder) IncCommand(string, ResultLabel)      {}
