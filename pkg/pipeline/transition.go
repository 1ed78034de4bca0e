package pipeline

import (
	"context"
	"time"

	"github.com/teslashibe/markerservo/pkg/actuator"
)

// Transition is one emitted command and its delivery outcome.
type Transition struct {
	RunID     string
	Seq       uint64 // 1-based within the run
	Command   actuator.Command
	MarkerIDs []int // Marker IDs in the frame that caused the command
	At        time.Time
	Err       error // Non-nil when the write to the actuator failed
}

// Delivered reports whether the command reached the actuator link.
func (t Transition) Delivered() bool {
	return t.Err == nil
}

// ErrorText returns the delivery error message, or "".
func (t Transition) ErrorText() string {
	if t.Err == nil {
		return ""
	}
	return t.Err.Error()
}

// Sink receives every transition (history store, event bus, dashboard).
type Sink interface {
	Record(ctx context.Context, t Transition) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, t Transition) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, t Transition) error {
	return f(ctx, t)
}

// Status is a snapshot of the loop published once per tick.
type Status struct {
	RunID             string        `json:"run_id"`
	Frames            uint64        `json:"frames"`
	MarkerIDs         []int         `json:"marker_ids"`
	MarkerDetected    bool          `json:"marker_detected"`
	Largest           *MarkerView   `json:"largest,omitempty"`
	LastCommand       string        `json:"last_command,omitempty"`
	LastCommandAt     time.Time     `json:"last_command_at,omitzero"`
	CooldownRemaining time.Duration `json:"cooldown_remaining_ns"`
	Commands          uint64        `json:"commands"`
	SendFailures      uint64        `json:"send_failures"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// MarkerView locates the largest marker in the current frame.
type MarkerView struct {
	ID      int     `json:"id"`
	Area    float64 `json:"area"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

// StatusUpdater receives a status snapshot after every tick.
type StatusUpdater interface {
	UpdateStatus(s Status)
}
