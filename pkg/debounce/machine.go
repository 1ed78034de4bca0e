// Package debounce turns per-frame marker detections into servo commands.
//
// Machine is a two-state machine (no marker / marker present). Both
// transitions are gated by the same cooldown, measured from the last command
// it emitted, so detection flicker shorter than the cooldown never reaches
// the servo.
package debounce

import (
	"time"

	"github.com/teslashibe/markerservo/pkg/actuator"
)

// DefaultCooldown is the minimum time between two state-changing commands.
const DefaultCooldown = 2 * time.Second

// Event is the detection result for one frame.
type Event struct {
	Time      time.Time // When the frame was observed (monotonic clock reading)
	MarkerIDs []int     // Marker IDs present in the frame, possibly empty
}

// Present reports whether any marker was seen.
func (e Event) Present() bool {
	return len(e.MarkerIDs) > 0
}

// State is the machine's internal state.
type State struct {
	MarkerDetected bool
	LastCommand    time.Time
	Armed          bool // LastCommand holds a command or startup hold time
}

// Option configures a Machine.
type Option func(*Machine)

// WithCooldown sets the cooldown window. Non-positive values are ignored.
func WithCooldown(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithStartupHold seeds the last command time with start, so the first
// command also waits a full cooldown after start.
func WithStartupHold(start time.Time) Option {
	return func(m *Machine) {
		m.state.LastCommand = start
		m.state.Armed = true
	}
}

// Machine debounces detections into at most one command per transition.
// It is not safe for concurrent use.
type Machine struct {
	cooldown time.Duration
	state    State
}

// New creates a machine in the no-marker state.
func New(opts ...Option) *Machine {
	m := &Machine{cooldown: DefaultCooldown}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe feeds one detection event and returns the command to send, if any.
//
// A marker appearing while none was detected yields MoveToZero; all markers
// disappearing while one was detected yields MoveToNinety. Either transition
// only happens once more than the cooldown has elapsed since the previous
// command. Observations that do not cause a transition leave the state
// untouched, including the cooldown timer.
func (m *Machine) Observe(ev Event) (actuator.Command, bool) {
	present := ev.Present()
	if present == m.state.MarkerDetected {
		return 0, false
	}
	if !m.cooledDown(ev.Time) {
		return 0, false
	}

	m.state.MarkerDetected = present
	m.state.LastCommand = ev.Time
	m.state.Armed = true

	if present {
		return actuator.MoveToZero, true
	}
	return actuator.MoveToNinety, true
}

func (m *Machine) cooledDown(now time.Time) bool {
	if !m.state.Armed {
		return true
	}
	return now.Sub(m.state.LastCommand) > m.cooldown
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	return m.state
}

// Cooldown returns the configured cooldown window.
func (m *Machine) Cooldown() time.Duration {
	return m.cooldown
}

// Remaining returns the time left in the current cooldown window.
func (m *Machine) Remaining(now time.Time) time.Duration {
	if !m.state.Armed {
		return 0
	}
	left := m.cooldown - now.Sub(m.state.LastCommand)
	if left < 0 {
		return 0
	}
	return left
}
