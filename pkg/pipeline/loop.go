// Package pipeline runs the per-frame loop: read a frame, detect markers,
// debounce, and drive the actuator.
//
// The loop is generic over the frame type so it can be driven by the
// OpenCV camera in production and by plain values in tests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/teslashibe/markerservo/pkg/actuator"
	"github.com/teslashibe/markerservo/pkg/debounce"
	"github.com/teslashibe/markerservo/pkg/marker"
	"github.com/teslashibe/markerservo/pkg/metrics"
)

// FrameSource yields frames. The returned frame stays valid until the next
// call to Next.
type FrameSource[F any] interface {
	Next() (F, error)
}

// Detector finds markers in a frame. An empty result is not an error.
type Detector[F any] interface {
	Detect(frame F) ([]marker.Marker, error)
}

// Overlay shows a frame with its markers and reports whether the operator
// asked to quit.
type Overlay[F any] interface {
	Render(frame F, markers []marker.Marker) (quit bool, err error)
}

// Deps are the collaborators of a Loop. Source, Detector, Machine and Link
// are required; Overlay may be nil.
type Deps[F any] struct {
	Source   FrameSource[F]
	Detector Detector[F]
	Machine  *debounce.Machine
	Link     actuator.Link
	Overlay  Overlay[F]
}

// Option configures a Loop.
type Option func(*options)

type options struct {
	runID   string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics metrics.Recorder
	sinks   []Sink
	status  StatusUpdater
}

// WithRunID sets the run identifier stamped on transitions. Defaults to a
// random UUID.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// WithClock sets the clock used to timestamp detections.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithSinks adds transition sinks. They are called in order.
func WithSinks(sinks ...Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithStatus sets the receiver of per-tick status snapshots.
func WithStatus(s StatusUpdater) Option {
	return func(o *options) { o.status = s }
}

// TickResult describes what one tick did.
type TickResult struct {
	Markers []marker.Marker
	Command actuator.Command // Valid only when Emitted
	Emitted bool
	Quit    bool
}

// Loop drives one frame at a time through detection and debouncing.
// It is single-threaded; Tick and Run must not be called concurrently.
type Loop[F any] struct {
	deps Deps[F]
	opts options

	frames       uint64
	seq          uint64
	sendFailures uint64
	lastCommand  actuator.Command
}

// New creates a loop.
func New[F any](deps Deps[F], opts ...Option) (*Loop[F], error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: frame source", ErrMissingDependency)
	case deps.Detector == nil:
		return nil, fmt.Errorf("%w: detector", ErrMissingDependency)
	case deps.Machine == nil:
		return nil, fmt.Errorf("%w: debounce machine", ErrMissingDependency)
	case deps.Link == nil:
		return nil, fmt.Errorf("%w: actuator link", ErrMissingDependency)
	}

	o := options{
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	return &Loop[F]{deps: deps, opts: o}, nil
}

// RunID returns the identifier stamped on this loop's transitions.
func (l *Loop[F]) RunID() string {
	return l.opts.runID
}

// Stats returns frame, command and failed-send counts.
func (l *Loop[F]) Stats() (frames, commands, sendFailures uint64) {
	return l.frames, l.seq, l.sendFailures
}

// Run ticks until ctx is done or the operator quits, both of which return
// nil. Any other tick error ends the run and is returned.
func (l *Loop[F]) Run(ctx context.Context) error {
	logger := l.opts.logger
	logger.Info("marker loop started",
		"run_id", l.opts.runID,
		"cooldown", l.deps.Machine.Cooldown(),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("marker loop stopped", "reason", ctx.Err(), "frames", l.frames, "commands", l.seq)
			return nil
		default:
		}

		if _, err := l.Tick(ctx); err != nil {
			if errors.Is(err, ErrQuit) {
				logger.Info("marker loop stopped", "reason", "quit key", "frames", l.frames, "commands", l.seq)
				return nil
			}
			logger.Error("marker loop failed", "error", err, "frames", l.frames)
			return err
		}
	}
}

// Tick processes a single frame.
func (l *Loop[F]) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	frame, err := l.deps.Source.Next()
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrFrameRead, err)
	}
	l.frames++
	l.opts.metrics.IncFrames()

	start := l.opts.clock.Now()
	markers, err := l.deps.Detector.Detect(frame)
	l.opts.metrics.ObserveDetectDuration(l.opts.clock.Since(start))
	if err != nil {
		l.opts.metrics.IncDetectError()
		l.opts.logger.Warn("marker detection failed", "error", fmt.Errorf("%w: %w", ErrDetect, err))
		markers = nil
	}
	res.Markers = markers

	ids := marker.IDs(markers)
	l.opts.metrics.SetMarkerPresent(len(ids) > 0)
	if len(ids) > 0 {
		l.opts.logger.Info("markers detected", "ids", ids)
	}

	now := l.opts.clock.Now()
	if cmd, ok := l.deps.Machine.Observe(debounce.Event{Time: now, MarkerIDs: ids}); ok {
		res.Command = cmd
		res.Emitted = true
		l.emit(ctx, cmd, ids, now)
	}

	if l.opts.status != nil {
		l.opts.status.UpdateStatus(l.status(markers, ids, now))
	}

	if l.deps.Overlay != nil {
		quit, err := l.deps.Overlay.Render(frame, markers)
		if err != nil {
			l.opts.logger.Warn("overlay render failed", "error", err)
		}
		if quit {
			res.Quit = true
			return res, ErrQuit
		}
	}

	return res, nil
}

func (l *Loop[F]) emit(ctx context.Context, cmd actuator.Command, ids []int, at time.Time) {
	l.seq++
	l.lastCommand = cmd
	t := Transition{
		RunID:     l.opts.runID,
		Seq:       l.seq,
		Command:   cmd,
		MarkerIDs: ids,
		At:        at,
	}

	if err := l.deps.Link.Send(ctx, cmd); err != nil {
		t.Err = err
		l.sendFailures++
		l.opts.metrics.IncCommand(cmd.String(), metrics.ResultFailed)
		l.opts.logger.Warn("servo command not delivered",
			"command", cmd.String(),
			"error", err,
		)
	} else {
		l.opts.metrics.IncCommand(cmd.String(), metrics.ResultDelivered)
		l.opts.logger.Info("servo command sent",
			"command", cmd.String(),
			"angle", cmd.Angle(),
			"seq", l.seq,
		)
	}

	// Sinks still see the last transition after shutdown was requested
	sinkCtx := context.WithoutCancel(ctx)
	for _, s := range l.opts.sinks {
		if err := s.Record(sinkCtx, t); err != nil {
			l.opts.logger.Warn("transition sink failed", "seq", t.Seq, "error", err)
		}
	}
}

func (l *Loop[F]) status(markers []marker.Marker, ids []int, now time.Time) Status {
	st := l.deps.Machine.State()
	s := Status{
		RunID:             l.opts.runID,
		Frames:            l.frames,
		MarkerIDs:         ids,
		MarkerDetected:    st.MarkerDetected,
		LastCommandAt:     st.LastCommand,
		CooldownRemaining: l.deps.Machine.Remaining(now),
		Commands:          l.seq,
		SendFailures:      l.sendFailures,
		UpdatedAt:         now,
	}
	if l.seq > 0 {
		s.LastCommand = l.lastCommand.String()
	}
	if m := marker.Largest(markers); m != nil {
		x, y := m.Center()
		s.Largest = &MarkerView{ID: m.ID, Area: m.Area(), CenterX: x, CenterY: y}
	}
	return s
}
