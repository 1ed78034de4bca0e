package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/teslashibe/markerservo/pkg/actuator"
	"github.com/teslashibe/markerservo/pkg/debounce"
	"github.com/teslashibe/markerservo/pkg/marker"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var errNoFrame = errors.New("camera: no frame")

// frame is a scripted camera frame: the offset it is captured at and the
// marker IDs the detector will find in it.
type frame struct {
	at        time.Duration
	ids       []int
	detectErr error
}

// scriptSource plays frames in order, moving the fake clock to each frame's
// capture time, and fails once the script is exhausted.
type scriptSource struct {
	clock  *clockwork.FakeClock
	frames []frame
	next   int
}

func (s *scriptSource) Next() (frame, error) {
	if s.next >= len(s.frames) {
		return frame{}, errNoFrame
	}
	f := s.frames[s.next]
	s.next++
	if d := t0.Add(f.at).Sub(s.clock.Now()); d > 0 {
		s.clock.Advance(d)
	}
	return f, nil
}

type scriptDetector struct{}

func (scriptDetector) Detect(f frame) ([]marker.Marker, error) {
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	var out []marker.Marker
	for _, id := range f.ids {
		out = append(out, marker.Marker{ID: id, Corners: []marker.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}})
	}
	return out, nil
}

// quitOverlay asks to quit on the given frame number (1-based).
type quitOverlay struct {
	quitOn  int
	renders int
}

func (o *quitOverlay) Render(frame, []marker.Marker) (bool, error) {
	o.renders++
	return o.renders == o.quitOn, nil
}

type recordingSink struct {
	mu          sync.Mutex
	transitions []Transition
	err         error
}

func (s *recordingSink) Record(_ context.Context, t Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
	return s.err
}

type recordingStatus struct {
	updates []Status
}

func (r *recordingStatus) UpdateStatus(s Status) {
	r.updates = append(r.updates, s)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newTestLoop(t *testing.T, frames []frame, link actuator.Link, opts ...Option) *Loop[frame] {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	deps := Deps[frame]{
		Source:   &scriptSource{clock: clock, frames: frames},
		Detector: scriptDetector{},
		Machine:  debounce.New(),
		Link:     link,
	}
	opts = append([]Option{WithClock(clock), WithLogger(quietLogger()), WithRunID("test-run")}, opts...)
	l, err := New(deps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestRun_EndToEndScenario(t *testing.T) {
	frames := []frame{
		{at: ms(0), ids: []int{7}},
		{at: ms(500)},
		{at: ms(3000)},
		{at: ms(3500), ids: []int{7}},
		{at: ms(6000), ids: []int{7}},
	}
	link := actuator.NewMock()
	sink := &recordingSink{}
	l := newTestLoop(t, frames, link, WithSinks(sink))

	err := l.Run(context.Background())
	if !errors.Is(err, ErrFrameRead) || !errors.Is(err, errNoFrame) {
		t.Fatalf("Run: got %v, want frame read failure wrapping the source error", err)
	}

	want := []actuator.Command{actuator.MoveToZero, actuator.MoveToNinety, actuator.MoveToZero}
	got := link.Commands()
	if len(got) != len(want) {
		t.Fatalf("commands: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: got %v, want %v", i, got[i], want[i])
		}
	}

	if len(sink.transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(sink.transitions))
	}
	wantAt := []time.Duration{ms(0), ms(3000), ms(6000)}
	for i, tr := range sink.transitions {
		if tr.Seq != uint64(i+1) {
			t.Errorf("transition %d: seq %d", i, tr.Seq)
		}
		if tr.RunID != "test-run" {
			t.Errorf("transition %d: run id %q", i, tr.RunID)
		}
		if !tr.At.Equal(t0.Add(wantAt[i])) {
			t.Errorf("transition %d: at %v, want %v", i, tr.At.Sub(t0), wantAt[i])
		}
		if !tr.Delivered() {
			t.Errorf("transition %d: not delivered: %v", i, tr.Err)
		}
	}

	n, commands, failures := l.Stats()
	if n != 5 || commands != 3 || failures != 0 {
		t.Errorf("stats: got (%d, %d, %d), want (5, 3, 0)", n, commands, failures)
	}
}

func TestTick_Result(t *testing.T) {
	frames := []frame{
		{at: ms(0), ids: []int{3, 1}},
		{at: ms(100), ids: []int{3}},
	}
	l := newTestLoop(t, frames, actuator.NewMock())

	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !res.Emitted || res.Command != actuator.MoveToZero {
		t.Errorf("first tick: got %+v, want MoveToZero emitted", res)
	}
	if len(res.Markers) != 2 {
		t.Errorf("first tick: expected 2 markers, got %d", len(res.Markers))
	}

	res, err = l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Emitted {
		t.Errorf("second tick should not emit, got %v", res.Command)
	}
}

func TestTick_SendFailureContinues(t *testing.T) {
	frames := []frame{
		{at: ms(0), ids: []int{1}},
		{at: ms(2500)},
		{at: ms(5000), ids: []int{1}},
	}
	link := actuator.NewMock()
	calls := 0
	link.SendFunc = func(context.Context, actuator.Command) error {
		calls++
		if calls == 1 {
			return actuator.ErrWrite
		}
		return nil
	}
	sink := &recordingSink{}
	l := newTestLoop(t, frames, link, WithSinks(sink))

	err := l.Run(context.Background())
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("Run: %v", err)
	}

	// The failed MoveToZero is not retried; the machine already moved on
	if link.Failures() != 1 {
		t.Errorf("failures: got %d, want 1", link.Failures())
	}
	got := link.Commands()
	if len(got) != 2 || got[0] != actuator.MoveToNinety || got[1] != actuator.MoveToZero {
		t.Errorf("delivered commands: got %v", got)
	}

	if len(sink.transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(sink.transitions))
	}
	first := sink.transitions[0]
	if first.Delivered() || !errors.Is(first.Err, actuator.ErrWrite) {
		t.Errorf("first transition should carry the write error, got %v", first.Err)
	}
	if first.ErrorText() == "" {
		t.Error("expected error text on failed transition")
	}

	_, _, failures := l.Stats()
	if failures != 1 {
		t.Errorf("stats failures: got %d, want 1", failures)
	}
}

func TestTick_DetectErrorIsEmptyDetection(t *testing.T) {
	frames := []frame{
		{at: ms(0), ids: []int{1}},
		{at: ms(2500), detectErr: errors.New("detector: bad frame")},
	}
	link := actuator.NewMock()
	l := newTestLoop(t, frames, link)

	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("detect errors must not end the tick: %v", err)
	}
	if !res.Emitted || res.Command != actuator.MoveToNinety {
		t.Errorf("failed detection should count as no markers, got %+v", res)
	}
}

func TestTick_SinkErrorIgnored(t *testing.T) {
	frames := []frame{{at: ms(0), ids: []int{1}}}
	failing := &recordingSink{err: errors.New("history: disk full")}
	after := &recordingSink{}
	l := newTestLoop(t, frames, actuator.NewMock(), WithSinks(failing, after))

	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(after.transitions) != 1 {
		t.Error("later sinks should still receive the transition")
	}
}

func TestTick_SinkFunc(t *testing.T) {
	var got []Transition
	sink := SinkFunc(func(_ context.Context, tr Transition) error {
		got = append(got, tr)
		return nil
	})
	l := newTestLoop(t, []frame{{at: ms(0), ids: []int{9}}}, actuator.NewMock(), WithSinks(sink))

	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(got) != 1 || len(got[0].MarkerIDs) != 1 || got[0].MarkerIDs[0] != 9 {
		t.Errorf("got %+v", got)
	}
}

func TestTick_Status(t *testing.T) {
	frames := []frame{
		{at: ms(0), ids: []int{4}},
		{at: ms(500)},
	}
	status := &recordingStatus{}
	l := newTestLoop(t, frames, actuator.NewMock(), WithStatus(status))

	l.Tick(context.Background())
	l.Tick(context.Background())

	if len(status.updates) != 2 {
		t.Fatalf("expected 2 status updates, got %d", len(status.updates))
	}
	first := status.updates[0]
	if !first.MarkerDetected || first.LastCommand != "move_to_zero" || first.Commands != 1 {
		t.Errorf("first status: %+v", first)
	}
	if first.CooldownRemaining != 2*time.Second {
		t.Errorf("first status cooldown: got %v, want 2s", first.CooldownRemaining)
	}
	want := MarkerView{ID: 4, Area: 100, CenterX: 5, CenterY: 5}
	if first.Largest == nil || *first.Largest != want {
		t.Errorf("first status largest: got %+v, want %+v", first.Largest, want)
	}

	second := status.updates[1]
	if len(second.MarkerIDs) != 0 || !second.MarkerDetected {
		t.Errorf("second status should show no markers but detected state held: %+v", second)
	}
	if second.Largest != nil {
		t.Errorf("second status largest should be nil, got %+v", second.Largest)
	}
	if second.CooldownRemaining != 1500*time.Millisecond {
		t.Errorf("second status cooldown: got %v, want 1.5s", second.CooldownRemaining)
	}
	if second.Frames != 2 || second.RunID != "test-run" {
		t.Errorf("second status counters: %+v", second)
	}
}

func TestRun_QuitKey(t *testing.T) {
	frames := []frame{
		{at: ms(0)},
		{at: ms(100)},
		{at: ms(200)},
	}
	clock := clockwork.NewFakeClockAt(t0)
	overlay := &quitOverlay{quitOn: 2}
	l, err := New(Deps[frame]{
		Source:   &scriptSource{clock: clock, frames: frames},
		Detector: scriptDetector{},
		Machine:  debounce.New(),
		Link:     actuator.NewMock(),
		Overlay:  overlay,
	}, WithClock(clock), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("quit should end the run cleanly, got %v", err)
	}
	if frames, _, _ := l.Stats(); frames != 2 {
		t.Errorf("expected to stop after 2 frames, got %d", frames)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	link := actuator.NewMock()
	l := newTestLoop(t, []frame{{at: ms(0), ids: []int{1}}}, link)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: got %v, want nil", err)
	}
	if frames, _, _ := l.Stats(); frames != 0 {
		t.Errorf("no frame should be read after cancel, got %d", frames)
	}
	if len(link.Commands()) != 0 {
		t.Error("no command should be sent after cancel")
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	clock := clockwork.NewFakeClock()
	full := Deps[frame]{
		Source:   &scriptSource{clock: clock},
		Detector: scriptDetector{},
		Machine:  debounce.New(),
		Link:     actuator.NewMock(),
	}

	tests := []struct {
		name   string
		mutate func(*Deps[frame])
	}{
		{"no source", func(d *Deps[frame]) { d.Source = nil }},
		{"no detector", func(d *Deps[frame]) { d.Detector = nil }},
		{"no machine", func(d *Deps[frame]) { d.Machine = nil }},
		{"no link", func(d *Deps[frame]) { d.Link = nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps := full
			tc.mutate(&deps)
			if _, err := New(deps); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("got %v, want ErrMissingDependency", err)
			}
		})
	}

	l, err := New(full)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.RunID() == "" {
		t.Error("expected a generated run id")
	}
}
