package overlay

import (
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/markerservo/pkg/marker"
	"gocv.io/x/gocv"
)

// recordingSink captures streamed frames
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSink) SendCameraFrame(jpeg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, jpeg)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func testMarker() marker.Marker {
	return marker.Marker{
		ID:      7,
		Corners: []marker.Point{{20, 20}, {80, 20}, {80, 80}, {20, 80}},
	}
}

func TestIsQuitKey(t *testing.T) {
	tests := []struct {
		key  int
		want bool
	}{
		{-1, false},
		{'q', true},
		{'Q', true},
		{'q' | 0x100000, true}, // modifier bits on some platforms
		{'x', false},
		{27, false},
	}

	for _, tc := range tests {
		if got := isQuitKey(tc.key); got != tc.want {
			t.Errorf("isQuitKey(%d): got %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestRender_StreamsJPEG(t *testing.T) {
	sink := &recordingSink{}
	o := New(WithStream(sink, 0))
	defer o.Close()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	quit, err := o.Render(frame, []marker.Marker{testMarker()})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if quit {
		t.Error("headless overlay should never quit")
	}

	if sink.count() != 1 {
		t.Fatalf("expected 1 streamed frame, got %d", sink.count())
	}
	jpeg := sink.frames[0]
	if len(jpeg) < 4 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
		t.Errorf("streamed frame is not a JPEG")
	}
}

func TestRender_DrawsOutline(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	Annotate(&frame, []marker.Marker{testMarker()})

	// Green channel on the top edge of the outline
	px := frame.GetVecbAt(20, 50)
	if px[1] != 255 {
		t.Errorf("expected green outline at (50,20), got %v", px)
	}
}

func TestRender_AnnotatesWithoutWindow(t *testing.T) {
	o := New()
	defer o.Close()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	quit, err := o.Render(frame, []marker.Marker{testMarker()})
	if quit || err != nil {
		t.Fatalf("got (%v, %v), want (false, nil)", quit, err)
	}
	// Render draws into the caller's frame
	if px := frame.GetVecbAt(80, 50); px[1] != 255 {
		t.Errorf("expected green outline at (50,80), got %v", px)
	}
}

func TestRender_StreamThrottle(t *testing.T) {
	sink := &recordingSink{}
	o := New(WithStream(sink, 1))
	defer o.Close()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 60, 80, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < 5; i++ {
		o.Render(frame, nil)
	}
	if sink.count() != 1 {
		t.Errorf("1 FPS stream should send once in a burst, got %d", sink.count())
	}

	o.lastSent = time.Now().Add(-2 * time.Second)
	o.Render(frame, nil)
	if sink.count() != 2 {
		t.Errorf("expected a second frame after the gap, got %d", sink.count())
	}
}

func TestRender_EmptyFrame(t *testing.T) {
	sink := &recordingSink{}
	o := New(WithStream(sink, 0))
	defer o.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	if quit, err := o.Render(frame, nil); quit || err != nil {
		t.Errorf("got (%v, %v), want (false, nil)", quit, err)
	}
	if sink.count() != 0 {
		t.Error("empty frame should not be streamed")
	}
}
