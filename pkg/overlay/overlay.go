// Package overlay draws detected markers onto frames for people to look at,
// either in a local window or as JPEG frames pushed to the dashboard.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/markerservo/pkg/marker"
	"gocv.io/x/gocv"
)

// Outline style
var (
	OutlineColor     = color.RGBA{0, 255, 0, 0}
	OutlineThickness = 2
	LabelColor       = color.RGBA{0, 255, 0, 0}
)

// DefaultWindow is the window title used when none is configured.
const DefaultWindow = "Frame"

// FrameSink receives annotated JPEG frames (e.g. the web dashboard).
type FrameSink interface {
	SendCameraFrame(jpeg []byte)
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithWindow shows annotated frames in a native window with the given title.
// The window also provides the quit key.
func WithWindow(title string) Option {
	return func(o *Overlay) {
		if title == "" {
			title = DefaultWindow
		}
		o.title = title
	}
}

// WithStream pushes annotated frames to sink, at most maxFPS per second.
// A maxFPS of zero sends every frame.
func WithStream(sink FrameSink, maxFPS int) Option {
	return func(o *Overlay) {
		o.sink = sink
		if maxFPS > 0 {
			o.minGap = time.Second / time.Duration(maxFPS)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Overlay) {
		o.logger = logger
	}
}

// Overlay annotates frames and hands them to a window and/or a stream.
type Overlay struct {
	title  string
	window *gocv.Window

	sink     FrameSink
	minGap   time.Duration
	lastSent time.Time

	logger    *slog.Logger
	closeOnce sync.Once
}

// New creates an overlay. The window, if any, is created immediately so
// display failures surface at startup.
func New(opts ...Option) *Overlay {
	o := &Overlay{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.title != "" {
		o.window = gocv.NewWindow(o.title)
	}
	return o
}

// Render draws the markers onto frame, publishes it, and polls the window
// for the quit key. It reports quit when 'q' was pressed, and returns any
// error encoding the streamed frame.
func (o *Overlay) Render(frame gocv.Mat, markers []marker.Marker) (bool, error) {
	if frame.Empty() {
		return false, nil
	}

	Annotate(&frame, markers)

	// A failed encode skips one streamed frame; the window still updates
	var err error
	if o.sink != nil && o.streamDue() {
		var jpeg []byte
		if jpeg, err = EncodeJPEG(frame); err == nil {
			o.sink.SendCameraFrame(jpeg)
		}
	}

	if o.window == nil {
		return false, err
	}
	o.window.IMShow(frame)
	return isQuitKey(o.window.WaitKey(1)), err
}

func (o *Overlay) streamDue() bool {
	now := time.Now()
	if o.minGap > 0 && !o.lastSent.IsZero() && now.Sub(o.lastSent) < o.minGap {
		return false
	}
	o.lastSent = now
	return true
}

// Close destroys the window. Safe to call more than once.
func (o *Overlay) Close() error {
	var err error
	o.closeOnce.Do(func() {
		if o.window != nil {
			err = o.window.Close()
			o.logger.Info("display window closed", "title", o.title)
		}
	})
	return err
}

// Annotate draws a closed outline and the ID of every marker onto frame.
func Annotate(frame *gocv.Mat, markers []marker.Marker) {
	for _, m := range markers {
		poly := m.Polygon()
		if len(poly) < 2 {
			continue
		}

		pv := gocv.NewPointsVectorFromPoints([][]image.Point{poly})
		gocv.Polylines(frame, pv, true, OutlineColor, OutlineThickness)
		pv.Close()

		gocv.PutText(frame, strconv.Itoa(m.ID), poly[0].Add(image.Pt(0, -6)),
			gocv.FontHersheySimplex, 0.6, LabelColor, 2)
	}
}

// EncodeJPEG encodes frame as a JPEG image.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("overlay: encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func isQuitKey(key int) bool {
	if key < 0 {
		return false
	}
	k := key & 0xFF
	return k == 'q' || k == 'Q'
}
