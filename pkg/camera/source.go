package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Sentinel errors for capture failures.
var (
	// ErrOpen is returned when the capture device cannot be opened.
	ErrOpen = errors.New("camera: open failed")

	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("camera: unable to read frame")

	// ErrClosed is returned when reading from a closed source.
	ErrClosed = errors.New("camera: source closed")
)

// Source reads frames from a capture device into a single reused Mat.
type Source struct {
	webcam *gocv.VideoCapture
	frame  gocv.Mat
	config Config
	logger *slog.Logger

	frames uint64
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens the configured device and applies the requested mode.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: invalid config: %v", ErrOpen, errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	webcam, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrOpen, cfg.Device, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrOpen, cfg.Device)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	s := &Source{
		webcam: webcam,
		frame:  gocv.NewMat(),
		config: cfg,
		logger: logger.With("device", cfg.Device),
	}

	s.logger.Info("camera opened",
		"width", int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(webcam.Get(gocv.VideoCaptureFrameHeight)),
		"fps", webcam.Get(gocv.VideoCaptureFPS))

	return s, nil
}

// Next reads the next frame. The returned Mat is owned by the Source and
// is only valid until the following call to Next or Close.
func (s *Source) Next() (gocv.Mat, error) {
	if s.closed {
		return gocv.Mat{}, ErrClosed
	}
	if ok := s.webcam.Read(&s.frame); !ok {
		return gocv.Mat{}, ErrReadFailed
	}
	if s.frame.Empty() {
		return gocv.Mat{}, ErrReadFailed
	}
	s.frames++
	return s.frame, nil
}

// Frames returns how many frames have been read.
func (s *Source) Frames() uint64 {
	return s.frames
}

// Close releases the device and the frame buffer. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		err := s.webcam.Close()
		if ferr := s.frame.Close(); err == nil {
			err = ferr
		}
		s.closeErr = err
		s.logger.Info("camera released", "frames", s.frames)
	})
	return s.closeErr
}
