// Package aruco detects ArUco markers using OpenCV's objdetect module.
package aruco

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/markerservo/pkg/marker"
	"gocv.io/x/gocv"
)

var (
	// ErrUnknownDictionary is returned for a dictionary name OpenCV does not predefine.
	ErrUnknownDictionary = errors.New("aruco: unknown dictionary")

	// ErrEmptyFrame is returned when asked to detect in an empty Mat.
	ErrEmptyFrame = errors.New("aruco: empty frame")

	// ErrClosed is returned when detecting with a closed detector.
	ErrClosed = errors.New("aruco: detector closed")
)

// Config holds detector configuration
type Config struct {
	Dictionary string // Predefined dictionary name, e.g. "4x4_250"
}

// DefaultConfig returns the dictionary the servo markers are printed from
func DefaultConfig() Config {
	return Config{Dictionary: DefaultDictionary}
}

// Detector finds ArUco markers in BGR or grayscale frames.
type Detector struct {
	detector gocv.ArucoDetector
	logger   *slog.Logger
	mu       sync.Mutex // Protects detection and Close
	closed   bool
}

// New creates a detector for the configured dictionary with default
// detection parameters.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	dictType, err := ParseDictionary(cfg.Dictionary)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dict := gocv.GetPredefinedDictionary(dictType)
	params := gocv.NewArucoDetectorParameters()

	return &Detector{
		detector: gocv.NewArucoDetectorWithParams(dict, params),
		logger:   logger,
	}, nil
}

// Detect returns the markers in frame. An empty result means no marker.
func (d *Detector) Detect(frame gocv.Mat) ([]marker.Marker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	corners, ids, _ := d.detector.DetectMarkers(frame)
	if len(corners) != len(ids) {
		return nil, fmt.Errorf("aruco: %d corner sets for %d ids", len(corners), len(ids))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	markers := make([]marker.Marker, len(ids))
	for i, id := range ids {
		pts := make([]marker.Point, len(corners[i]))
		for j, c := range corners[i] {
			pts[j] = marker.Point{X: c.X, Y: c.Y}
		}
		markers[i] = marker.Marker{ID: id, Corners: pts}
	}

	d.logger.Debug("markers detected", "count", len(markers))
	return markers, nil
}

// Close releases the detector. Safe to call more than once.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.detector.Close()
	return nil
}
