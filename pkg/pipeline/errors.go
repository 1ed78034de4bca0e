package pipeline

import "errors"

var (
	// ErrFrameRead ends the run; the camera stopped producing frames
	ErrFrameRead = errors.New("pipeline: frame read failed")

	// ErrDetect is logged and the frame is treated as having no markers
	ErrDetect = errors.New("pipeline: marker detection failed")

	// ErrQuit is returned by Tick when the operator pressed the quit key
	ErrQuit = errors.New("pipeline: quit requested")

	// ErrMissingDependency is returned by New when a required collaborator is nil
	ErrMissingDependency = errors.New("pipeline: missing dependency")
)
