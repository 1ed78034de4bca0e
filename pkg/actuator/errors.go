package actuator

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrOpen is returned when the serial port cannot be opened.
	ErrOpen = errors.New("actuator: open failed")

	// ErrWrite is returned when a command byte could not be written.
	ErrWrite = errors.New("actuator: write failed")

	// ErrClosed is returned when sending on a closed link.
	ErrClosed = errors.New("actuator: link closed")

	// ErrUnknownCommand is returned when decoding a byte that is not a command.
	ErrUnknownCommand = errors.New("actuator: unknown command")
)

// PortError wraps an error with the serial port it came from.
type PortError struct {
	Port string
	Err  error
}

// Error implements the error interface.
func (e *PortError) Error() string {
	return fmt.Sprintf("actuator [%s]: %v", e.Port, e.Err)
}

// Unwrap returns the underlying error.
func (e *PortError) Unwrap() error {
	return e.Err
}
