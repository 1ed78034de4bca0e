package actuator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Default serial settings (matches the servo sketch).
const (
	DefaultBaudRate = 9600
	DefaultSettle   = 2 * time.Second
)

// Config holds serial link configuration.
type Config struct {
	Port     string        // Device path or name, e.g. /dev/ttyACM0 or COM5
	BaudRate int           // Line speed (default 9600)
	Settle   time.Duration // Wait after open; the board resets when the port opens
}

// DefaultConfig returns defaults for an Arduino-class servo controller.
func DefaultConfig() Config {
	return Config{
		BaudRate: DefaultBaudRate,
		Settle:   DefaultSettle,
	}
}

// Serial is a Link backed by a serial port.
type Serial struct {
	name   string
	port   io.WriteCloser
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	sent   uint64

	closeOnce sync.Once
	closeErr  error
}

// OpenSerial opens the configured port and waits for the board to settle.
// The settle wait is cut short if ctx is cancelled.
func OpenSerial(ctx context.Context, cfg Config, logger *slog.Logger) (*Serial, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no port configured", ErrOpen)
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, &PortError{Port: cfg.Port, Err: fmt.Errorf("%w: %v", ErrOpen, err)}
	}

	s := newSerial(cfg.Port, port, logger)
	s.logger.Info("serial port opened", "baud", cfg.BaudRate, "settle", cfg.Settle)

	if cfg.Settle > 0 {
		timer := time.NewTimer(cfg.Settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			s.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return s, nil
}

func newSerial(name string, port io.WriteCloser, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		name:   name,
		port:   port,
		logger: logger.With("port", name),
	}
}

// Send writes the single command byte to the port.
func (s *Serial) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cmd.Valid() {
		return fmt.Errorf("%w: %v", ErrUnknownCommand, cmd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &PortError{Port: s.name, Err: ErrClosed}
	}

	n, err := s.port.Write([]byte{cmd.Byte()})
	if err != nil {
		return &PortError{Port: s.name, Err: fmt.Errorf("%w: %v", ErrWrite, err)}
	}
	if n != 1 {
		return &PortError{Port: s.name, Err: fmt.Errorf("%w: short write (%d bytes)", ErrWrite, n)}
	}

	s.sent++
	s.logger.Debug("command written", "command", cmd.String(), "byte", string(cmd.Byte()))
	return nil
}

// Sent returns the number of commands successfully written.
func (s *Serial) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Name returns the port name.
func (s *Serial) Name() string {
	return s.name
}

// Close releases the port. Safe to call more than once.
func (s *Serial) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.port.Close()
		s.logger.Info("serial port closed")
	})
	return s.closeErr
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("actuator: list ports: %w", err)
	}
	return ports, nil
}
