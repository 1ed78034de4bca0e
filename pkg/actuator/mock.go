package actuator

import (
	"context"
	"sync"
)

// Mock implements Link for testing.
// It records every command and can be made to fail via SendFunc.
type Mock struct {
	// SendFunc is called when Send is invoked.
	// If nil, Send succeeds.
	SendFunc func(ctx context.Context, cmd Command) error

	mu       sync.Mutex
	commands []Command
	failures int
	closes   int
}

// NewMock creates a mock link that accepts every command.
func NewMock() *Mock {
	return &Mock{}
}

// Send records the command and calls SendFunc.
func (m *Mock) Send(ctx context.Context, cmd Command) error {
	var err error
	if m.SendFunc != nil {
		err = m.SendFunc(ctx, cmd)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failures++
		return err
	}
	m.commands = append(m.commands, cmd)
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// Commands returns the successfully sent commands in order.
func (m *Mock) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// Failures returns how many sends failed.
func (m *Mock) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Closes returns how many times Close was called.
func (m *Mock) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
