// Package telemetry publishes servo transitions to NATS so other services
// can follow what the marker loop is doing.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/teslashibe/markerservo/pkg/pipeline"
)

// DefaultSubject is the subject prefix; events go to <prefix>.<command>.
const DefaultSubject = "markerservo.commands"

var (
	ErrConnect = errors.New("telemetry: connect failed")
	ErrClosed  = errors.New("telemetry: publisher closed")
)

// Event is the JSON payload published for each transition.
type Event struct {
	RunID     string    `json:"run_id"`
	Seq       uint64    `json:"seq"`
	Command   string    `json:"command"`
	Byte      string    `json:"byte"`
	Angle     int       `json:"angle"`
	MarkerIDs []int     `json:"marker_ids"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent converts a transition into its wire form.
func NewEvent(t pipeline.Transition) Event {
	ids := t.MarkerIDs
	if ids == nil {
		ids = []int{}
	}
	return Event{
		RunID:     t.RunID,
		Seq:       t.Seq,
		Command:   t.Command.String(),
		Byte:      string([]byte{t.Command.Byte()}),
		Angle:     t.Command.Angle(),
		MarkerIDs: ids,
		Delivered: t.Delivered(),
		Error:     t.ErrorText(),
		Timestamp: t.At,
	}
}

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher sends transition events to NATS. It implements pipeline.Sink.
type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect dials the NATS server at url. Reconnects are handled by the
// client library; publishes while disconnected are buffered.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("markerservo"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, url, err)
	}

	logger.Info("NATS publisher connected", "url", url, "subject", subjectOrDefault(subject))
	return newPublisher(nc, subject, logger), nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:    c,
		subject: subjectOrDefault(subject),
		logger:  logger,
	}
}

func subjectOrDefault(s string) string {
	if s == "" {
		return DefaultSubject
	}
	return s
}

// Subject returns the subject an event for the given command is sent on.
func (p *Publisher) Subject(command string) string {
	return p.subject + "." + command
}

// Record publishes the transition.
func (p *Publisher) Record(_ context.Context, t pipeline.Transition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	ev := NewEvent(t)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("telemetry: marshal event: %w", err)
	}

	subj := p.Subject(ev.Command)
	if err := p.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("telemetry: publish %s: %w", subj, err)
	}

	p.logger.Debug("published transition", "subject", subj, "seq", ev.Seq)
	return nil
}

// Close drains pending messages and closes the connection. Safe to call
// more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("telemetry: drain: %w", err)
	}
	p.logger.Info("NATS publisher closed")
	return nil
}

var _ pipeline.Sink = (*Publisher)(nil)
