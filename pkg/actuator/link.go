package actuator

import "context"

// Link sends commands to the servo.
// Send is synchronous and short; it does not queue or retry.
type Link interface {
	Send(ctx context.Context, cmd Command) error
	Close() error
}

// Ensure implementations satisfy Link
var (
	_ Link = (*Serial)(nil)
	_ Link = (*Mock)(nil)
)
