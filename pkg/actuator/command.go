// Package actuator drives a two-position servo over a byte-oriented serial link.
//
// The wire protocol is one ASCII byte per command with no acknowledgement,
// framing or checksum: '0' moves the servo to 0 degrees, '9' back to 90.
package actuator

import "fmt"

// Command is a target position for the servo.
type Command byte

// Commands understood by the servo firmware.
const (
	MoveToZero   Command = '0'
	MoveToNinety Command = '9'
)

// Byte returns the wire encoding of the command.
func (c Command) Byte() byte {
	return byte(c)
}

// Angle returns the servo angle in degrees the command targets.
func (c Command) Angle() int {
	switch c {
	case MoveToZero:
		return 0
	case MoveToNinety:
		return 90
	default:
		return -1
	}
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	return c == MoveToZero || c == MoveToNinety
}

func (c Command) String() string {
	switch c {
	case MoveToZero:
		return "move_to_zero"
	case MoveToNinety:
		return "move_to_ninety"
	default:
		return fmt.Sprintf("command(%#02x)", byte(c))
	}
}

// ParseCommand decodes a wire byte.
func ParseCommand(b byte) (Command, error) {
	c := Command(b)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %#02x", ErrUnknownCommand, b)
	}
	return c, nil
}
