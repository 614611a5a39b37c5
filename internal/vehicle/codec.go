// Package vehicle delivers navigation commands to the motor controller
// firmware over a serial or USB link.
package vehicle

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// DefaultScale maps a normalized velocity to firmware units
const DefaultScale = 192

// Codec encodes the line-oriented firmware protocol:
//
//	c<linear>,<angular>\n   velocity command, integer firmware units
//	h<timeout_ms>\n         heartbeat; firmware stops when it expires
type Codec struct {
	LinearScale  float64
	AngularScale float64
}

// DefaultCodec returns the codec with the default scale on both axes
func DefaultCodec() Codec {
	return Codec{LinearScale: DefaultScale, AngularScale: DefaultScale}
}

// EncodeControl encodes a velocity command. Values are truncated toward zero.
func (c Codec) EncodeControl(linear, angular float64) []byte {
	l := int(linear * c.LinearScale)
	a := int(angular * c.AngularScale)
	return fmt.Appendf(nil, "c%d,%d\n", l, a)
}

// DecodeControl parses a velocity command back into normalized values
func (c Codec) DecodeControl(frame []byte) (linear, angular float64, err error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) < 2 || frame[0] != 'c' {
		return 0, 0, fmt.Errorf("not a control frame: %q", frame)
	}

	parts := bytes.Split(frame[1:], []byte{','})
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed control frame: %q", frame)
	}

	l, err := strconv.Atoi(string(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("linear: %w", err)
	}
	a, err := strconv.Atoi(string(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("angular: %w", err)
	}

	return float64(l) / c.LinearScale, float64(a) / c.AngularScale, nil
}

// EncodeHeartbeat encodes a heartbeat carrying the firmware timeout
func EncodeHeartbeat(timeout time.Duration) []byte {
	return fmt.Appendf(nil, "h%d\n", timeout.Milliseconds())
}
