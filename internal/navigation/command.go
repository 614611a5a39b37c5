package navigation

import (
	"fmt"
	"math"
)

// Command is a normalized velocity pair handed to actuation.
// Both components are clamped to [-1, 1]. Positive angular turns right.
type Command struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// NewCommand creates a command, clamping both components to [-1, 1].
// NaN components are treated as zero.
func NewCommand(linear, angular float64) Command {
	return Command{
		Linear:  clampUnit(linear),
		Angular: clampUnit(angular),
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(v, -1, 1)
}

// Stop returns the zero command
func Stop() Command {
	return Command{}
}

// Forward drives straight ahead at |speed|
func Forward(speed float64) Command {
	return NewCommand(math.Abs(speed), 0)
}

// Turn rotates in place
func Turn(angular float64) Command {
	return NewCommand(0, angular)
}

// Move combines translation and rotation
func Move(linear, angular float64) Command {
	return NewCommand(linear, angular)
}

// IsStop reports whether both components are zero
func (c Command) IsStop() bool {
	return c.Linear == 0 && c.Angular == 0
}

func (c Command) String() string {
	return fmt.Sprintf("Command{linear=%.3f, angular=%.3f, stop=%t}", c.Linear, c.Angular, c.IsStop())
}
