package navigation

import (
	"math"
	"testing"
)

func TestNewCommand_Clamps(t *testing.T) {
	cmd := NewCommand(2.0, -5.0)
	if cmd.Linear != 1.0 || cmd.Angular != -1.0 {
		t.Errorf("NewCommand(2, -5) = %v, want linear=1 angular=-1", cmd)
	}

	cmd = NewCommand(math.NaN(), 0.5)
	if cmd.Linear != 0 || cmd.Angular != 0.5 {
		t.Errorf("NaN not zeroed: %v", cmd)
	}
}

func TestCommandFactories(t *testing.T) {
	tests := []struct {
		name            string
		cmd             Command
		linear, angular float64
		stop            bool
	}{
		{"stop", Stop(), 0, 0, true},
		{"forward", Forward(-0.3), 0.3, 0, false},
		{"turn", Turn(-0.4), 0, -0.4, false},
		{"move", Move(0.2, 0.1), 0.2, 0.1, false},
		{"move clamps", Move(3, -3), 1, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.Linear != tt.linear || tt.cmd.Angular != tt.angular {
				t.Errorf("got %v, want (%v, %v)", tt.cmd, tt.linear, tt.angular)
			}
			if tt.cmd.IsStop() != tt.stop {
				t.Errorf("IsStop() = %v, want %v", tt.cmd.IsStop(), tt.stop)
			}
		})
	}
}
