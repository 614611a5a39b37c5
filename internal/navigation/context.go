package navigation

import (
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the navigation state machine state
type State int

const (
	StateIdle State = iota
	StateTurning
	StateMoving
	// StateAvoiding is reserved; obstacle handling runs inside the Combined
	// strategy while the state stays TURNING or MOVING.
	StateAvoiding
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTurning:
		return "TURNING"
	case StateMoving:
		return "MOVING"
	case StateAvoiding:
		return "AVOIDING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState parses a state name
func ParseState(name string) (State, error) {
	for s := StateIdle; s <= StateCompleted; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown navigation state %q", name)
}

// Default tunables
const (
	DefaultMaxLinearSpeed       = 0.25
	DefaultMaxAngularSpeed      = 0.75
	DefaultRotationThresholdDeg = 22.5
	DefaultPositionThresholdM   = 0.2
)

// Context is the per-session blackboard. It is owned by the Controller and
// lent to strategies for the duration of a single decision cycle.
type Context struct {
	// Navigability per probe row, true = traversable. nil = no data.
	Navigability      []bool
	LeftNavigability  []bool
	RightNavigability []bool

	Pose   *Pose
	Target *Waypoint

	// TargetHeading is the waypoint direction relative to the current yaw,
	// positive to the right. Used by cost-based obstacle avoidance.
	TargetHeading float64

	MaxLinearSpeed  float64
	MaxAngularSpeed float64
	Params          Parameters

	// DeltaTime is the time between the last two decision cycles
	DeltaTime time.Duration

	State         State
	WaypointIndex int
	WaypointCount int

	RotationThresholdDeg float64
	PositionThresholdM   float64

	clock      clock.Clock
	lastUpdate time.Time
}

// NewContext creates a context with default thresholds and speeds.
// A nil clock uses the wall clock.
func NewContext(clk clock.Clock) *Context {
	if clk == nil {
		clk = clock.New()
	}

	return &Context{
		MaxLinearSpeed:       DefaultMaxLinearSpeed,
		MaxAngularSpeed:      DefaultMaxAngularSpeed,
		Params:               DefaultRuleBasedParameters(),
		State:                StateIdle,
		RotationThresholdDeg: DefaultRotationThresholdDeg,
		PositionThresholdM:   DefaultPositionThresholdM,
		clock:                clk,
		lastUpdate:           clk.Now(),
	}
}

// UpdateTiming recomputes DeltaTime. It never goes negative.
func (c *Context) UpdateTiming() {
	now := c.clock.Now()
	c.DeltaTime = now.Sub(c.lastUpdate)
	if c.DeltaTime < 0 {
		c.DeltaTime = 0
	}
	c.lastUpdate = now
}

// Now returns the context clock's current time
func (c *Context) Now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}

// DeltaSeconds returns DeltaTime in seconds
func (c *Context) DeltaSeconds() float64 {
	return c.DeltaTime.Seconds()
}

// Approach describes the geometry between the pose and the target
type Approach struct {
	DX           float64
	DZ           float64
	Distance     float64
	TargetYaw    float64
	CurrentYaw   float64
	HeadingError float64
}

// Approach computes distance and heading error to the active waypoint
func (c *Context) Approach() (Approach, error) {
	if c.Pose == nil {
		return Approach{}, ErrNoPose
	}
	if c.Target == nil {
		return Approach{}, ErrNoTarget
	}

	wx, wz, err := c.Target.Local()
	if err != nil {
		return Approach{}, err
	}

	dx := wx - c.Pose.Position.X
	dz := wz - c.Pose.Position.Z
	targetYaw := AngleToWaypoint(dx, dz)
	currentYaw := c.Pose.Yaw()

	return Approach{
		DX:           dx,
		DZ:           dz,
		Distance:     math.Hypot(dx, dz),
		TargetYaw:    targetYaw,
		CurrentYaw:   currentYaw,
		HeadingError: HeadingError(currentYaw, targetYaw),
	}, nil
}

// navigableRatio returns the fraction of true rows. ok is false for
// missing or empty data.
func navigableRatio(rows []bool) (ratio float64, ok bool) {
	if len(rows) == 0 {
		return 0, false
	}
	return float64(countNavigable(rows)) / float64(len(rows)), true
}

func countNavigable(rows []bool) int {
	n := 0
	for _, r := range rows {
		if r {
			n++
		}
	}
	return n
}
