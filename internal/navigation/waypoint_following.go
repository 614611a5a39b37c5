package navigation

import (
	"log/slog"
	"math"
	"time"
)

// Course correction limits while translating
const (
	correctionMaxStrength  = 0.2
	correctionThresholdDeg = 5.0
	minApproachSpeed       = 0.15
)

// targetWarnInterval limits the unusable-target warning, which would
// otherwise repeat at the pose rate
const targetWarnInterval = 5 * time.Second

// WaypointFollowing rotates in place toward the active waypoint, then
// drives to it with small heading corrections.
type WaypointFollowing struct {
	turner TurnController
	logger *slog.Logger

	lastTargetWarn time.Time
}

// NewWaypointFollowing creates the strategy. A nil turner uses the
// rule-based controller with default gains.
func NewWaypointFollowing(turner TurnController, logger *slog.Logger) *WaypointFollowing {
	if turner == nil {
		turner = NewRuleBasedController(DefaultRuleBasedParameters())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WaypointFollowing{turner: turner, logger: logger}
}

// Name returns the strategy name
func (w *WaypointFollowing) Name() string {
	return "Waypoint Following"
}

// Priority returns 80
func (w *WaypointFollowing) Priority() int {
	return PriorityWaypointFollowing
}

// TracksWaypoint marks completion as waypoint arrival
func (w *WaypointFollowing) TracksWaypoint() bool {
	return true
}

// Turner returns the turning controller in use
func (w *WaypointFollowing) Turner() TurnController {
	return w.turner
}

// CanHandle requires an active waypoint while TURNING or MOVING
func (w *WaypointFollowing) CanHandle(ctx *Context) bool {
	if ctx.Target == nil {
		return false
	}
	return ctx.State == StateTurning || ctx.State == StateMoving
}

// IsComplete reports whether the robot is within the position threshold
func (w *WaypointFollowing) IsComplete(ctx *Context) bool {
	a, err := ctx.Approach()
	if err != nil {
		return false
	}
	return a.Distance < ctx.PositionThresholdM
}

// Reset clears the turning controller memory
func (w *WaypointFollowing) Reset() {
	w.turner.Reset()
}

// SetParameters forwards new gains to a tunable turning controller
func (w *WaypointFollowing) SetParameters(p Parameters) {
	if t, ok := w.turner.(Tunable); ok {
		t.SetParameters(p)
	}
}

// CalculateControl computes the command for one cycle
func (w *WaypointFollowing) CalculateControl(ctx *Context) Command {
	a, err := ctx.Approach()
	if err != nil {
		if now := ctx.Now(); now.Sub(w.lastTargetWarn) >= targetWarnInterval {
			w.lastTargetWarn = now
			w.logger.Warn("waypoint following without usable target", "error", err)
		}
		return Stop()
	}

	if a.Distance < ctx.PositionThresholdM {
		return Stop()
	}

	dt := ctx.DeltaSeconds()
	deg := Degrees(math.Abs(a.HeadingError))

	switch ctx.State {
	case StateTurning:
		if deg <= ctx.RotationThresholdDeg {
			return w.BeginMoving(ctx)
		}
		angular := w.turner.TurningAngularVelocity(a.HeadingError, ctx.MaxAngularSpeed, dt)
		w.logger.Debug("turning",
			"heading_error_deg", Degrees(a.HeadingError),
			"angular", angular,
			"controller", w.turner.Name())
		return Turn(angular)

	case StateMoving:
		if deg > 2*ctx.RotationThresholdDeg {
			return w.BeginTurning(ctx)
		}
		linear := w.linearSpeed(ctx, a.Distance)
		angular := w.turner.CourseCorrection(a.HeadingError, correctionMaxStrength, correctionThresholdDeg, dt)
		w.logger.Debug("moving",
			"distance", a.Distance,
			"heading_error_deg", Degrees(a.HeadingError),
			"linear", linear,
			"angular", angular)
		return Move(linear, angular)

	default:
		return Stop()
	}
}

// BeginMoving is the TURNING→MOVING entry action. It pauses for one cycle
// so the rotation settles before translating.
func (w *WaypointFollowing) BeginMoving(ctx *Context) Command {
	ctx.State = StateMoving
	w.logger.Info("aligned with waypoint, moving", "waypoint", ctx.WaypointIndex)
	return Stop()
}

// BeginTurning is the MOVING→TURNING entry action taken on large drift
func (w *WaypointFollowing) BeginTurning(ctx *Context) Command {
	ctx.State = StateTurning
	w.logger.Info("heading drifted, turning", "waypoint", ctx.WaypointIndex)
	return Stop()
}

func (w *WaypointFollowing) linearSpeed(ctx *Context, distance float64) float64 {
	var speed float64
	switch {
	case distance > 1.0:
		speed = ctx.MaxLinearSpeed
	case distance > 0.5:
		speed = ctx.MaxLinearSpeed * 0.8
	default:
		speed = math.Min(minApproachSpeed, ctx.MaxLinearSpeed)
	}

	ratio, ok := navigableRatio(ctx.Navigability)
	if !ok {
		return speed
	}
	switch {
	case ratio < 0.3:
		return 0
	case ratio < 0.6:
		return speed * 0.5
	case ratio < 0.8:
		return speed * 0.7
	default:
		return speed
	}
}
