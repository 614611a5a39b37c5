package navigation

import "log/slog"

// DefaultObstacleThreshold is the navigable ratio below which Combined
// hands control to obstacle avoidance
const DefaultObstacleThreshold = 0.3

// Mode is the delegate Combined used in its last cycle
type Mode string

const (
	ModeWaypoint  Mode = "waypoint"
	ModeAvoidance Mode = "avoidance"
)

// Combined follows waypoints and falls back to obstacle avoidance, steered
// toward the waypoint, when the forward path is mostly blocked.
type Combined struct {
	waypoint  *WaypointFollowing
	obstacle  *ObstacleAvoidance
	threshold float64
	mode      Mode
	logger    *slog.Logger
}

// NewCombined creates the strategy around a turning controller
func NewCombined(turner TurnController, logger *slog.Logger) *Combined {
	if logger == nil {
		logger = slog.Default()
	}
	return &Combined{
		waypoint:  NewWaypointFollowing(turner, logger),
		obstacle:  NewObstacleAvoidance(logger),
		threshold: DefaultObstacleThreshold,
		mode:      ModeWaypoint,
		logger:    logger,
	}
}

// SetObstacleThreshold changes the navigable ratio that triggers avoidance
func (c *Combined) SetObstacleThreshold(ratio float64) {
	c.threshold = ratio
}

// ObstacleAvoidance exposes the avoidance delegate for weight tuning
func (c *Combined) ObstacleAvoidance() *ObstacleAvoidance {
	return c.obstacle
}

// WaypointFollowing exposes the waypoint delegate
func (c *Combined) WaypointFollowing() *WaypointFollowing {
	return c.waypoint
}

// Mode returns the delegate used in the last cycle
func (c *Combined) Mode() Mode {
	return c.mode
}

func (c *Combined) Name() string {
	return "Combined Navigation"
}

func (c *Combined) Priority() int {
	return PriorityCombined
}

func (c *Combined) TracksWaypoint() bool {
	return true
}

func (c *Combined) CanHandle(ctx *Context) bool {
	return c.waypoint.CanHandle(ctx)
}

func (c *Combined) IsComplete(ctx *Context) bool {
	return c.waypoint.IsComplete(ctx)
}

func (c *Combined) Reset() {
	c.waypoint.Reset()
	c.obstacle.Reset()
	c.mode = ModeWaypoint
}

func (c *Combined) SetParameters(p Parameters) {
	c.waypoint.SetParameters(p)
}

// CalculateControl delegates by the forward navigable ratio
func (c *Combined) CalculateControl(ctx *Context) Command {
	ratio, ok := navigableRatio(ctx.Navigability)
	if ok && ratio < c.threshold {
		ctx.TargetHeading = 0
		if a, err := ctx.Approach(); err == nil {
			ctx.TargetHeading = a.HeadingError
		}
		if c.mode != ModeAvoidance {
			c.logger.Info("path blocked, avoiding obstacle", "navigable_ratio", ratio)
		}
		c.mode = ModeAvoidance
		return c.obstacle.CalculateControl(ctx)
	}

	if c.mode != ModeWaypoint {
		c.logger.Info("path clear, following waypoint")
	}
	c.mode = ModeWaypoint
	return c.waypoint.CalculateControl(ctx)
}
