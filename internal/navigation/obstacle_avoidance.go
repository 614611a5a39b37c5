package navigation

import (
	"log/slog"
	"math"
)

// Default cost weights
const (
	DefaultTraversabilityWeight = 3.0
	DefaultHeadingWeight        = 1.0
)

// Costs holds the per-direction cost of the last evaluation
type Costs struct {
	Left   float64 `json:"left"`
	Center float64 `json:"center"`
	Right  float64 `json:"right"`
}

// ObstacleAvoidance picks among left, center and right by a weighted cost
// of obstruction and deviation from TargetHeading.
type ObstacleAvoidance struct {
	TraversabilityWeight float64
	HeadingWeight        float64
	CostBased            bool

	logger *slog.Logger
}

// NewObstacleAvoidance creates the strategy with default weights
func NewObstacleAvoidance(logger *slog.Logger) *ObstacleAvoidance {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObstacleAvoidance{
		TraversabilityWeight: DefaultTraversabilityWeight,
		HeadingWeight:        DefaultHeadingWeight,
		CostBased:            true,
		logger:               logger,
	}
}

// Name returns the strategy name
func (o *ObstacleAvoidance) Name() string {
	return "Obstacle Avoidance"
}

// Priority returns 50
func (o *ObstacleAvoidance) Priority() int {
	return PriorityObstacleAvoidance
}

// CanHandle requires navigability data
func (o *ObstacleAvoidance) CanHandle(ctx *Context) bool {
	return ctx.Navigability != nil
}

// IsComplete is always false
func (o *ObstacleAvoidance) IsComplete(ctx *Context) bool {
	return false
}

// Reset is a no-op
func (o *ObstacleAvoidance) Reset() {}

// CalculateControl computes the command for one cycle
func (o *ObstacleAvoidance) CalculateControl(ctx *Context) Command {
	if ctx.Navigability == nil {
		o.logger.Warn("no navigability data")
		return Stop()
	}

	navigable := countNavigable(ctx.Navigability)
	if navigable == 0 {
		o.logger.Debug("no navigable rows, stopping")
		return Stop()
	}

	linear := o.linearSpeed(ctx, float64(navigable)/float64(len(ctx.Navigability)))
	angular := o.angularSpeed(ctx)

	o.logger.Debug("obstacle avoidance",
		"navigable", navigable,
		"rows", len(ctx.Navigability),
		"linear", linear,
		"angular", angular)

	return NewCommand(linear, angular)
}

func (o *ObstacleAvoidance) linearSpeed(ctx *Context, ratio float64) float64 {
	switch {
	case ratio > 0.8:
		return ctx.MaxLinearSpeed
	case ratio > 0.5:
		return ctx.MaxLinearSpeed * 0.7
	case ratio > 0.2:
		return ctx.MaxLinearSpeed * 0.4
	default:
		return 0
	}
}

func (o *ObstacleAvoidance) angularSpeed(ctx *Context) float64 {
	costs, ok := o.Costs(ctx)
	if !ok {
		return 0
	}

	// center wins any tie it is part of, then left over right
	switch {
	case costs.Center <= costs.Left && costs.Center <= costs.Right:
		o.logger.Debug("cost-based: straight", "cost", costs.Center)
		return 0
	case costs.Left <= costs.Right:
		angular := -ctx.MaxAngularSpeed * turnStrength(ctx.LeftNavigability)
		o.logger.Debug("cost-based: left", "cost", costs.Left, "angular", angular)
		return angular
	default:
		angular := ctx.MaxAngularSpeed * turnStrength(ctx.RightNavigability)
		o.logger.Debug("cost-based: right", "cost", costs.Right, "angular", angular)
		return angular
	}
}

// Costs evaluates the three directions. ok is false when cost-based
// steering is disabled or any probe map is missing.
func (o *ObstacleAvoidance) Costs(ctx *Context) (Costs, bool) {
	if !o.CostBased {
		return Costs{}, false
	}
	if len(ctx.LeftNavigability) == 0 || len(ctx.Navigability) == 0 || len(ctx.RightNavigability) == 0 {
		return Costs{}, false
	}

	return Costs{
		Left:   o.directionCost(ctx.LeftNavigability, -1, ctx.TargetHeading),
		Center: o.directionCost(ctx.Navigability, 0, ctx.TargetHeading),
		Right:  o.directionCost(ctx.RightNavigability, 1, ctx.TargetHeading),
	}, true
}

func (o *ObstacleAvoidance) directionCost(rows []bool, direction, targetHeading float64) float64 {
	ratio, _ := navigableRatio(rows)
	obstacle := (1 - ratio) * o.TraversabilityWeight
	heading := math.Abs(direction-targetHeading) * o.HeadingWeight
	return obstacle + heading
}

// turnStrength scales with how clear the chosen side is
func turnStrength(rows []bool) float64 {
	ratio, ok := navigableRatio(rows)
	if !ok {
		return 0.5
	}
	return Clamp(ratio, 0.3, 1.0)
}
