package navigation

// Strategy is a pluggable navigation behavior. The controller asks every
// registered strategy whether it can handle the context and runs the
// eligible one with the highest priority.
type Strategy interface {
	// Name identifies the strategy in logs and telemetry
	Name() string

	// CalculateControl computes the command for this cycle. It must not
	// block and must not retain ctx after returning.
	CalculateControl(ctx *Context) Command

	// IsComplete reports whether the strategy's objective is satisfied
	IsComplete(ctx *Context) bool

	// Reset clears derivative and smoothing memory
	Reset()

	// CanHandle is the eligibility predicate
	CanHandle(ctx *Context) bool

	// Priority is in [0, 100]; higher wins
	Priority() int
}

// WaypointTracker is implemented by strategies whose completion means the
// active waypoint was reached and the controller should load the next one.
type WaypointTracker interface {
	TracksWaypoint() bool
}

// Tunable is implemented by strategies that accept new controller gains
type Tunable interface {
	SetParameters(p Parameters)
}

// Strategy priorities
const (
	PriorityCombined          = 100
	PriorityWaypointFollowing = 80
	PriorityObstacleAvoidance = 50
)
