package navigation

import (
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"
)

// ErrNoWaypoints is reported when navigation starts with an empty queue
var ErrNoWaypoints = errors.New("no waypoints available")

// Actuator accepts normalized velocities. SetVelocity stages the pair and
// Transmit sends it. Neither may block.
type Actuator interface {
	SetVelocity(linear, angular float64)
	Transmit()
}

// WaypointSource is the FIFO of waypoints for a session
type WaypointSource interface {
	HasNext() bool
	// Next pops the next waypoint, converted to the local frame
	Next() (Waypoint, bool)
	Count() int
}

// WaypointResolver is implemented by waypoint sources that can finish
// converting a waypoint to local coordinates once more data arrives
type WaypointResolver interface {
	Resolve(w Waypoint) (Waypoint, bool)
}

// Listener receives navigation lifecycle events. Callbacks run on the
// decision goroutine and must return quickly.
type Listener interface {
	OnStateChanged(state State, waypoint *Waypoint)
	OnCompleted()
	OnError(msg string)
}

// NopListener ignores all events
type NopListener struct{}

func (NopListener) OnStateChanged(State, *Waypoint) {}
func (NopListener) OnCompleted()                    {}
func (NopListener) OnError(string)                  {}

// Status is a snapshot of the controller for telemetry
type Status struct {
	State           State     `json:"state"`
	Navigating      bool      `json:"navigating"`
	WaypointIndex   int       `json:"waypoint_index"`
	WaypointCount   int       `json:"waypoint_count"`
	Target          *Waypoint `json:"target,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	Mode            Mode      `json:"mode,omitempty"`
	LastCommand     Command   `json:"last_command"`
	Distance        *float64  `json:"distance,omitempty"`
	HeadingErrorDeg *float64  `json:"heading_error_deg,omitempty"`
	TurnIndicator   string    `json:"turn_indicator,omitempty"`
	Aligned         bool      `json:"aligned"`
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for cycle timing
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithListener sets the lifecycle listener
func WithListener(l Listener) Option {
	return func(c *Controller) {
		c.SetListener(l)
	}
}

// Controller is the navigation state machine. It owns the Context and is
// not safe for concurrent use: callers serialize pose and navigability
// updates onto one goroutine.
type Controller struct {
	ctx        *Context
	strategies []Strategy
	active     Strategy

	waypoints WaypointSource
	actuator  Actuator
	listener  Listener
	clock     clock.Clock
	logger    *slog.Logger

	navigating  bool
	lastCommand Command
}

// NewController creates a controller with no strategies registered
func NewController(waypoints WaypointSource, actuator Actuator, opts ...Option) *Controller {
	c := &Controller{
		waypoints: waypoints,
		actuator:  actuator,
		listener:  NopListener{},
		clock:     clock.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx = NewContext(c.clock)
	return c
}

// Context returns the blackboard. Only touch it from the decision goroutine.
func (c *Controller) Context() *Context {
	return c.ctx
}

// Navigating reports whether a session is in progress
func (c *Controller) Navigating() bool {
	return c.navigating
}

// ActiveStrategy returns the strategy selected in the last cycle, or nil
func (c *Controller) ActiveStrategy() Strategy {
	return c.active
}

// Strategies returns the registered strategies in registration order
func (c *Controller) Strategies() []Strategy {
	out := make([]Strategy, len(c.strategies))
	copy(out, c.strategies)
	return out
}

// SetListener replaces the listener. nil installs a no-op listener.
func (c *Controller) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	c.listener = l
}

// AddStrategy registers a strategy
func (c *Controller) AddStrategy(s Strategy) {
	c.strategies = append(c.strategies, s)
	c.logger.Info("strategy registered", "strategy", s.Name(), "priority", s.Priority())
}

// RemoveStrategy unregisters a strategy
func (c *Controller) RemoveStrategy(s Strategy) {
	for i, existing := range c.strategies {
		if existing == s {
			c.strategies = append(c.strategies[:i], c.strategies[i+1:]...)
			break
		}
	}
	if c.active == s {
		c.active = nil
	}
}

// SetParameters replaces the gains in the context and on every tunable strategy
func (c *Controller) SetParameters(p Parameters) {
	c.ctx.Params = p
	for _, s := range c.strategies {
		if t, ok := s.(Tunable); ok {
			t.SetParameters(p)
		}
	}
}

// Start begins navigating the queued waypoints. An empty queue is reported
// to the listener and leaves the controller IDLE.
func (c *Controller) Start() error {
	if c.waypoints == nil || !c.waypoints.HasNext() {
		c.logger.Warn("cannot start navigation", "error", ErrNoWaypoints)
		c.listener.OnError(ErrNoWaypoints.Error())
		return ErrNoWaypoints
	}

	c.navigating = true
	c.ctx.State = StateIdle
	c.ctx.WaypointCount = c.waypoints.Count()
	c.ctx.WaypointIndex = 0

	c.logger.Info("navigation started", "waypoints", c.ctx.WaypointCount)
	c.loadNext()
	return nil
}

// RecountWaypoints refreshes the waypoint total after the source was
// replaced during a run. The current target keeps its index.
func (c *Controller) RecountWaypoints() {
	if !c.navigating || c.waypoints == nil {
		return
	}
	c.ctx.WaypointCount = c.ctx.WaypointIndex + c.waypoints.Count()
}

// Stop halts navigation and commands the vehicle to stop
func (c *Controller) Stop() {
	wasNavigating := c.navigating
	c.halt()
	if wasNavigating {
		c.logger.Info("navigation stopped")
		c.listener.OnStateChanged(StateIdle, nil)
	}
}

// UpdatePose stores the pose and runs a decision cycle while navigating
func (c *Controller) UpdatePose(p Pose) {
	c.ctx.Pose = &p
	if c.navigating {
		c.process()
	}
}

// UpdateNavigability stores the probe maps. A cycle runs only while
// MOVING or AVOIDING; TURNING is driven by pose updates.
func (c *Controller) UpdateNavigability(center, left, right []bool) {
	c.ctx.Navigability = center
	c.ctx.LeftNavigability = left
	c.ctx.RightNavigability = right

	if c.navigating && (c.ctx.State == StateMoving || c.ctx.State == StateAvoiding) {
		c.process()
	}
}

// Status returns a snapshot for telemetry
func (c *Controller) Status() Status {
	st := Status{
		State:         c.ctx.State,
		Navigating:    c.navigating,
		WaypointIndex: c.ctx.WaypointIndex,
		WaypointCount: c.ctx.WaypointCount,
		LastCommand:   c.lastCommand,
	}
	if c.ctx.Target != nil {
		wp := *c.ctx.Target
		st.Target = &wp
	}
	if c.active != nil {
		st.Strategy = c.active.Name()
		if m, ok := c.active.(interface{ Mode() Mode }); ok {
			st.Mode = m.Mode()
		}
	}
	if a, err := c.ctx.Approach(); err == nil {
		dist := a.Distance
		deg := Degrees(a.HeadingError)
		st.Distance = &dist
		st.HeadingErrorDeg = &deg
		st.TurnIndicator = TurnIndicator(a.HeadingError, c.ctx.RotationThresholdDeg, correctionThresholdDeg)
		st.Aligned = IsAligned(a.HeadingError, c.ctx.RotationThresholdDeg)
	}
	return st
}

func (c *Controller) process() {
	if !c.navigating || c.ctx.Pose == nil {
		return
	}

	c.ctx.UpdateTiming()
	c.resolveTarget()

	selected := c.selectStrategy()
	if selected != c.active {
		if selected != nil {
			selected.Reset()
			c.logger.Debug("strategy selected", "strategy", selected.Name())
		}
		c.active = selected
	}

	if c.active == nil {
		c.send(Stop())
		return
	}

	if c.active.IsComplete(c.ctx) {
		if t, ok := c.active.(WaypointTracker); ok && t.TracksWaypoint() {
			c.logger.Info("waypoint reached", "index", c.ctx.WaypointIndex, "of", c.ctx.WaypointCount)
			c.loadNext()
		} else {
			c.logger.Debug("strategy complete", "strategy", c.active.Name())
		}
		return
	}

	c.send(c.active.CalculateControl(c.ctx))
}

// resolveTarget retries local conversion of a target that was loaded
// before it could be placed in the local frame
func (c *Controller) resolveTarget() {
	t := c.ctx.Target
	if t == nil || t.HasLocal() {
		return
	}
	r, ok := c.waypoints.(WaypointResolver)
	if !ok {
		return
	}
	resolved, ok := r.Resolve(*t)
	if !ok || !resolved.HasLocal() {
		return
	}
	c.ctx.Target = &resolved
	c.logger.Info("target resolved", "waypoint", resolved.String(), "index", c.ctx.WaypointIndex)
}

// selectStrategy returns the eligible strategy with the highest priority.
// The first registered wins equal priorities.
func (c *Controller) selectStrategy() Strategy {
	var best Strategy
	for _, s := range c.strategies {
		if !s.CanHandle(c.ctx) {
			continue
		}
		if best == nil || s.Priority() > best.Priority() {
			best = s
		}
	}
	return best
}

func (c *Controller) loadNext() {
	wp, ok := c.waypoints.Next()
	if !ok {
		c.complete()
		return
	}

	c.ctx.Target = &wp
	c.ctx.WaypointIndex++
	c.ctx.State = StateTurning

	for _, s := range c.strategies {
		s.Reset()
	}

	c.logger.Info("waypoint loaded",
		"waypoint", wp.String(),
		"index", c.ctx.WaypointIndex,
		"of", c.ctx.WaypointCount)
	c.listener.OnStateChanged(StateTurning, &wp)
	c.send(Stop())
}

func (c *Controller) complete() {
	c.ctx.State = StateCompleted
	c.logger.Info("all waypoints completed", "waypoints", c.ctx.WaypointCount)
	c.listener.OnStateChanged(StateCompleted, nil)
	c.halt()
	c.listener.OnCompleted()
}

func (c *Controller) halt() {
	if c.active != nil {
		c.active.Reset()
	}
	c.active = nil
	c.navigating = false
	c.ctx.Target = nil
	c.ctx.State = StateIdle
	c.send(Stop())
}

func (c *Controller) send(cmd Command) {
	c.lastCommand = cmd
	if c.actuator == nil {
		return
	}
	c.actuator.SetVelocity(cmd.Linear, cmd.Angular)
	c.actuator.Transmit()
}
