package navigation

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockActuator records every transmitted command
type mockActuator struct {
	staged   Command
	commands []Command
}

func (m *mockActuator) SetVelocity(linear, angular float64) {
	m.staged = Command{Linear: linear, Angular: angular}
}

func (m *mockActuator) Transmit() {
	m.commands = append(m.commands, m.staged)
}

func (m *mockActuator) last() Command {
	if len(m.commands) == 0 {
		return Command{}
	}
	return m.commands[len(m.commands)-1]
}

// sliceSource is an in-memory waypoint queue
type sliceSource struct {
	items []Waypoint
}

func (s *sliceSource) HasNext() bool { return len(s.items) > 0 }
func (s *sliceSource) Count() int    { return len(s.items) }

func (s *sliceSource) Next() (Waypoint, bool) {
	if len(s.items) == 0 {
		return Waypoint{}, false
	}
	w := s.items[0]
	s.items = s.items[1:]
	return w, true
}

type stateEvent struct {
	state    State
	waypoint *Waypoint
}

type recordingListener struct {
	states    []stateEvent
	completed int
	errors    []string
}

func (r *recordingListener) OnStateChanged(state State, waypoint *Waypoint) {
	r.states = append(r.states, stateEvent{state, waypoint})
}

func (r *recordingListener) OnCompleted()       { r.completed++ }
func (r *recordingListener) OnError(msg string) { r.errors = append(r.errors, msg) }

// fixedStrategy always handles and returns a constant command
type fixedStrategy struct {
	name     string
	priority int
	cmd      Command
	handle   bool
	complete bool
	resets   int
}

func (f *fixedStrategy) Name() string                      { return f.name }
func (f *fixedStrategy) Priority() int                     { return f.priority }
func (f *fixedStrategy) CanHandle(*Context) bool           { return f.handle }
func (f *fixedStrategy) IsComplete(*Context) bool          { return f.complete }
func (f *fixedStrategy) CalculateControl(*Context) Command { return f.cmd }
func (f *fixedStrategy) Reset()                            { f.resets++ }

func newTestController(points ...Waypoint) (*Controller, *mockActuator, *recordingListener, *clock.Mock) {
	act := &mockActuator{}
	lis := &recordingListener{}
	clk := clock.NewMock()
	c := NewController(&sliceSource{items: points}, act, WithListener(lis), WithClock(clk))
	return c, act, lis, clk
}

func TestController_StartWithEmptyQueue(t *testing.T) {
	c, act, lis, _ := newTestController()
	c.AddStrategy(NewCombined(nil, nil))

	err := c.Start()

	assert.ErrorIs(t, err, ErrNoWaypoints)
	require.Len(t, lis.errors, 1)
	assert.Equal(t, StateIdle, c.Context().State)
	assert.False(t, c.Navigating())
	assert.Empty(t, act.commands)
}

func TestController_SingleWaypointScenario(t *testing.T) {
	c, act, lis, clk := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(NewCombined(nil, nil))

	require.NoError(t, c.Start())
	assert.Equal(t, StateTurning, c.Context().State)
	assert.Equal(t, 1, c.Context().WaypointIndex)
	assert.Equal(t, 1, c.Context().WaypointCount)
	require.Len(t, lis.states, 1)
	assert.Equal(t, StateTurning, lis.states[0].state)

	// facing -Z, target on the right: turn right in place
	clk.Add(50 * time.Millisecond)
	c.UpdatePose(PoseAt(0, 0, 0))
	cmd := act.last()
	assert.Equal(t, 0.0, cmd.Linear)
	assert.Greater(t, cmd.Angular, 0.0)
	assert.Equal(t, StateTurning, c.Context().State)

	// navigability does not drive TURNING cycles
	sent := len(act.commands)
	c.UpdateNavigability(rows(10, 10), rows(10, 10), rows(10, 10))
	assert.Len(t, act.commands, sent)

	// within the rotation threshold: stop, then move
	c.UpdatePose(PoseAt(0, 0, Radians(-80)))
	assert.True(t, act.last().IsStop())
	assert.Equal(t, StateMoving, c.Context().State)

	c.UpdatePose(PoseAt(0, 0, Radians(-80)))
	cmd = act.last()
	assert.InDelta(t, 0.2, cmd.Linear, 1e-9)
	assert.InDelta(t, 10.0/45*0.2, cmd.Angular, 1e-9)

	// navigability drives MOVING cycles
	sent = len(act.commands)
	c.UpdateNavigability(rows(10, 10), rows(10, 10), rows(10, 10))
	assert.Len(t, act.commands, sent+1)

	// arrival completes the session
	c.UpdatePose(PoseAt(0.95, 0, Radians(-90)))
	assert.Equal(t, 1, lis.completed)
	assert.Equal(t, StateCompleted, lis.states[len(lis.states)-1].state)
	assert.Equal(t, StateIdle, c.Context().State)
	assert.False(t, c.Navigating())
	assert.Nil(t, c.Context().Target)
	assert.True(t, act.last().IsStop())
}

func TestController_AdvancesThroughWaypoints(t *testing.T) {
	c, _, lis, _ := newTestController(NewWaypoint(0, -1), NewWaypoint(0, -2))
	c.AddStrategy(NewWaypointFollowing(nil, nil))

	require.NoError(t, c.Start())
	c.UpdatePose(PoseAt(0, -0.95, 0))

	assert.Equal(t, 2, c.Context().WaypointIndex)
	assert.Equal(t, StateTurning, c.Context().State)
	require.NotNil(t, c.Context().Target)
	assert.Equal(t, NewWaypoint(0, -2).String(), c.Context().Target.String())
	assert.Zero(t, lis.completed)

	c.UpdatePose(PoseAt(0, -1.9, 0))
	assert.Equal(t, 1, lis.completed)
}

func TestController_NoEligibleStrategyStops(t *testing.T) {
	c, act, _, _ := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(&fixedStrategy{name: "never", priority: 90, cmd: Turn(1)})

	require.NoError(t, c.Start())
	c.UpdatePose(PoseAt(0, 0, 0))

	assert.Nil(t, c.ActiveStrategy())
	assert.True(t, act.last().IsStop())
}

func TestController_SelectsHighestPriority(t *testing.T) {
	c, act, _, _ := newTestController(NewWaypoint(1, 0))
	low := &fixedStrategy{name: "low", priority: 10, cmd: Turn(-0.5), handle: true}
	high := &fixedStrategy{name: "high", priority: 60, cmd: Turn(0.5), handle: true}
	tie := &fixedStrategy{name: "tie", priority: 60, cmd: Turn(0.9), handle: true}
	c.AddStrategy(low)
	c.AddStrategy(high)
	c.AddStrategy(tie)

	require.NoError(t, c.Start())
	resetsAtStart := high.resets
	c.UpdatePose(PoseAt(0, 0, 0))

	assert.Equal(t, high, c.ActiveStrategy())
	assert.Equal(t, Turn(0.5), act.last())
	assert.Equal(t, resetsAtStart+1, high.resets)

	// unchanged selection does not reset again
	c.UpdatePose(PoseAt(0, 0, 0))
	assert.Equal(t, resetsAtStart+1, high.resets)

	c.RemoveStrategy(high)
	c.UpdatePose(PoseAt(0, 0, 0))
	assert.Equal(t, tie, c.ActiveStrategy())
}

func TestController_NonTrackingCompletionDoesNotAdvance(t *testing.T) {
	c, act, lis, _ := newTestController(NewWaypoint(1, 0))
	s := &fixedStrategy{name: "done", priority: 50, handle: true, complete: true, cmd: Turn(1)}
	c.AddStrategy(s)

	require.NoError(t, c.Start())
	sent := len(act.commands)
	c.UpdatePose(PoseAt(0, 0, 0))

	assert.Equal(t, 1, c.Context().WaypointIndex)
	assert.Zero(t, lis.completed)
	assert.Len(t, act.commands, sent)
}

func TestController_StopResets(t *testing.T) {
	c, act, lis, _ := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(NewCombined(nil, nil))

	require.NoError(t, c.Start())
	c.UpdatePose(PoseAt(0, 0, 0))
	require.False(t, act.last().IsStop())

	c.Stop()

	assert.True(t, act.last().IsStop())
	assert.Equal(t, StateIdle, c.Context().State)
	assert.False(t, c.Navigating())
	assert.Nil(t, c.ActiveStrategy())
	assert.Equal(t, StateIdle, lis.states[len(lis.states)-1].state)

	// updates after stop do not command the vehicle
	sent := len(act.commands)
	c.UpdatePose(PoseAt(0, 0, 0))
	assert.Len(t, act.commands, sent)
}

func TestController_PoseRequiredForCycle(t *testing.T) {
	c, act, _, _ := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(NewCombined(nil, nil))
	require.NoError(t, c.Start())
	c.Context().State = StateMoving

	sent := len(act.commands)
	c.UpdateNavigability(rows(4, 4), rows(4, 4), rows(4, 4))
	assert.Len(t, act.commands, sent)
}

func TestController_Status(t *testing.T) {
	c, _, _, _ := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(NewCombined(nil, nil))
	require.NoError(t, c.Start())
	c.UpdatePose(PoseAt(0, 0, 0))

	st := c.Status()
	assert.Equal(t, StateTurning, st.State)
	assert.True(t, st.Navigating)
	assert.Equal(t, "Combined Navigation", st.Strategy)
	assert.Equal(t, ModeWaypoint, st.Mode)
	require.NotNil(t, st.Distance)
	assert.InDelta(t, 1.0, *st.Distance, 1e-9)
	require.NotNil(t, st.HeadingErrorDeg)
	assert.InDelta(t, 90, *st.HeadingErrorDeg, 1e-9)
	assert.Equal(t, "R", st.TurnIndicator)
	assert.False(t, st.Aligned)
	assert.InDelta(t, 0.75, st.LastCommand.Angular, 1e-9)

	c.UpdatePose(PoseAt(0, 0, Radians(-85)))
	st = c.Status()
	assert.True(t, st.Aligned)
}

func TestController_DeltaTime(t *testing.T) {
	c, _, _, clk := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(NewCombined(nil, nil))
	require.NoError(t, c.Start())

	clk.Add(100 * time.Millisecond)
	c.UpdatePose(PoseAt(0, 0, 0))
	clk.Add(40 * time.Millisecond)
	c.UpdatePose(PoseAt(0, 0, 0))

	assert.InDelta(t, 0.04, c.Context().DeltaSeconds(), 1e-9)
}

func TestController_SetParameters(t *testing.T) {
	pd := NewPDController(DefaultPDParameters())
	c, act, _, _ := newTestController(NewWaypoint(1, 0))
	c.AddStrategy(NewCombined(pd, nil))

	params := DefaultPDParameters()
	params.TurningKp = 0.1
	c.SetParameters(params)
	assert.Equal(t, params, c.Context().Params)

	require.NoError(t, c.Start())
	c.UpdatePose(PoseAt(0, 0, 0))

	// 0.1 * π/2, no derivative on the first cycle
	assert.InDelta(t, 0.1*Radians(90), act.last().Angular, 1e-9)
}
