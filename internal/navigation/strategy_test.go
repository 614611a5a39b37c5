package navigation

import (
	"math"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(pose Pose, target *Waypoint, state State) *Context {
	ctx := NewContext(clock.NewMock())
	ctx.Pose = &pose
	ctx.Target = target
	ctx.State = state
	return ctx
}

func rows(n, navigable int) []bool {
	out := make([]bool, n)
	for i := 0; i < navigable; i++ {
		out[i] = true
	}
	return out
}

func wp(x, z float64) *Waypoint {
	w := NewWaypoint(x, z)
	return &w
}

func TestWaypointFollowing_CanHandle(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	tests := []struct {
		name   string
		target *Waypoint
		state  State
		want   bool
	}{
		{"turning", wp(1, 0), StateTurning, true},
		{"moving", wp(1, 0), StateMoving, true},
		{"idle", wp(1, 0), StateIdle, false},
		{"completed", wp(1, 0), StateCompleted, false},
		{"no target", nil, StateMoving, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(PoseAt(0, 0, 0), tt.target, tt.state)
			assert.Equal(t, tt.want, s.CanHandle(ctx))
		})
	}
}

func TestWaypointFollowing_IsCompleteRegardlessOfState(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	for _, state := range []State{StateIdle, StateTurning, StateMoving, StateCompleted} {
		ctx := testContext(PoseAt(0, 0, 0), wp(0.05, 0), state)
		assert.True(t, s.IsComplete(ctx), "state %v", state)
	}

	ctx := testContext(PoseAt(0, 0, 0), wp(0.5, 0), StateMoving)
	assert.False(t, s.IsComplete(ctx))
}

func TestWaypointFollowing_StopsInsideThreshold(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)
	ctx := testContext(PoseAt(0, 0, 0), wp(0, -0.1), StateMoving)

	assert.True(t, s.CalculateControl(ctx).IsStop())
}

func TestWaypointFollowing_TurnsTowardTarget(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	ctx := testContext(PoseAt(0, 0, 0), wp(1, 0), StateTurning)
	cmd := s.CalculateControl(ctx)
	assert.Equal(t, 0.0, cmd.Linear)
	assert.InDelta(t, 0.75, cmd.Angular, 1e-9)
	assert.Equal(t, StateTurning, ctx.State)

	ctx = testContext(PoseAt(0, 0, 0), wp(-1, -1), StateTurning)
	cmd = s.CalculateControl(ctx)
	assert.InDelta(t, -0.375, cmd.Angular, 1e-9)
}

func TestWaypointFollowing_Transitions(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	// aligned while turning: pause and switch to MOVING
	ctx := testContext(PoseAt(0, 0, Radians(-80)), wp(1, 0), StateTurning)
	assert.True(t, s.CalculateControl(ctx).IsStop())
	assert.Equal(t, StateMoving, ctx.State)

	// large drift while moving: pause and switch back to TURNING
	ctx = testContext(PoseAt(0, 0, 0), wp(1, 0), StateMoving)
	assert.True(t, s.CalculateControl(ctx).IsStop())
	assert.Equal(t, StateTurning, ctx.State)

	// entry actions are usable on their own
	ctx = testContext(PoseAt(0, 0, 0), wp(1, 0), StateTurning)
	assert.True(t, s.BeginMoving(ctx).IsStop())
	assert.Equal(t, StateMoving, ctx.State)
	assert.True(t, s.BeginTurning(ctx).IsStop())
	assert.Equal(t, StateTurning, ctx.State)
}

func TestWaypointFollowing_LinearSpeed(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	tests := []struct {
		name         string
		distance     float64
		navigability []bool
		want         float64
	}{
		{"far", 2, nil, 0.25},
		{"mid", 0.8, nil, 0.2},
		{"near", 0.3, nil, 0.15},
		{"clear path", 2, rows(10, 9), 0.25},
		{"slightly blocked", 2, rows(10, 7), 0.175},
		{"half blocked", 2, rows(10, 4), 0.125},
		{"mostly blocked", 2, rows(10, 2), 0},
		{"empty data", 2, []bool{}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(PoseAt(0, 0, 0), wp(0, -tt.distance), StateMoving)
			ctx.Navigability = tt.navigability

			cmd := s.CalculateControl(ctx)
			assert.InDelta(t, tt.want, cmd.Linear, 1e-9)
			assert.Equal(t, 0.0, cmd.Angular)
		})
	}
}

func TestWaypointFollowing_CourseCorrection(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	// 10 degrees right of the target bearing at 1 m
	ctx := testContext(PoseAt(0, 0, Radians(-80)), wp(1, 0), StateMoving)
	cmd := s.CalculateControl(ctx)

	assert.InDelta(t, 0.2, cmd.Linear, 1e-9)
	assert.InDelta(t, 10.0/45*0.2, cmd.Angular, 1e-9)
}

func TestWaypointFollowing_MalformedWaypoint(t *testing.T) {
	s := NewWaypointFollowing(nil, nil)

	lat, lng := 52.0, 4.0
	ctx := testContext(PoseAt(0, 0, 0), &Waypoint{Lat: &lat, Lng: &lng}, StateTurning)

	assert.True(t, s.CalculateControl(ctx).IsStop())
	assert.False(t, s.IsComplete(ctx))
}

func TestObstacleAvoidance_CanHandle(t *testing.T) {
	s := NewObstacleAvoidance(nil)
	ctx := testContext(PoseAt(0, 0, 0), nil, StateIdle)

	assert.False(t, s.CanHandle(ctx))
	ctx.Navigability = rows(5, 0)
	assert.True(t, s.CanHandle(ctx))
	assert.False(t, s.IsComplete(ctx))
}

func TestObstacleAvoidance_AllBlockedStops(t *testing.T) {
	s := NewObstacleAvoidance(nil)
	ctx := testContext(PoseAt(0, 0, 0), nil, StateMoving)
	ctx.Navigability = rows(10, 0)
	ctx.LeftNavigability = rows(10, 10)
	ctx.RightNavigability = rows(10, 10)

	assert.True(t, s.CalculateControl(ctx).IsStop())
}

func TestObstacleAvoidance_Steering(t *testing.T) {
	tests := []struct {
		name                string
		center, left, right []bool
		heading             float64
		linear, angular     float64
	}{
		{"clear ahead", rows(10, 10), rows(10, 10), rows(10, 10), 0, 0.25, 0},
		{"left clearer", rows(10, 4), rows(10, 10), rows(10, 2), 0, 0.1, -0.75},
		{"right clearer", rows(10, 4), rows(10, 2), rows(10, 10), 0, 0.1, 0.75},
		{"heading pulls right", rows(10, 3), rows(10, 10), rows(10, 10), 1, 0.1, 0.75},
		{"weak side", rows(10, 4), rows(10, 2), rows(10, 0), -1, 0.1, -0.225},
		{"missing side map", rows(10, 6), nil, rows(10, 10), 0, 0.175, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewObstacleAvoidance(nil)
			ctx := testContext(PoseAt(0, 0, 0), nil, StateMoving)
			ctx.Navigability = tt.center
			ctx.LeftNavigability = tt.left
			ctx.RightNavigability = tt.right
			ctx.TargetHeading = tt.heading

			cmd := s.CalculateControl(ctx)
			assert.InDelta(t, tt.linear, cmd.Linear, 1e-9)
			assert.InDelta(t, tt.angular, cmd.Angular, 1e-9)
		})
	}
}

func TestObstacleAvoidance_Costs(t *testing.T) {
	s := NewObstacleAvoidance(nil)
	ctx := testContext(PoseAt(0, 0, 0), nil, StateMoving)
	ctx.Navigability = rows(10, 1)
	ctx.LeftNavigability = rows(10, 10)
	ctx.RightNavigability = rows(10, 5)
	ctx.TargetHeading = 0.5

	costs, ok := s.Costs(ctx)
	require.True(t, ok)
	assert.InDelta(t, 1.5, costs.Left, 1e-9)
	assert.InDelta(t, 0.9*3+0.5, costs.Center, 1e-9)
	assert.InDelta(t, 0.5*3+0.5, costs.Right, 1e-9)

	s.CostBased = false
	_, ok = s.Costs(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0.0, s.CalculateControl(ctx).Angular)
}

func blockedAheadContext() *Context {
	ctx := testContext(PoseAt(0, 0, 0), wp(0, -2), StateMoving)
	ctx.Navigability = rows(10, 1)
	ctx.LeftNavigability = rows(10, 10)
	ctx.RightNavigability = rows(10, 10)
	return ctx
}

func TestCombined_DelegatesToAvoidanceWhenBlocked(t *testing.T) {
	s := NewCombined(nil, nil)
	ctx := blockedAheadContext()

	// costs: left 0+1, center 0.9*3+0, right 0+1; left wins the side tie
	cmd := s.CalculateControl(ctx)

	assert.Equal(t, ModeAvoidance, s.Mode())
	assert.InDelta(t, 0, ctx.TargetHeading, 1e-12)
	assert.Equal(t, 0.0, cmd.Linear)
	assert.InDelta(t, -0.75, cmd.Angular, 1e-9)
}

func TestCombined_TargetHeadingTowardWaypoint(t *testing.T) {
	s := NewCombined(nil, nil)
	ctx := blockedAheadContext()
	ctx.Target = wp(2, -2)

	cmd := s.CalculateControl(ctx)

	assert.InDelta(t, math.Pi/4, ctx.TargetHeading, 1e-9)
	assert.Greater(t, cmd.Angular, 0.0)
}

func TestCombined_FollowsWaypointWhenClear(t *testing.T) {
	s := NewCombined(nil, nil)
	ctx := testContext(PoseAt(0, 0, 0), wp(0, -2), StateMoving)
	ctx.Navigability = rows(10, 10)

	cmd := s.CalculateControl(ctx)

	assert.Equal(t, ModeWaypoint, s.Mode())
	assert.InDelta(t, 0.25, cmd.Linear, 1e-9)
	assert.Equal(t, 0.0, cmd.Angular)
}

func TestCombined_AllBlockedStops(t *testing.T) {
	s := NewCombined(nil, nil)
	ctx := blockedAheadContext()
	ctx.Navigability = rows(10, 0)

	assert.True(t, s.CalculateControl(ctx).IsStop())
	assert.Equal(t, ModeAvoidance, s.Mode())
}

func TestCombined_MirrorsWaypointDelegate(t *testing.T) {
	s := NewCombined(nil, nil)

	ctx := testContext(PoseAt(0, 0, 0), wp(0.05, 0), StateTurning)
	assert.True(t, s.CanHandle(ctx))
	assert.True(t, s.IsComplete(ctx))

	ctx.State = StateIdle
	assert.False(t, s.CanHandle(ctx))
	assert.Equal(t, PriorityCombined, s.Priority())
}

func TestCombined_Threshold(t *testing.T) {
	s := NewCombined(nil, nil)
	s.SetObstacleThreshold(0.05)

	ctx := blockedAheadContext()
	s.CalculateControl(ctx)

	assert.Equal(t, ModeWaypoint, s.Mode())
}
