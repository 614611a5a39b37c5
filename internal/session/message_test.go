package session

import (
	"testing"
	"time"

	"github.com/teslashibe/go-nav/internal/navigation"
	"github.com/teslashibe/go-nav/internal/protocol"
)

func TestEventMessage(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	wp := navigation.NewWaypoint(1, 0)
	cmd := navigation.Turn(0.4)

	tests := []struct {
		name    string
		event   Event
		want    protocol.MessageType
		wantErr bool
	}{
		{"state", Event{Type: EventState, State: navigation.StateTurning, Waypoint: &wp, Timestamp: ts}, protocol.TypeState, false},
		{"completed", Event{Type: EventCompleted, State: navigation.StateCompleted, Timestamp: ts}, protocol.TypeState, false},
		{"command", Event{Type: EventCommand, Command: &cmd, Timestamp: ts}, protocol.TypeCommand, false},
		{"error", Event{Type: EventError, Message: "no waypoints", Timestamp: ts}, protocol.TypeError, false},
		{"command without payload", Event{Type: EventCommand}, "", true},
		{"unknown", Event{Type: "bogus"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := tt.event.Message()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Message() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.want {
				t.Errorf("type = %q, want %q", msg.Type, tt.want)
			}
			if msg.Timestamp != ts.UnixMilli() {
				t.Errorf("timestamp = %d, want %d", msg.Timestamp, ts.UnixMilli())
			}
		})
	}
}

func TestEventMessageState(t *testing.T) {
	wp := navigation.NewWaypoint(2, -3)
	msg, err := Event{Type: EventState, State: navigation.StateMoving, Waypoint: &wp}.Message()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var data protocol.StateData
	if err := msg.ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if data.State != navigation.StateMoving {
		t.Errorf("state = %s, want MOVING", data.State)
	}
	if data.Waypoint == nil || *data.Waypoint.X != 2 {
		t.Errorf("unexpected waypoint %+v", data.Waypoint)
	}
}
