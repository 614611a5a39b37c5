// Package protocol defines the JSON messages exchanged with the sensor
// bridge and telemetry clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-nav/internal/navigation"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Bridge → robot messages
	TypePose         MessageType = "pose"         // Pose tracker output
	TypeNavigability MessageType = "navigability" // Depth probe rows
	TypeLocation     MessageType = "location"     // GNSS fix tied to a local pose
	TypeWaypoints    MessageType = "waypoints"    // Replace the waypoint queue
	TypeStart        MessageType = "start"        // Start navigation
	TypeStop         MessageType = "stop"         // Stop navigation
	TypeParams       MessageType = "params"       // Controller gains

	// Robot → bridge / telemetry messages
	TypeState   MessageType = "state"   // Navigation state change
	TypeCommand MessageType = "command" // Velocity command sent to the vehicle
	TypeStatus  MessageType = "status"  // Periodic controller snapshot
	TypeError   MessageType = "error"   // Navigation error

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message without type")
	}
	return &msg, nil
}

// PoseData is a pose in the local navigation frame
type PoseData = navigation.Pose

// GetPose extracts a pose from a message
func (m *Message) GetPose() (*navigation.Pose, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("pose message without data")
	}
	var data PoseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NavigabilityData holds one probe row sweep per direction.
// true = traversable.
type NavigabilityData struct {
	Center []bool `json:"center"`
	Left   []bool `json:"left,omitempty"`
	Right  []bool `json:"right,omitempty"`
}

// GetNavigability extracts navigability rows from a message
func (m *Message) GetNavigability() (*NavigabilityData, error) {
	var data NavigabilityData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Center == nil {
		return nil, fmt.Errorf("navigability message without center rows")
	}
	return &data, nil
}

// LocationData ties a GNSS fix and compass bearing to the local pose
type LocationData struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Bearing   float64 `json:"bearing"`
	X         float64 `json:"x"`
	Z         float64 `json:"z"`
	Yaw       float64 `json:"yaw"`
}

// GetLocation extracts a location fix from a message
func (m *Message) GetLocation() (*LocationData, error) {
	var data LocationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// WaypointsData replaces the waypoint queue
type WaypointsData struct {
	Waypoints []navigation.Waypoint `json:"waypoints"`
	Start     bool                  `json:"start,omitempty"`
}

// GetWaypoints extracts waypoints from a message
func (m *Message) GetWaypoints() (*WaypointsData, error) {
	var data WaypointsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ParamsPatch is a partial gains update. Keys it leaves out keep their
// current value when applied.
type ParamsPatch json.RawMessage

// GetParams extracts a gains update from a message
func (m *Message) GetParams() (ParamsPatch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Data, &fields); err != nil {
		return nil, fmt.Errorf("params data must be a JSON object: %w", err)
	}
	return ParamsPatch(append([]byte(nil), m.Data...)), nil
}

// Apply overwrites the keys present in the patch on a copy of base and
// validates the result
func (p ParamsPatch) Apply(base navigation.Parameters) (navigation.Parameters, error) {
	if err := json.Unmarshal(p, &base); err != nil {
		return navigation.Parameters{}, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := base.Validate(); err != nil {
		return navigation.Parameters{}, err
	}
	return base, nil
}

// StateData reports a navigation state change
type StateData struct {
	State    navigation.State     `json:"state"`
	Waypoint *navigation.Waypoint `json:"waypoint,omitempty"`
}

// NewStateMessage creates a state message
func NewStateMessage(state navigation.State, waypoint *navigation.Waypoint) (*Message, error) {
	return NewMessage(TypeState, StateData{State: state, Waypoint: waypoint})
}

// NewCommandMessage creates a command message
func NewCommandMessage(cmd navigation.Command) (*Message, error) {
	return NewMessage(TypeCommand, cmd)
}

// NewStatusMessage creates a status message
func NewStatusMessage(status navigation.Status) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// ErrorData carries an error message
type ErrorData struct {
	Message string `json:"message"`
}

// NewErrorMessage creates an error message
func NewErrorMessage(msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: msg})
}
