package navigation

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoPose is returned when a decision needs a pose that has not arrived
	ErrNoPose = errors.New("no pose available")

	// ErrNoTarget is returned when no waypoint is active
	ErrNoTarget = errors.New("no target waypoint")

	// ErrMalformedWaypoint is returned when a waypoint lacks local coordinates
	ErrMalformedWaypoint = errors.New("malformed waypoint")
)

// Vec3 is a position in meters in the local frame
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation (x, y, z, w)
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion faces forward (-Z)
var IdentityQuaternion = Quaternion{W: 1}

// Pose is a 6-DOF snapshot from the pose tracker
type Pose struct {
	Position    Vec3       `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// PoseAt builds a level pose at (x, z) with the given yaw
func PoseAt(x, z, yaw float64) Pose {
	return Pose{
		Position: Vec3{X: x, Z: z},
		Orientation: Quaternion{
			Y: math.Sin(yaw / 2),
			W: math.Cos(yaw / 2),
		},
	}
}

// Yaw returns the heading of the pose
func (p Pose) Yaw() float64 {
	return YawFromQuaternion(p.Orientation)
}

// Waypoint is a navigation target. X and Z are local-frame meters; Lat/Lng
// are kept for waypoints that still need geographic conversion.
type Waypoint struct {
	ID  string   `json:"id,omitempty"`
	X   *float64 `json:"x,omitempty"`
	Z   *float64 `json:"z,omitempty"`
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// NewWaypoint creates a waypoint at local coordinates (x, z)
func NewWaypoint(x, z float64) Waypoint {
	return Waypoint{X: &x, Z: &z}
}

// Local returns the local coordinates or ErrMalformedWaypoint
func (w Waypoint) Local() (x, z float64, err error) {
	if w.X == nil || w.Z == nil {
		return 0, 0, fmt.Errorf("%w: missing local coordinates (id=%q)", ErrMalformedWaypoint, w.ID)
	}
	if math.IsNaN(*w.X) || math.IsNaN(*w.Z) {
		return 0, 0, fmt.Errorf("%w: NaN coordinate (id=%q)", ErrMalformedWaypoint, w.ID)
	}
	return *w.X, *w.Z, nil
}

// HasLocal reports whether the waypoint carries local coordinates
func (w Waypoint) HasLocal() bool {
	return w.X != nil && w.Z != nil
}

// HasGeo reports whether the waypoint carries latitude and longitude
func (w Waypoint) HasGeo() bool {
	return w.Lat != nil && w.Lng != nil
}

func (w Waypoint) String() string {
	x, z, err := w.Local()
	if err != nil {
		return fmt.Sprintf("Waypoint{id=%q, malformed}", w.ID)
	}
	return fmt.Sprintf("Waypoint{id=%q, x=%.2f, z=%.2f}", w.ID, x, z)
}
