package waypoints

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/teslashibe/go-nav/internal/navigation"
)

// LoadFile reads a JSON array of waypoints
func LoadFile(path string) ([]navigation.Waypoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read waypoints: %w", err)
	}

	var points []navigation.Waypoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("parse waypoints %s: %w", path, err)
	}

	if err := Prepare(points); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// Prepare assigns IDs where missing and rejects waypoints with no usable
// coordinates.
func Prepare(points []navigation.Waypoint) error {
	for i := range points {
		if points[i].ID == "" {
			points[i].ID = uuid.NewString()
		}
		if !points[i].HasLocal() && !points[i].HasGeo() {
			return fmt.Errorf("waypoint %d: %w", i, navigation.ErrMalformedWaypoint)
		}
	}
	return nil
}
