package waypoints

import (
	"math"
	"sync"
	"time"
)

// earthRadius is the mean Earth radius in meters
const earthRadius = 6371000.0

// Fix ties a geographic position and compass bearing to the local pose
// observed at the same instant.
type Fix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Bearing   float64   `json:"bearing"` // degrees clockwise from north
	X         float64   `json:"x"`
	Z         float64   `json:"z"`
	Yaw       float64   `json:"yaw"` // radians, local frame
	Timestamp time.Time `json:"timestamp"`
}

// ToLocal converts a geographic position to local coordinates with an
// equirectangular approximation around the fix. Accurate to well under a
// meter for the few hundred meters a waypoint run covers.
func ToLocal(lat, lng float64, fix Fix) (x, z float64) {
	lat0 := fix.Latitude * math.Pi / 180
	dLat := (lat - fix.Latitude) * math.Pi / 180
	dLng := (lng - fix.Longitude) * math.Pi / 180

	east := earthRadius * dLng * math.Cos(lat0)
	north := earthRadius * dLat

	// offset in the robot body frame
	theta := fix.Bearing * math.Pi / 180
	forward := east*math.Sin(theta) + north*math.Cos(theta)
	right := east*math.Cos(theta) - north*math.Sin(theta)

	// body frame to local frame; forward is -Z at yaw 0
	sin, cos := math.Sincos(fix.Yaw)
	x = fix.X + right*cos - forward*sin
	z = fix.Z - right*sin - forward*cos
	return x, z
}

// Anchor keeps the latest location fix
type Anchor struct {
	mu  sync.RWMutex
	fix Fix
	ok  bool
}

// Update stores a new fix
func (a *Anchor) Update(fix Fix) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fix = fix
	a.ok = true
}

// Fix implements Locator
func (a *Anchor) Fix() (Fix, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fix, a.ok
}
