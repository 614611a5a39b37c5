// Package waypoints holds the waypoint queue a navigation session consumes
// and the ways of filling it: JSON files, a remote waypoint store and
// geographic coordinates resolved against a location fix.
package waypoints

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-nav/internal/navigation"
)

// Locator supplies the fix used to resolve geographic waypoints
type Locator interface {
	Fix() (Fix, bool)
}

// Queue is a thread-safe FIFO of waypoints
type Queue struct {
	mu      sync.Mutex
	items   []navigation.Waypoint
	locator Locator
	logger  *slog.Logger
}

// NewQueue creates an empty queue. locator may be nil when only local
// waypoints are used.
func NewQueue(locator Locator, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{locator: locator, logger: logger}
}

// Set replaces the queue contents
func (q *Queue) Set(points []navigation.Waypoint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]navigation.Waypoint(nil), points...)
}

// Append adds waypoints to the end of the queue
func (q *Queue) Append(points ...navigation.Waypoint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, points...)
}

// HasNext reports whether a waypoint is queued
func (q *Queue) HasNext() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

// Count returns the number of queued waypoints
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Next pops the head of the queue. Waypoints that only carry geographic
// coordinates are resolved to the local frame with the current fix.
func (q *Queue) Next() (navigation.Waypoint, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return navigation.Waypoint{}, false
	}
	w := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	if !w.HasLocal() && w.HasGeo() {
		if resolved, ok := q.Resolve(w); ok {
			w = resolved
		} else {
			q.logger.Warn("geographic waypoint not yet resolvable", "waypoint", w.ID)
		}
	}
	return w, true
}

// Resolve converts a geographic waypoint to local coordinates with the
// current fix. ok is false while no locator or fix is available.
// Waypoints that already carry local coordinates are returned unchanged.
func (q *Queue) Resolve(w navigation.Waypoint) (navigation.Waypoint, bool) {
	if w.HasLocal() {
		return w, true
	}
	if !w.HasGeo() || q.locator == nil {
		return w, false
	}
	fix, ok := q.locator.Fix()
	if !ok {
		return w, false
	}

	x, z := ToLocal(*w.Lat, *w.Lng, fix)
	w.X = &x
	w.Z = &z

	q.logger.Debug("resolved geographic waypoint",
		"waypoint", w.ID,
		"lat", *w.Lat,
		"lng", *w.Lng,
		"x", x,
		"z", z,
	)
	return w, true
}

// Snapshot returns a copy of the queued waypoints
func (q *Queue) Snapshot() []navigation.Waypoint {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]navigation.Waypoint(nil), q.items...)
}
