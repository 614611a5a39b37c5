// Package health tracks component health and the freshness of the
// sensor feeds the navigation loop depends on.
package health

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Status represents overall system health
type Status struct {
	Status        string           `json:"status"` // ok, degraded
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
}

// Check represents a component health check
type Check struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

type feed struct {
	staleAfter time.Duration
	lastSeen   time.Time
}

// Checker tracks health of system components
type Checker struct {
	mu         sync.RWMutex
	clock      clock.Clock
	version    string
	startTime  time.Time
	components map[string]Check
	feeds      map[string]*feed
}

// NewChecker creates a new health checker. A nil clock uses the wall clock.
func NewChecker(version string, clk clock.Clock) *Checker {
	if clk == nil {
		clk = clock.New()
	}
	return &Checker{
		clock:      clk,
		version:    version,
		startTime:  clk.Now(),
		components: make(map[string]Check),
		feeds:      make(map[string]*feed),
	}
}

// SetComponent updates a component's health status
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = Check{
		Healthy:   healthy,
		Message:   message,
		LastCheck: c.clock.Now(),
	}
}

// Watch registers a feed that is unhealthy when not touched within staleAfter
func (c *Checker) Watch(name string, staleAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feeds[name] = &feed{staleAfter: staleAfter}
}

// Touch records fresh data on a watched feed. Unknown names are ignored.
func (c *Checker) Touch(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.feeds[name]; ok {
		f.lastSeen = c.clock.Now()
	}
}

func (c *Checker) feedCheck(f *feed, now time.Time) Check {
	switch {
	case f.lastSeen.IsZero():
		return Check{Healthy: false, Message: "no data", LastCheck: now}
	case now.Sub(f.lastSeen) > f.staleAfter:
		return Check{Healthy: false, Message: "stale", LastCheck: f.lastSeen}
	default:
		return Check{Healthy: true, LastCheck: f.lastSeen}
	}
}

// GetStatus returns the overall health status
func (c *Checker) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()

	components := make(map[string]Check, len(c.components)+len(c.feeds))
	for k, v := range c.components {
		components[k] = v
	}
	for k, f := range c.feeds {
		components[k] = c.feedCheck(f, now)
	}

	status := "ok"
	for _, check := range components {
		if !check.Healthy {
			status = "degraded"
			break
		}
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(now.Sub(c.startTime).Seconds()),
		Components:    components,
	}
}

// IsHealthy returns true if all components are healthy and no feed is stale
func (c *Checker) IsHealthy() bool {
	return c.GetStatus().Status == "ok"
}

// Fresh reports whether a watched feed has recent data
func (c *Checker) Fresh(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.feeds[name]
	if !ok {
		return false
	}
	return c.feedCheck(f, c.clock.Now()).Healthy
}
