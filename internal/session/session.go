// Package session serializes pose, navigability and control requests onto
// a single decision goroutine that owns the navigation controller.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-nav/internal/navigation"
)

var (
	// ErrQueueFull is returned when a sensor update is dropped
	ErrQueueFull = errors.New("session queue full")

	// ErrClosed is returned once the decision loop has exited
	ErrClosed = errors.New("session closed")
)

// Queue is the waypoint queue the session drives
type Queue interface {
	navigation.WaypointSource
	Set(points []navigation.Waypoint)
	Snapshot() []navigation.Waypoint
}

// Config configures a session
type Config struct {
	QueueSize        int
	SubscriberBuffer int
	Clock            clock.Clock
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		QueueSize:        64,
		SubscriberBuffer: 32,
	}
}

// EventType identifies a session event
type EventType string

const (
	EventState     EventType = "state"
	EventCommand   EventType = "command"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is published to subscribers from the decision goroutine
type Event struct {
	Type      EventType            `json:"type"`
	State     navigation.State     `json:"state"`
	Waypoint  *navigation.Waypoint `json:"waypoint,omitempty"`
	Command   *navigation.Command  `json:"command,omitempty"`
	Message   string               `json:"message,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

type eventKind int

const (
	kindPose eventKind = iota
	kindNavigability
	kindCall
)

type request struct {
	kind eventKind

	pose                navigation.Pose
	center, left, right []bool

	fn    func(*navigation.Controller) error
	reply chan error
}

// Session owns a navigation controller and runs every decision cycle on
// the goroutine that calls Run.
type Session struct {
	cfg      Config
	queue    Queue
	ctrl     *navigation.Controller
	clock    clock.Clock
	logger   *slog.Logger
	requests chan request

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	status navigation.Status

	subsMu sync.RWMutex
	subs   map[chan Event]struct{}

	// Metrics
	poses        atomic.Int64
	navigability atomic.Int64
	dropped      atomic.Int64
	commands     atomic.Int64
	completed    atomic.Int64
	errorCount   atomic.Int64
}

// New creates a session. setup funcs run synchronously before any cycle,
// typically to register strategies.
func New(cfg Config, queue Queue, actuator navigation.Actuator, logger *slog.Logger, setup ...func(*navigation.Controller)) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	s := &Session{
		cfg:      cfg,
		queue:    queue,
		clock:    cfg.Clock,
		logger:   logger,
		requests: make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		subs:     make(map[chan Event]struct{}),
	}

	s.ctrl = navigation.NewController(queue, &recordingActuator{next: actuator, session: s},
		navigation.WithLogger(logger.With("component", "controller")),
		navigation.WithClock(cfg.Clock),
		navigation.WithListener(s),
	)
	for _, fn := range setup {
		fn(s.ctrl)
	}
	s.status = s.ctrl.Status()

	return s
}

// Run drains the request queue until ctx is cancelled (blocking, use goroutine).
// Navigation is stopped before it returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.closeOnce.Do(func() { close(s.done) })

	s.logger.Info("session started",
		"queue_size", s.cfg.QueueSize,
		"strategies", len(s.ctrl.Strategies()),
	)

	for {
		select {
		case <-ctx.Done():
			s.ctrl.Stop()
			s.refreshStatus()
			s.logger.Info("session stopped",
				"poses", s.poses.Load(),
				"navigability", s.navigability.Load(),
				"dropped", s.dropped.Load(),
				"commands", s.commands.Load(),
			)
			return ctx.Err()

		case req := <-s.requests:
			s.handle(req)
			s.refreshStatus()
		}
	}
}

func (s *Session) handle(req request) {
	switch req.kind {
	case kindPose:
		s.poses.Add(1)
		s.ctrl.UpdatePose(req.pose)
	case kindNavigability:
		s.navigability.Add(1)
		s.ctrl.UpdateNavigability(req.center, req.left, req.right)
	case kindCall:
		err := req.fn(s.ctrl)
		// callers read Status right after Do returns
		s.refreshStatus()
		req.reply <- err
	}
}

func (s *Session) refreshStatus() {
	st := s.ctrl.Status()
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// SubmitPose queues a pose update without blocking
func (s *Session) SubmitPose(p navigation.Pose) error {
	return s.submit(request{kind: kindPose, pose: p})
}

// SubmitNavigability queues probe maps without blocking
func (s *Session) SubmitNavigability(center, left, right []bool) error {
	return s.submit(request{kind: kindNavigability, center: center, left: left, right: right})
}

func (s *Session) submit(req request) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.requests <- req:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Do runs fn on the decision goroutine and waits for its result
func (s *Session) Do(ctx context.Context, fn func(*navigation.Controller) error) error {
	reply := make(chan error, 1)

	select {
	case s.requests <- request{kind: kindCall, fn: fn, reply: reply}:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins navigating the queued waypoints
func (s *Session) Start(ctx context.Context) error {
	return s.Do(ctx, func(c *navigation.Controller) error {
		return c.Start()
	})
}

// Stop halts navigation
func (s *Session) Stop(ctx context.Context) error {
	return s.Do(ctx, func(c *navigation.Controller) error {
		c.Stop()
		return nil
	})
}

// SetWaypoints replaces the queued waypoints. An active navigation keeps
// its current target and continues with the new queue.
func (s *Session) SetWaypoints(ctx context.Context, points []navigation.Waypoint) error {
	return s.Do(ctx, func(c *navigation.Controller) error {
		s.queue.Set(points)
		c.RecountWaypoints()
		s.logger.Info("waypoints replaced", "count", len(points))
		return nil
	})
}

// Waypoints returns the waypoints still queued
func (s *Session) Waypoints() []navigation.Waypoint {
	return s.queue.Snapshot()
}

// SetParameters replaces the controller gains
func (s *Session) SetParameters(ctx context.Context, p navigation.Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.Do(ctx, func(c *navigation.Controller) error {
		c.SetParameters(p)
		return nil
	})
}

// UpdateParameters derives new gains from the ones in use and applies them.
// The gains are left unchanged when update fails.
func (s *Session) UpdateParameters(ctx context.Context, update func(navigation.Parameters) (navigation.Parameters, error)) (navigation.Parameters, error) {
	var applied navigation.Parameters
	err := s.Do(ctx, func(c *navigation.Controller) error {
		p, err := update(c.Context().Params)
		if err != nil {
			return err
		}
		c.SetParameters(p)
		applied = p
		return nil
	})
	return applied, err
}

// Status returns the snapshot taken after the last cycle
func (s *Session) Status() navigation.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Done is closed once Run has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnStateChanged implements navigation.Listener
func (s *Session) OnStateChanged(state navigation.State, waypoint *navigation.Waypoint) {
	s.publish(Event{Type: EventState, State: state, Waypoint: waypoint})
}

// OnCompleted implements navigation.Listener
func (s *Session) OnCompleted() {
	s.completed.Add(1)
	s.publish(Event{Type: EventCompleted, State: navigation.StateCompleted})
}

// OnError implements navigation.Listener
func (s *Session) OnError(msg string) {
	s.errorCount.Add(1)
	s.logger.Warn("navigation error", "message", msg)
	s.publish(Event{Type: EventError, Message: msg})
}

func (s *Session) publish(ev Event) {
	ev.Timestamp = s.clock.Now()
	if ev.Type != EventCompleted && ev.Type != EventState {
		ev.State = s.ctrl.Context().State
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Subscribe returns a channel that receives session events
func (s *Session) Subscribe() chan Event {
	ch := make(chan Event, s.cfg.SubscriberBuffer)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber
func (s *Session) Unsubscribe(ch chan Event) {
	s.subsMu.Lock()
	if _, exists := s.subs[ch]; exists {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

// Close closes all subscriber channels. Call after Run has returned.
func (s *Session) Close() {
	s.subsMu.Lock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.subsMu.Unlock()
}

// Stats returns session statistics
func (s *Session) Stats() Stats {
	s.subsMu.RLock()
	subscribers := len(s.subs)
	s.subsMu.RUnlock()

	return Stats{
		Poses:           s.poses.Load(),
		Navigability:    s.navigability.Load(),
		Dropped:         s.dropped.Load(),
		Commands:        s.commands.Load(),
		Completed:       s.completed.Load(),
		Errors:          s.errorCount.Load(),
		QueueDepth:      len(s.requests),
		SubscriberCount: subscribers,
	}
}

// Stats contains session statistics
type Stats struct {
	Poses           int64 `json:"poses"`
	Navigability    int64 `json:"navigability"`
	Dropped         int64 `json:"dropped"`
	Commands        int64 `json:"commands"`
	Completed       int64 `json:"completed"`
	Errors          int64 `json:"errors"`
	QueueDepth      int   `json:"queue_depth"`
	SubscriberCount int   `json:"subscriber_count"`
}

// recordingActuator forwards commands and publishes them as events
type recordingActuator struct {
	next    navigation.Actuator
	session *Session
	staged  navigation.Command
}

func (r *recordingActuator) SetVelocity(linear, angular float64) {
	r.staged = navigation.Command{Linear: linear, Angular: angular}
	if r.next != nil {
		r.next.SetVelocity(linear, angular)
	}
}

func (r *recordingActuator) Transmit() {
	if r.next != nil {
		r.next.Transmit()
	}
	r.session.commands.Add(1)
	cmd := r.staged
	r.session.publish(Event{Type: EventCommand, Command: &cmd})
}
