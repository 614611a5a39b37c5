// Package server provides the HTTP API and telemetry stream for go-nav
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-nav/internal/bridge"
	"github.com/teslashibe/go-nav/internal/config"
	"github.com/teslashibe/go-nav/internal/health"
	"github.com/teslashibe/go-nav/internal/navigation"
	"github.com/teslashibe/go-nav/internal/protocol"
	"github.com/teslashibe/go-nav/internal/session"
	"github.com/teslashibe/go-nav/internal/vehicle"
	"github.com/teslashibe/go-nav/internal/waypoints"
)

// Health check component names for the sensor feeds
const (
	FeedPose         = "pose"
	FeedNavigability = "navigability"
)

// Health check component names for links to other services
const (
	ComponentVehicle       = "vehicle"
	ComponentBridge        = "bridge"
	ComponentWaypointStore = "waypoint_store"
)

// WaypointStore is the remote waypoint source reported on /health
type WaypointStore interface {
	IsHealthy(ctx context.Context) bool
	Stats() waypoints.StoreStats
}

// Deps are the components the server exposes
type Deps struct {
	Session *session.Session
	Health  *health.Checker
	Config  *config.Config

	// Vehicle reports dispatcher statistics, nil when unavailable
	Vehicle func() vehicle.DispatcherStats

	// Bridge reports sensor bridge statistics, nil when no bridge is configured
	Bridge func() bridge.Stats

	// Store is nil when no waypoint store is configured
	Store WaypointStore
}

// Server is the HTTP server for go-nav
type Server struct {
	app       *fiber.App
	cfg       config.ServerConfig
	deps      Deps
	logger    *slog.Logger
	wsHub     *WSHub
	startTime time.Time
	version   string
}

// New creates a new HTTP server
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker(version, nil)
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-nav",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger))

	s := &Server{
		app:       app,
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		wsHub:     NewWSHub(deps.Session, logger),
		startTime: time.Now(),
		version:   version,
	}

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler)

	api := s.app.Group("/api")

	// Config endpoint
	api.Get("/config", s.configHandler)

	nav := api.Group("/navigation")
	nav.Get("/", s.statusHandler)
	nav.Post("/start", s.startHandler)
	nav.Post("/stop", s.stopHandler)
	nav.Post("/pose", s.poseHandler)
	nav.Post("/navigability", s.navigabilityHandler)
	nav.Put("/params", s.paramsHandler)
	nav.Get("/stats", s.statsHandler)
	nav.Get("/stream", s.wsHub.UpgradeHandler())

	api.Get("/waypoints", s.waypointsHandler)
	api.Put("/waypoints", s.setWaypointsHandler)
}

// healthHandler returns service health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	if s.deps.Vehicle != nil {
		stats := s.deps.Vehicle()
		s.deps.Health.SetComponent(ComponentVehicle, stats.Healthy, stats.Transport)
	}
	if s.deps.Bridge != nil {
		msg := "disconnected"
		if s.deps.Bridge().Connected {
			msg = "connected"
		}
		s.deps.Health.SetComponent(ComponentBridge, msg == "connected", msg)
	}
	if s.deps.Store != nil {
		s.deps.Health.SetComponent(ComponentWaypointStore, s.deps.Store.IsHealthy(c.UserContext()), "")
	}

	status := s.deps.Health.GetStatus()

	return c.JSON(fiber.Map{
		"status":         status.Status,
		"version":        s.version,
		"uptime_seconds": status.UptimeSeconds,
		"navigating":     s.deps.Session.Status().Navigating,
		"components":     status.Components,
	})
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	resp := fiber.Map{
		"server": fiber.Map{
			"port":             s.cfg.Port,
			"read_timeout_ms":  s.cfg.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.WriteTimeout.Milliseconds(),
		},
	}

	if cfg := s.deps.Config; cfg != nil {
		resp["navigation"] = fiber.Map{
			"controller":             cfg.Navigation.Controller,
			"strategies":             cfg.Navigation.Strategies,
			"rotation_threshold_deg": cfg.Navigation.RotationThresholdDeg,
			"position_threshold_m":   cfg.Navigation.PositionThresholdM,
			"max_linear_speed":       cfg.Navigation.MaxLinearSpeed,
			"max_angular_speed":      cfg.Navigation.MaxAngularSpeed,
			"obstacle_threshold":     cfg.Navigation.ObstacleThreshold,
			"gains":                  cfg.Navigation.Parameters(),
		}
		resp["vehicle"] = fiber.Map{
			"transport":             cfg.Vehicle.Transport,
			"port":                  cfg.Vehicle.Port,
			"linear_scale":          cfg.Vehicle.LinearScale,
			"angular_scale":         cfg.Vehicle.AngularScale,
			"heartbeat_interval_ms": cfg.Vehicle.HeartbeatInterval.Milliseconds(),
			"wheel_base":            cfg.Vehicle.WheelBase,
		}
	}

	return c.JSON(resp)
}

// statusHandler returns the controller snapshot
func (s *Server) statusHandler(c *fiber.Ctx) error {
	return c.JSON(s.deps.Session.Status())
}

// statsHandler returns session statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	return c.JSON(s.deps.Session.Stats())
}

func (s *Server) startHandler(c *fiber.Ctx) error {
	if err := s.deps.Session.Start(c.UserContext()); err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(s.deps.Session.Status())
}

func (s *Server) stopHandler(c *fiber.Ctx) error {
	if err := s.deps.Session.Stop(c.UserContext()); err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(s.deps.Session.Status())
}

func (s *Server) poseHandler(c *fiber.Ctx) error {
	var pose navigation.Pose
	if err := c.BodyParser(&pose); err != nil {
		return badRequest(c, fmt.Errorf("invalid pose: %w", err))
	}

	if err := s.deps.Session.SubmitPose(pose); err != nil {
		return s.sessionError(c, err)
	}
	s.deps.Health.Touch(FeedPose)

	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) navigabilityHandler(c *fiber.Ctx) error {
	msg := protocol.Message{Type: protocol.TypeNavigability, Data: c.Body()}
	rows, err := msg.GetNavigability()
	if err != nil {
		return badRequest(c, err)
	}

	if err := s.deps.Session.SubmitNavigability(rows.Center, rows.Left, rows.Right); err != nil {
		return s.sessionError(c, err)
	}
	s.deps.Health.Touch(FeedNavigability)

	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) paramsHandler(c *fiber.Ctx) error {
	msg := protocol.Message{Type: protocol.TypeParams, Data: c.Body()}
	patch, err := msg.GetParams()
	if err != nil {
		return badRequest(c, err)
	}

	var invalid error
	params, err := s.deps.Session.UpdateParameters(c.UserContext(), func(cur navigation.Parameters) (navigation.Parameters, error) {
		p, err := patch.Apply(cur)
		invalid = err
		return p, err
	})
	if invalid != nil {
		return badRequest(c, invalid)
	}
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(params)
}

func (s *Server) waypointsHandler(c *fiber.Ctx) error {
	points := s.deps.Session.Waypoints()
	if points == nil {
		points = []navigation.Waypoint{}
	}
	return c.JSON(fiber.Map{
		"count":     len(points),
		"waypoints": points,
	})
}

func (s *Server) setWaypointsHandler(c *fiber.Ctx) error {
	var data protocol.WaypointsData
	if err := c.BodyParser(&data); err != nil {
		return badRequest(c, fmt.Errorf("invalid waypoints: %w", err))
	}
	if err := waypoints.Prepare(data.Waypoints); err != nil {
		return badRequest(c, err)
	}

	ctx := c.UserContext()
	if err := s.deps.Session.SetWaypoints(ctx, data.Waypoints); err != nil {
		return s.sessionError(c, err)
	}
	if data.Start {
		if err := s.deps.Session.Start(ctx); err != nil {
			return s.sessionError(c, err)
		}
	}

	return c.JSON(fiber.Map{
		"count":  len(data.Waypoints),
		"status": s.deps.Session.Status(),
	})
}

func (s *Server) sessionError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, navigation.ErrNoWaypoints):
		status = fiber.StatusConflict
	case errors.Is(err, session.ErrQueueFull), errors.Is(err, session.ErrClosed):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusServiceUnavailable
	}

	if status == fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	stats := s.deps.Session.Stats()
	status := s.deps.Session.Status()

	var b strings.Builder
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP go_nav_%s %s\n# TYPE go_nav_%s %s\ngo_nav_%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("navigating", "gauge", "Navigation active (1=navigating, 0=idle)", boolToInt(status.Navigating))
	metric("state", "gauge", "Navigation state (0=IDLE 1=TURNING 2=MOVING 3=AVOIDING 4=COMPLETED)", int(status.State))
	metric("waypoint_index", "gauge", "Index of the active waypoint", status.WaypointIndex)
	metric("waypoint_count", "gauge", "Total waypoints in the current run", status.WaypointCount)
	metric("linear_command", "gauge", "Last linear command", status.LastCommand.Linear)
	metric("angular_command", "gauge", "Last angular command", status.LastCommand.Angular)
	metric("poses_total", "counter", "Total pose updates processed", stats.Poses)
	metric("navigability_total", "counter", "Total navigability updates processed", stats.Navigability)
	metric("dropped_total", "counter", "Sensor updates dropped on a full queue", stats.Dropped)
	metric("commands_total", "counter", "Total velocity commands emitted", stats.Commands)
	metric("completed_total", "counter", "Total completed waypoint runs", stats.Completed)
	metric("errors_total", "counter", "Total navigation errors", stats.Errors)
	metric("queue_depth", "gauge", "Pending session requests", stats.QueueDepth)

	if s.deps.Vehicle != nil {
		v := s.deps.Vehicle()
		metric("vehicle_healthy", "gauge", "Vehicle transport health (1=healthy, 0=unhealthy)", boolToInt(v.Healthy))
		metric("vehicle_frames_total", "counter", "Control frames written", v.FramesSent)
		metric("vehicle_heartbeats_total", "counter", "Heartbeat frames written", v.Heartbeats)
		metric("vehicle_coalesced_total", "counter", "Commands replaced before transmission", v.Coalesced)
		metric("vehicle_write_errors_total", "counter", "Transport write errors", v.WriteErrors)
		metric("vehicle_left_wheel", "gauge", "Left wheel speed for the last command", v.LeftWheel)
		metric("vehicle_right_wheel", "gauge", "Right wheel speed for the last command", v.RightWheel)
	}

	if s.deps.Bridge != nil {
		b := s.deps.Bridge()
		metric("bridge_connected", "gauge", "Sensor bridge connection (1=connected, 0=disconnected)", boolToInt(b.Connected))
		metric("bridge_messages_sent_total", "counter", "Messages sent to the sensor bridge", b.MessagesSent)
		metric("bridge_messages_received_total", "counter", "Messages received from the sensor bridge", b.MessagesReceived)
		metric("bridge_parse_errors_total", "counter", "Bridge messages that failed to parse", b.ParseErrors)
		metric("bridge_reconnects_total", "counter", "Sensor bridge reconnections", b.Reconnects)
	}

	if s.deps.Store != nil {
		st := s.deps.Store.Stats()
		metric("waypoint_store_fetches_total", "counter", "Waypoint store fetches", st.Fetches)
		metric("waypoint_store_fetch_errors_total", "counter", "Failed waypoint store fetches", st.FetchErrors)
	}

	metric("uptime_seconds", "gauge", "Server uptime in seconds", int64(time.Since(s.startTime).Seconds()))
	metric("websocket_clients", "gauge", "Current WebSocket client count", s.wsHub.ClientCount())

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(b.String())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
}

// WSHub returns the WebSocket hub for external control
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
