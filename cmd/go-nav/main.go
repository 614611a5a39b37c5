// go-nav: navigation daemon for a differential-drive ground robot.
// Turns pose and depth-probe updates into velocity commands for the
// motor controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-nav/internal/bridge"
	"github.com/teslashibe/go-nav/internal/config"
	"github.com/teslashibe/go-nav/internal/health"
	"github.com/teslashibe/go-nav/internal/navigation"
	"github.com/teslashibe/go-nav/internal/protocol"
	"github.com/teslashibe/go-nav/internal/server"
	"github.com/teslashibe/go-nav/internal/session"
	"github.com/teslashibe/go-nav/internal/vehicle"
	"github.com/teslashibe/go-nav/internal/waypoints"
)

var (
	version       = "0.3.0"
	configPath    = flag.String("config", "/etc/go-nav/config.yaml", "config file path")
	showVersion   = flag.Bool("version", false, "print version and exit")
	debug         = flag.Bool("debug", false, "enable debug logging")
	useMock       = flag.Bool("mock", false, "use mock vehicle transport (for testing)")
	waypointsFile = flag.String("waypoints", "", "JSON waypoint file to load at startup")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-nav %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *useMock {
		cfg.Vehicle.Transport = vehicle.TransportMock
	}
	if *waypointsFile != "" {
		cfg.Navigation.WaypointsFile = *waypointsFile
	}

	logger := setupLogger(cfg.Logging)

	logger.Info("starting go-nav",
		"version", version,
		"config", *configPath,
		"port", cfg.Server.Port,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("go-nav failed", "error", err)
		os.Exit(1)
	}

	logger.Info("go-nav stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Vehicle link
	transport := vehicle.NewTransportWithFallback(transportConfig(cfg.Vehicle), logger.With("component", "vehicle"))
	defer transport.Close()

	dispatcher := vehicle.NewDispatcher(transport, vehicle.DispatcherConfig{
		Codec:             vehicle.Codec{LinearScale: cfg.Vehicle.LinearScale, AngularScale: cfg.Vehicle.AngularScale},
		HeartbeatInterval: cfg.Vehicle.HeartbeatInterval,
		HeartbeatTimeout:  3 * cfg.Vehicle.HeartbeatInterval,
		WheelBase:         cfg.Vehicle.WheelBase,
	}, logger.With("component", "dispatcher"))

	logger.Info("vehicle transport ready",
		"transport", transport.Name(),
		"healthy", transport.Healthy(),
	)

	// Waypoints and navigation session
	anchor := &waypoints.Anchor{}
	queue := waypoints.NewQueue(anchor, logger.With("component", "waypoints"))

	strategies, err := buildStrategies(cfg.Navigation, logger.With("component", "strategy"))
	if err != nil {
		return err
	}

	sess := session.New(session.Config{QueueSize: cfg.Session.QueueSize}, queue, dispatcher,
		logger.With("component", "session"),
		func(c *navigation.Controller) {
			nctx := c.Context()
			nctx.MaxLinearSpeed = cfg.Navigation.MaxLinearSpeed
			nctx.MaxAngularSpeed = cfg.Navigation.MaxAngularSpeed
			nctx.RotationThresholdDeg = cfg.Navigation.RotationThresholdDeg
			nctx.PositionThresholdM = cfg.Navigation.PositionThresholdM
			for _, s := range strategies {
				c.AddStrategy(s)
			}
			c.SetParameters(cfg.Navigation.Parameters())
		},
	)
	defer sess.Close()

	var store *waypoints.Store
	if cfg.WaypointStore.BaseURL != "" {
		store = waypoints.NewStore(waypoints.StoreConfig{
			BaseURL: cfg.WaypointStore.BaseURL,
			Timeout: cfg.WaypointStore.Timeout,
		}, logger.With("component", "store"))
	}

	if err := loadInitialWaypoints(ctx, cfg, queue, store, logger); err != nil {
		logger.Warn("no initial waypoints", "error", err)
	}

	// Health of the sensor feeds
	checker := health.NewChecker(version, nil)
	checker.Watch(server.FeedPose, cfg.Session.StaleAfter)
	checker.Watch(server.FeedNavigability, cfg.Session.StaleAfter)

	deps := server.Deps{
		Session: sess,
		Health:  checker,
		Config:  cfg,
		Vehicle: dispatcher.Stats,
	}
	if store != nil {
		deps.Store = store
	}

	var client *bridge.Client
	if cfg.Bridge.URL != "" {
		client = connectBridge(cfg.Bridge, sess, anchor, checker, logger.With("component", "bridge"))
		deps.Bridge = client.Stats
	}

	srv := server.New(cfg.Server, deps, logger.With("component", "server"), version)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(sess.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(dispatcher.Run(gctx))
	})
	g.Go(func() error {
		srv.WSHub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if client != nil {
		if err := client.Connect(gctx); err != nil {
			return err
		}
		defer client.Close()

		events := sess.Subscribe()
		g.Go(func() error {
			client.Forward(gctx, events)
			return nil
		})
	}

	printStartupBanner(cfg, version)

	// Graceful shutdown once a signal arrives or a component fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func transportConfig(cfg config.VehicleConfig) vehicle.TransportConfig {
	usb := vehicle.DefaultUSBConfig()
	usb.VendorID = uint16(cfg.USBVendorID)
	usb.ProductID = uint16(cfg.USBProductID)

	return vehicle.TransportConfig{
		Kind: cfg.Transport,
		Port: cfg.Port,
		Serial: vehicle.PortOptions{
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			StopBits: cfg.StopBits,
			Parity:   cfg.Parity,
		},
		USB: usb,
	}
}

// buildStrategies creates the configured strategies, each with its own
// turning controller so PD error memory is not shared.
func buildStrategies(cfg config.NavigationConfig, logger *slog.Logger) ([]navigation.Strategy, error) {
	params := cfg.Parameters()

	var out []navigation.Strategy
	for _, name := range cfg.Strategies {
		turner, err := navigation.NewTurnController(cfg.Controller, params)
		if err != nil {
			return nil, err
		}

		switch name {
		case config.StrategyCombined:
			c := navigation.NewCombined(turner, logger)
			c.SetObstacleThreshold(cfg.ObstacleThreshold)
			tuneAvoidance(c.ObstacleAvoidance(), cfg)
			out = append(out, c)
		case config.StrategyWaypoint:
			out = append(out, navigation.NewWaypointFollowing(turner, logger))
		case config.StrategyObstacle:
			o := navigation.NewObstacleAvoidance(logger)
			tuneAvoidance(o, cfg)
			out = append(out, o)
		default:
			return nil, fmt.Errorf("unknown navigation strategy %q", name)
		}
	}
	return out, nil
}

func tuneAvoidance(o *navigation.ObstacleAvoidance, cfg config.NavigationConfig) {
	o.TraversabilityWeight = cfg.TraversabilityWeight
	o.HeadingWeight = cfg.HeadingWeight
	o.CostBased = cfg.CostBased
}

// loadInitialWaypoints fills the queue from the waypoint file, or from the
// waypoint store when no file is configured.
func loadInitialWaypoints(ctx context.Context, cfg *config.Config, queue *waypoints.Queue, store *waypoints.Store, logger *slog.Logger) error {
	if path := cfg.Navigation.WaypointsFile; path != "" {
		points, err := waypoints.LoadFile(path)
		if err != nil {
			return err
		}
		queue.Set(points)
		logger.Info("waypoints loaded", "file", path, "count", len(points))
		return nil
	}

	if store != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.WaypointStore.Timeout)
		defer cancel()

		points, err := store.Fetch(fetchCtx)
		if err != nil {
			return err
		}
		queue.Set(points)
		return nil
	}

	return nil
}

// connectBridge routes sensor bridge messages into the session
func connectBridge(cfg config.BridgeConfig, sess *session.Session, anchor *waypoints.Anchor, checker *health.Checker, logger *slog.Logger) *bridge.Client {
	client := bridge.NewClient(bridge.Config{
		URL:              cfg.URL,
		ReconnectBackoff: cfg.ReconnectBackoff,
		MaxBackoff:       cfg.MaxBackoff,
		PingInterval:     cfg.PingInterval,
		WriteTimeout:     cfg.WriteTimeout,
	}, logger)

	client.OnPose(func(p navigation.Pose) {
		if err := sess.SubmitPose(p); err != nil {
			logger.Debug("pose dropped", "error", err)
			return
		}
		checker.Touch(server.FeedPose)
	})

	client.OnNavigability(func(d protocol.NavigabilityData) {
		if err := sess.SubmitNavigability(d.Center, d.Left, d.Right); err != nil {
			logger.Debug("navigability dropped", "error", err)
			return
		}
		checker.Touch(server.FeedNavigability)
	})

	client.OnLocation(func(l protocol.LocationData) {
		anchor.Update(waypoints.Fix{
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Bearing:   l.Bearing,
			X:         l.X,
			Z:         l.Z,
			Yaw:       l.Yaw,
			Timestamp: time.Now(),
		})
	})

	// Control requests block on the decision goroutine; keep them off the
	// read loop.
	client.OnWaypoints(func(d protocol.WaypointsData) {
		go func() {
			if err := waypoints.Prepare(d.Waypoints); err != nil {
				logger.Warn("rejected waypoints", "error", err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := sess.SetWaypoints(ctx, d.Waypoints); err != nil {
				logger.Warn("set waypoints failed", "error", err)
				return
			}
			if d.Start {
				if err := sess.Start(ctx); err != nil {
					logger.Warn("start failed", "error", err)
				}
			}
		}()
	})

	client.OnParams(func(patch protocol.ParamsPatch) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := sess.UpdateParameters(ctx, patch.Apply); err != nil {
				logger.Warn("set parameters failed", "error", err)
			}
		}()
	})

	client.OnControl(func(t protocol.MessageType) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var err error
			if t == protocol.TypeStart {
				err = sess.Start(ctx)
			} else {
				err = sess.Stop(ctx)
			}
			if err != nil {
				logger.Warn("navigation control failed", "request", t, "error", err)
			}
		}()
	})

	return client
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("🧭 go-nav v" + version)
	fmt.Printf("   controller=%s strategies=%v vehicle=%s\n",
		cfg.Navigation.Controller, cfg.Navigation.Strategies, cfg.Vehicle.Transport)
	fmt.Println()
	fmt.Printf("🚀 Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health                       - Health check")
	fmt.Println("   GET  /api/navigation               - Controller status")
	fmt.Println("   POST /api/navigation/start         - Start navigation")
	fmt.Println("   POST /api/navigation/stop          - Stop navigation")
	fmt.Println("   GET  /api/waypoints                - Queued waypoints")
	fmt.Println("   PUT  /api/waypoints                - Replace waypoints")
	fmt.Println("   WS   /api/navigation/stream        - Telemetry stream")
	fmt.Println("   GET  /metrics                      - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
