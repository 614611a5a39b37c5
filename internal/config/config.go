// Package config provides configuration management for go-nav
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-nav/internal/navigation"
)

// Strategy names accepted in navigation.strategies
const (
	StrategyCombined = "combined"
	StrategyWaypoint = "waypoint"
	StrategyObstacle = "obstacle"
)

// Config is the root configuration structure
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Navigation    NavigationConfig    `mapstructure:"navigation"`
	Session       SessionConfig       `mapstructure:"session"`
	Vehicle       VehicleConfig       `mapstructure:"vehicle"`
	Bridge        BridgeConfig        `mapstructure:"bridge"`
	WaypointStore WaypointStoreConfig `mapstructure:"waypoint_store"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// NavigationConfig configures the decision layer
type NavigationConfig struct {
	Controller           string   `mapstructure:"controller"` // pd, rule_based
	Strategies           []string `mapstructure:"strategies"` // combined, waypoint, obstacle
	RotationThresholdDeg float64  `mapstructure:"rotation_threshold_deg"`
	PositionThresholdM   float64  `mapstructure:"position_threshold_m"`
	MaxLinearSpeed       float64  `mapstructure:"max_linear_speed"`
	MaxAngularSpeed      float64  `mapstructure:"max_angular_speed"`
	ObstacleThreshold    float64  `mapstructure:"obstacle_threshold"`
	TraversabilityWeight float64  `mapstructure:"traversability_weight"`
	HeadingWeight        float64  `mapstructure:"heading_weight"`
	CostBased            bool     `mapstructure:"cost_based"`
	WaypointsFile        string   `mapstructure:"waypoints_file"`

	// Gains overrides the controller's default gains when set
	Gains *GainsConfig `mapstructure:"gains"`
}

// GainsConfig holds turning controller gains. Keys left out of the file
// keep the value of the selected controller's preset.
type GainsConfig struct {
	TurningKp       *float64 `mapstructure:"turning_kp"`
	TurningKd       *float64 `mapstructure:"turning_kd"`
	CorrectionKp    *float64 `mapstructure:"correction_kp"`
	CorrectionKd    *float64 `mapstructure:"correction_kd"`
	MinTurnSpeed    *float64 `mapstructure:"min_turn_speed"`
	TurnSpeedScale  *float64 `mapstructure:"turn_speed_scale"`
	CorrectionScale *float64 `mapstructure:"correction_scale"`
}

// Parameters returns the selected controller's preset with any configured
// gains applied on top
func (n NavigationConfig) Parameters() navigation.Parameters {
	p := navigation.DefaultRuleBasedParameters()
	if n.Controller == navigation.ControllerPD {
		p = navigation.DefaultPDParameters()
	}
	if n.Gains == nil {
		return p
	}

	overrides := []struct {
		src *float64
		dst *float64
	}{
		{n.Gains.TurningKp, &p.TurningKp},
		{n.Gains.TurningKd, &p.TurningKd},
		{n.Gains.CorrectionKp, &p.CorrectionKp},
		{n.Gains.CorrectionKd, &p.CorrectionKd},
		{n.Gains.MinTurnSpeed, &p.MinTurnSpeed},
		{n.Gains.TurnSpeedScale, &p.TurnSpeedScale},
		{n.Gains.CorrectionScale, &p.CorrectionScale},
	}
	for _, o := range overrides {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	return p
}

// SessionConfig configures the decision loop
type SessionConfig struct {
	QueueSize  int           `mapstructure:"queue_size"`
	StaleAfter time.Duration `mapstructure:"stale_after"` // sensor feed considered stale after this
}

// VehicleConfig configures the link to the motor controller
type VehicleConfig struct {
	Transport         string        `mapstructure:"transport"` // serial, usb, mock
	Port              string        `mapstructure:"port"`
	BaudRate          int           `mapstructure:"baud_rate"`
	DataBits          int           `mapstructure:"data_bits"`
	StopBits          int           `mapstructure:"stop_bits"`
	Parity            string        `mapstructure:"parity"`
	USBVendorID       int           `mapstructure:"usb_vendor_id"`
	USBProductID      int           `mapstructure:"usb_product_id"`
	LinearScale       float64       `mapstructure:"linear_scale"`
	AngularScale      float64       `mapstructure:"angular_scale"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WheelBase         float64       `mapstructure:"wheel_base"`
}

// BridgeConfig configures the sensor bridge client. An empty URL disables it.
type BridgeConfig struct {
	URL              string        `mapstructure:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// WaypointStoreConfig configures the waypoint store client. An empty base
// URL disables it.
type WaypointStoreConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		Navigation: NavigationConfig{
			Controller:           navigation.ControllerRuleBased,
			Strategies:           []string{StrategyCombined},
			RotationThresholdDeg: navigation.DefaultRotationThresholdDeg,
			PositionThresholdM:   navigation.DefaultPositionThresholdM,
			MaxLinearSpeed:       navigation.DefaultMaxLinearSpeed,
			MaxAngularSpeed:      navigation.DefaultMaxAngularSpeed,
			ObstacleThreshold:    navigation.DefaultObstacleThreshold,
			TraversabilityWeight: navigation.DefaultTraversabilityWeight,
			HeadingWeight:        navigation.DefaultHeadingWeight,
			CostBased:            true,
		},
		Session: SessionConfig{
			QueueSize:  64,
			StaleAfter: 1 * time.Second,
		},
		Vehicle: VehicleConfig{
			Transport:         "serial",
			Port:              "/dev/ttyACM0",
			BaudRate:          115200,
			DataBits:          8,
			StopBits:          1,
			Parity:            "N",
			USBVendorID:       0x303A,
			USBProductID:      0x1001,
			LinearScale:       192,
			AngularScale:      192,
			HeartbeatInterval: 250 * time.Millisecond,
			WheelBase:         0.15,
		},
		Bridge: BridgeConfig{
			ReconnectBackoff: 1 * time.Second,
			MaxBackoff:       30 * time.Second,
			PingInterval:     10 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		WaypointStore: WaypointStoreConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// Only warn, we have defaults
			fmt.Fprintf(os.Stderr, "Warning: config file not read from %s (%v), using defaults\n", path, err)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("GONAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	// Server defaults
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")

	// Navigation defaults
	v.SetDefault("navigation.controller", d.Navigation.Controller)
	v.SetDefault("navigation.strategies", d.Navigation.Strategies)
	v.SetDefault("navigation.rotation_threshold_deg", d.Navigation.RotationThresholdDeg)
	v.SetDefault("navigation.position_threshold_m", d.Navigation.PositionThresholdM)
	v.SetDefault("navigation.max_linear_speed", d.Navigation.MaxLinearSpeed)
	v.SetDefault("navigation.max_angular_speed", d.Navigation.MaxAngularSpeed)
	v.SetDefault("navigation.obstacle_threshold", d.Navigation.ObstacleThreshold)
	v.SetDefault("navigation.traversability_weight", d.Navigation.TraversabilityWeight)
	v.SetDefault("navigation.heading_weight", d.Navigation.HeadingWeight)
	v.SetDefault("navigation.cost_based", d.Navigation.CostBased)
	v.SetDefault("navigation.waypoints_file", "")

	// Session defaults
	v.SetDefault("session.queue_size", d.Session.QueueSize)
	v.SetDefault("session.stale_after", "1s")

	// Vehicle defaults
	v.SetDefault("vehicle.transport", d.Vehicle.Transport)
	v.SetDefault("vehicle.port", d.Vehicle.Port)
	v.SetDefault("vehicle.baud_rate", d.Vehicle.BaudRate)
	v.SetDefault("vehicle.data_bits", d.Vehicle.DataBits)
	v.SetDefault("vehicle.stop_bits", d.Vehicle.StopBits)
	v.SetDefault("vehicle.parity", d.Vehicle.Parity)
	v.SetDefault("vehicle.usb_vendor_id", d.Vehicle.USBVendorID)
	v.SetDefault("vehicle.usb_product_id", d.Vehicle.USBProductID)
	v.SetDefault("vehicle.linear_scale", d.Vehicle.LinearScale)
	v.SetDefault("vehicle.angular_scale", d.Vehicle.AngularScale)
	v.SetDefault("vehicle.heartbeat_interval", "250ms")
	v.SetDefault("vehicle.wheel_base", d.Vehicle.WheelBase)

	// Bridge defaults
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.reconnect_backoff", "1s")
	v.SetDefault("bridge.max_backoff", "30s")
	v.SetDefault("bridge.ping_interval", "10s")
	v.SetDefault("bridge.write_timeout", "5s")

	// Waypoint store defaults
	v.SetDefault("waypoint_store.base_url", "")
	v.SetDefault("waypoint_store.timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	nav := c.Navigation
	if _, err := navigation.NewTurnController(nav.Controller, nav.Parameters()); err != nil {
		return fmt.Errorf("navigation.controller: %w", err)
	}
	if err := nav.Parameters().Validate(); err != nil {
		return fmt.Errorf("navigation.gains: %w", err)
	}

	if len(nav.Strategies) == 0 {
		return fmt.Errorf("navigation.strategies must name at least one strategy")
	}
	for _, s := range nav.Strategies {
		switch s {
		case StrategyCombined, StrategyWaypoint, StrategyObstacle:
		default:
			return fmt.Errorf("unknown navigation strategy %q", s)
		}
	}

	if nav.MaxLinearSpeed <= 0 || nav.MaxLinearSpeed > 1 {
		return fmt.Errorf("max_linear_speed must be in (0, 1], got %f", nav.MaxLinearSpeed)
	}
	if nav.MaxAngularSpeed <= 0 || nav.MaxAngularSpeed > 1 {
		return fmt.Errorf("max_angular_speed must be in (0, 1], got %f", nav.MaxAngularSpeed)
	}
	if nav.PositionThresholdM <= 0 {
		return fmt.Errorf("position_threshold_m must be positive, got %f", nav.PositionThresholdM)
	}
	if nav.RotationThresholdDeg <= 0 || nav.RotationThresholdDeg >= 180 {
		return fmt.Errorf("rotation_threshold_deg must be in (0, 180), got %f", nav.RotationThresholdDeg)
	}
	if nav.ObstacleThreshold < 0 || nav.ObstacleThreshold > 1 {
		return fmt.Errorf("obstacle_threshold must be between 0 and 1, got %f", nav.ObstacleThreshold)
	}

	if c.Session.QueueSize < 1 {
		return fmt.Errorf("session.queue_size must be positive, got %d", c.Session.QueueSize)
	}

	switch c.Vehicle.Transport {
	case "serial", "usb", "mock":
	default:
		return fmt.Errorf("unknown vehicle transport %q", c.Vehicle.Transport)
	}
	if c.Vehicle.WheelBase <= 0 {
		return fmt.Errorf("wheel_base must be positive, got %f", c.Vehicle.WheelBase)
	}
	if c.Vehicle.USBVendorID < 0 || c.Vehicle.USBVendorID > 0xFFFF ||
		c.Vehicle.USBProductID < 0 || c.Vehicle.USBProductID > 0xFFFF {
		return fmt.Errorf("usb ids must fit in 16 bits")
	}

	return nil
}
