package vehicle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// DispatcherConfig configures command delivery
type DispatcherConfig struct {
	Codec             Codec
	HeartbeatInterval time.Duration // 0 disables heartbeats
	HeartbeatTimeout  time.Duration // firmware stops if no heartbeat within this
	WheelBase         float64       // meters, used for wheel speed telemetry
	Clock             clock.Clock
}

// DefaultDispatcherConfig returns sensible defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Codec:             DefaultCodec(),
		HeartbeatInterval: 250 * time.Millisecond,
		HeartbeatTimeout:  750 * time.Millisecond,
		WheelBase:         DefaultWheelBase,
	}
}

type velocity struct {
	linear, angular float64
}

// Dispatcher is the actuation sink. SetVelocity and Transmit never block;
// Run writes the most recent transmitted command to the transport, so
// commands issued faster than the link drains are coalesced.
type Dispatcher struct {
	transport Transport
	cfg       DispatcherConfig
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	staged  velocity
	pending velocity
	last    velocity

	signal chan struct{}

	// Metrics
	framesSent  atomic.Int64
	heartbeats  atomic.Int64
	coalesced   atomic.Int64
	writeErrors atomic.Int64
}

// NewDispatcher creates a dispatcher writing to transport
func NewDispatcher(transport Transport, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Codec.LinearScale == 0 || cfg.Codec.AngularScale == 0 {
		cfg.Codec = DefaultCodec()
	}
	if cfg.WheelBase <= 0 {
		cfg.WheelBase = DefaultWheelBase
	}

	return &Dispatcher{
		transport: transport,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    logger,
		signal:    make(chan struct{}, 1),
	}
}

// SetVelocity stages a normalized velocity pair
func (d *Dispatcher) SetVelocity(linear, angular float64) {
	d.mu.Lock()
	d.staged = velocity{linear, angular}
	d.mu.Unlock()
}

// Transmit queues the staged velocity for sending
func (d *Dispatcher) Transmit() {
	d.mu.Lock()
	d.pending = d.staged
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
		d.coalesced.Add(1)
	}
}

// Run writes commands and heartbeats until ctx is cancelled (blocking, use
// goroutine). A stop command is written on the way out.
func (d *Dispatcher) Run(ctx context.Context) error {
	var heartbeat <-chan time.Time
	if d.cfg.HeartbeatInterval > 0 {
		ticker := d.clock.Ticker(d.cfg.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	d.logger.Info("dispatcher started",
		"transport", d.transport.Name(),
		"heartbeat_interval", d.cfg.HeartbeatInterval,
		"linear_scale", d.cfg.Codec.LinearScale,
		"angular_scale", d.cfg.Codec.AngularScale,
	)

	for {
		select {
		case <-ctx.Done():
			d.write(d.cfg.Codec.EncodeControl(0, 0))
			d.logger.Info("dispatcher stopped",
				"frames", d.framesSent.Load(),
				"coalesced", d.coalesced.Load(),
				"errors", d.writeErrors.Load(),
			)
			return ctx.Err()

		case <-d.signal:
			d.mu.Lock()
			v := d.pending
			d.mu.Unlock()

			if d.write(d.cfg.Codec.EncodeControl(v.linear, v.angular)) {
				d.mu.Lock()
				d.last = v
				d.mu.Unlock()
			}

		case <-heartbeat:
			if d.write(EncodeHeartbeat(d.cfg.HeartbeatTimeout)) {
				d.heartbeats.Add(1)
			}
		}
	}
}

func (d *Dispatcher) write(frame []byte) bool {
	if _, err := d.transport.Write(frame); err != nil {
		if d.writeErrors.Add(1)%50 == 1 {
			d.logger.Warn("vehicle write failed",
				"transport", d.transport.Name(),
				"error", err,
				"errors", d.writeErrors.Load(),
			)
		}
		return false
	}
	d.framesSent.Add(1)
	return true
}

// Last returns the last velocity written to the transport
func (d *Dispatcher) Last() (linear, angular float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.linear, d.last.angular
}

// Healthy reports transport health
func (d *Dispatcher) Healthy() bool {
	return d.transport.Healthy()
}

// Stats returns dispatcher statistics
func (d *Dispatcher) Stats() DispatcherStats {
	linear, angular := d.Last()
	left, right := ToWheelSpeeds(linear, angular, d.cfg.WheelBase)
	effLinear, effAngular := ToVelocities(left, right, d.cfg.WheelBase)
	return DispatcherStats{
		Transport:        d.transport.Name(),
		Healthy:          d.transport.Healthy(),
		FramesSent:       d.framesSent.Load(),
		Heartbeats:       d.heartbeats.Load(),
		Coalesced:        d.coalesced.Load(),
		WriteErrors:      d.writeErrors.Load(),
		LastLinear:       linear,
		LastAngular:      angular,
		LeftWheel:        left,
		RightWheel:       right,
		EffectiveLinear:  effLinear,
		EffectiveAngular: effAngular,
	}
}

// DispatcherStats contains dispatcher statistics
type DispatcherStats struct {
	Transport   string  `json:"transport"`
	Healthy     bool    `json:"healthy"`
	FramesSent  int64   `json:"frames_sent"`
	Heartbeats  int64   `json:"heartbeats"`
	Coalesced   int64   `json:"coalesced"`
	WriteErrors int64   `json:"write_errors"`
	LastLinear  float64 `json:"last_linear"`
	LastAngular float64 `json:"last_angular"`

	// Differential wheel speeds for the last command, and the body
	// velocity they produce once a saturated wheel is scaled back
	LeftWheel        float64 `json:"left_wheel"`
	RightWheel       float64 `json:"right_wheel"`
	EffectiveLinear  float64 `json:"effective_linear"`
	EffectiveAngular float64 `json:"effective_angular"`
}
