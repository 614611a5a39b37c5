package vehicle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gousb"
)

// USBConfig configures the USB bulk transport
type USBConfig struct {
	VendorID  uint16
	ProductID uint16

	// Bulk OUT endpoint location
	ConfigNum    int
	InterfaceNum int
	AltSetting   int
	Endpoint     int

	MaxConsecutiveErrors int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
}

// DefaultUSBConfig returns defaults for an ESP32-S3 running the firmware
// with native USB
func DefaultUSBConfig() USBConfig {
	return USBConfig{
		VendorID:             0x303A,
		ProductID:            0x1001,
		ConfigNum:            1,
		InterfaceNum:         1,
		AltSetting:           0,
		Endpoint:             1,
		MaxConsecutiveErrors: 5,
		InitialBackoff:       100 * time.Millisecond,
		MaxBackoff:           5 * time.Second,
	}
}

// USBTransport writes frames to a bulk OUT endpoint of the motor controller
type USBTransport struct {
	cfg    USBConfig
	logger *slog.Logger

	mu     sync.Mutex
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	out    *gousb.OutEndpoint
	closed bool

	// Health tracking
	healthy           bool
	consecutiveErrors int
	lastError         error
	lastErrorTime     time.Time

	// Reconnection
	reconnectBackoff time.Duration
}

// NewUSBTransport opens the motor controller over USB
func NewUSBTransport(cfg USBConfig, logger *slog.Logger) (*USBTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultUSBConfig().MaxConsecutiveErrors
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultUSBConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultUSBConfig().MaxBackoff
	}

	t := &USBTransport{
		cfg:              cfg,
		logger:           logger,
		healthy:          true,
		reconnectBackoff: cfg.InitialBackoff,
	}

	t.ctx = gousb.NewContext()

	if err := t.openDevice(); err != nil {
		t.ctx.Close()
		return nil, err
	}

	logger.Info("USB transport initialized",
		"vendor_id", fmt.Sprintf("0x%04X", cfg.VendorID),
		"product_id", fmt.Sprintf("0x%04X", cfg.ProductID),
		"endpoint", cfg.Endpoint,
	)

	return t, nil
}

func (u *USBTransport) openDevice() error {
	dev, err := u.ctx.OpenDeviceWithVIDPID(gousb.ID(u.cfg.VendorID), gousb.ID(u.cfg.ProductID))
	if err != nil {
		return fmt.Errorf("failed to open motor controller: %w", err)
	}
	if dev == nil {
		return fmt.Errorf("motor controller not found (VID=0x%04X PID=0x%04X)", u.cfg.VendorID, u.cfg.ProductID)
	}

	// Auto-detach the CDC kernel driver if attached
	if err := dev.SetAutoDetach(true); err != nil {
		u.logger.Debug("SetAutoDetach failed (non-fatal)", "error", err)
	}

	config, err := dev.Config(u.cfg.ConfigNum)
	if err != nil {
		dev.Close()
		return fmt.Errorf("select config %d: %w", u.cfg.ConfigNum, err)
	}

	intf, err := config.Interface(u.cfg.InterfaceNum, u.cfg.AltSetting)
	if err != nil {
		config.Close()
		dev.Close()
		return fmt.Errorf("claim interface %d: %w", u.cfg.InterfaceNum, err)
	}

	out, err := intf.OutEndpoint(u.cfg.Endpoint)
	if err != nil {
		intf.Close()
		config.Close()
		dev.Close()
		return fmt.Errorf("open endpoint %d: %w", u.cfg.Endpoint, err)
	}

	u.dev = dev
	u.config = config
	u.intf = intf
	u.out = out
	u.healthy = true
	u.consecutiveErrors = 0

	return nil
}

func (u *USBTransport) closeDevice() {
	if u.intf != nil {
		u.intf.Close()
		u.intf = nil
	}
	if u.config != nil {
		u.config.Close()
		u.config = nil
	}
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	u.out = nil
}

// Write sends one frame, reconnecting first if the device was dropped
func (u *USBTransport) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return 0, ErrNotConnected
	}

	if u.out == nil {
		if err := u.reconnect(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	n, err := u.out.Write(p)
	if err != nil {
		u.recordError(err)
		return n, fmt.Errorf("USB bulk write failed: %w", err)
	}
	if n < len(p) {
		err := fmt.Errorf("short write: %d of %d bytes", n, len(p))
		u.recordError(err)
		return n, err
	}

	u.recordSuccess()
	return n, nil
}

func (u *USBTransport) recordError(err error) {
	u.consecutiveErrors++
	u.lastError = err
	u.lastErrorTime = time.Now()

	if u.consecutiveErrors >= u.cfg.MaxConsecutiveErrors {
		u.healthy = false
		u.logger.Warn("USB transport marked unhealthy, will attempt reconnect",
			"consecutive_errors", u.consecutiveErrors,
			"last_error", err,
		)

		// Close device to force reconnect on next write
		u.closeDevice()
	}
}

func (u *USBTransport) recordSuccess() {
	if u.consecutiveErrors > 0 {
		u.logger.Info("USB transport recovered",
			"previous_errors", u.consecutiveErrors,
		)
	}
	u.consecutiveErrors = 0
	u.healthy = true
	u.reconnectBackoff = u.cfg.InitialBackoff
}

func (u *USBTransport) reconnect() error {
	u.logger.Info("attempting USB reconnect",
		"backoff", u.reconnectBackoff,
	)

	time.Sleep(u.reconnectBackoff)

	u.reconnectBackoff *= 2
	if u.reconnectBackoff > u.cfg.MaxBackoff {
		u.reconnectBackoff = u.cfg.MaxBackoff
	}

	if err := u.openDevice(); err != nil {
		u.logger.Warn("USB reconnect failed", "error", err)
		return err
	}

	u.logger.Info("USB reconnect successful")
	return nil
}

// Close releases the USB device
func (u *USBTransport) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true

	u.closeDevice()
	if u.ctx != nil {
		u.ctx.Close()
		u.ctx = nil
	}

	u.logger.Info("USB transport closed")
	return nil
}

// Healthy returns true if the transport is operational
func (u *USBTransport) Healthy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.healthy
}

// Name returns the transport type name
func (u *USBTransport) Name() string {
	return TransportUSB
}

// Stats returns USB transport statistics
func (u *USBTransport) Stats() USBStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	var lastErr string
	if u.lastError != nil {
		lastErr = u.lastError.Error()
	}

	return USBStats{
		Healthy:           u.healthy,
		ConsecutiveErrors: u.consecutiveErrors,
		LastError:         lastErr,
		LastErrorTime:     u.lastErrorTime,
		DeviceConnected:   u.dev != nil,
	}
}

// USBStats contains USB transport statistics
type USBStats struct {
	Healthy           bool      `json:"healthy"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorTime     time.Time `json:"last_error_time,omitempty"`
	DeviceConnected   bool      `json:"device_connected"`
}
