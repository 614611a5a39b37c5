package vehicle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrNotConnected is returned by transports without a live link
var ErrNotConnected = errors.New("vehicle not connected")

// Transport kinds
const (
	TransportSerial = "serial"
	TransportUSB    = "usb"
	TransportMock   = "mock"
)

// Transport carries encoded frames to the motor controller
type Transport interface {
	io.Writer
	Close() error
	Healthy() bool
	Name() string
}

// TransportConfig selects and configures a transport
type TransportConfig struct {
	Kind   string
	Port   string
	Serial PortOptions
	USB    USBConfig
}

// NewTransport opens the configured transport
func NewTransport(cfg TransportConfig, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case TransportSerial:
		t, err := OpenSerial(cfg.Port, cfg.Serial, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case TransportUSB:
		t, err := NewUSBTransport(cfg.USB, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case TransportMock:
		return NewMockTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Kind)
	}
}

// NewTransportWithFallback opens the configured transport, or a mock when
// the hardware is unavailable. Use this for development and bench testing.
func NewTransportWithFallback(cfg TransportConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}

	t, err := NewTransport(cfg, logger)
	if err == nil {
		return t
	}

	logger.Warn("vehicle transport unavailable, using mock",
		"transport", cfg.Kind,
		"error", err,
		"hint", "check the port path and that the motor controller is connected",
	)
	return NewMockTransport()
}
