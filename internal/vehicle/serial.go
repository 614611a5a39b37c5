package vehicle

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"
)

// PortOptions describes the serial line settings
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for unset values
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options to the mode go.bug.st/serial opens with
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// Serial reopen policy after repeated write failures
const (
	serialMaxConsecutiveErrors = 5
	serialInitialBackoff       = 100 * time.Millisecond
	serialMaxBackoff           = 5 * time.Second
)

type openPortFunc func(path string, mode *serial.Mode) (io.WriteCloser, error)

func openSerialPort(path string, mode *serial.Mode) (io.WriteCloser, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialTransport writes frames to a serial port (USB-CDC or UART). After
// serialMaxConsecutiveErrors failed writes the port is closed and reopened
// on a later write, with exponential backoff between attempts.
type SerialTransport struct {
	path   string
	mode   *serial.Mode
	open   openPortFunc
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	port    io.WriteCloser
	closed  bool
	healthy bool

	consecutiveErrors int
	reconnectBackoff  time.Duration
	nextAttempt       time.Time
}

// OpenSerial opens the serial port at path
func OpenSerial(path string, opts PortOptions, logger *slog.Logger) (*SerialTransport, error) {
	if path == "" {
		return nil, fmt.Errorf("serial port path is empty")
	}

	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	return newSerialTransport(path, mode, openSerialPort, clock.New(), logger)
}

func newSerialTransport(path string, mode *serial.Mode, open openPortFunc, clk clock.Clock, logger *slog.Logger) (*SerialTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	logger.Info("serial transport opened",
		"port", path,
		"baud_rate", mode.BaudRate,
	)

	return &SerialTransport{
		path:             path,
		mode:             mode,
		open:             open,
		clock:            clk,
		logger:           logger,
		port:             port,
		healthy:          true,
		reconnectBackoff: serialInitialBackoff,
	}, nil
}

// Write sends one encoded frame, reopening the port first if it was
// dropped after repeated failures
func (s *SerialTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrNotConnected
	}

	if s.port == nil {
		if err := s.reopen(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	n, err := s.port.Write(p)
	if err != nil {
		s.recordError(err)
		return n, fmt.Errorf("serial write: %w", err)
	}

	s.recordSuccess()
	return n, nil
}

func (s *SerialTransport) recordError(err error) {
	if s.healthy {
		s.logger.Warn("serial write failed", "port", s.path, "error", err)
	}
	s.healthy = false
	s.consecutiveErrors++

	if s.consecutiveErrors >= serialMaxConsecutiveErrors {
		s.logger.Warn("serial port dropped, will reopen",
			"port", s.path,
			"consecutive_errors", s.consecutiveErrors,
		)
		s.port.Close()
		s.port = nil
		s.consecutiveErrors = 0
	}
}

func (s *SerialTransport) recordSuccess() {
	if !s.healthy {
		s.logger.Info("serial transport recovered", "port", s.path)
	}
	s.healthy = true
	s.consecutiveErrors = 0
	s.reconnectBackoff = serialInitialBackoff
}

func (s *SerialTransport) reopen() error {
	now := s.clock.Now()
	if now.Before(s.nextAttempt) {
		return fmt.Errorf("reopen in %s", s.nextAttempt.Sub(now))
	}

	port, err := s.open(s.path, s.mode)
	if err != nil {
		s.nextAttempt = now.Add(s.reconnectBackoff)
		s.logger.Warn("serial reopen failed",
			"port", s.path,
			"error", err,
			"backoff", s.reconnectBackoff,
		)
		s.reconnectBackoff *= 2
		if s.reconnectBackoff > serialMaxBackoff {
			s.reconnectBackoff = serialMaxBackoff
		}
		return err
	}

	s.port = port
	s.nextAttempt = time.Time{}
	s.logger.Info("serial port reopened", "port", s.path)
	return nil
}

// Close closes the port
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.healthy = false

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Healthy reports whether the last write succeeded
func (s *SerialTransport) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// Name returns the transport type name
func (s *SerialTransport) Name() string {
	return TransportSerial
}
