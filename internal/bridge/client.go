// Package bridge connects to the sensor bridge that hosts the pose tracker
// and the depth pipeline. Inbound frames become session submissions;
// session events are published back as telemetry.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-nav/internal/navigation"
	"github.com/teslashibe/go-nav/internal/protocol"
	"github.com/teslashibe/go-nav/internal/session"
)

// Config holds bridge client configuration
type Config struct {
	URL              string        // WebSocket URL (e.g., "ws://localhost:8765/nav")
	ReconnectBackoff time.Duration // Initial reconnect delay
	MaxBackoff       time.Duration // Maximum reconnect delay
	PingInterval     time.Duration // Ping interval for keepalive
	WriteTimeout     time.Duration // Write timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8765/nav",
		ReconnectBackoff: 1 * time.Second,
		MaxBackoff:       30 * time.Second,
		PingInterval:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Client manages the WebSocket connection to the sensor bridge
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	// Callbacks for incoming messages
	onPose         func(navigation.Pose)
	onNavigability func(protocol.NavigabilityData)
	onLocation     func(protocol.LocationData)
	onWaypoints    func(protocol.WaypointsData)
	onParams       func(protocol.ParamsPatch)
	onControl      func(protocol.MessageType)

	// Stats
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	parseErrors      atomic.Uint64
	reconnects       atomic.Uint64
}

// NewClient creates a new bridge client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// OnPose sets the callback for pose updates
func (c *Client) OnPose(callback func(navigation.Pose)) {
	c.mu.Lock()
	c.onPose = callback
	c.mu.Unlock()
}

// OnNavigability sets the callback for probe rows
func (c *Client) OnNavigability(callback func(protocol.NavigabilityData)) {
	c.mu.Lock()
	c.onNavigability = callback
	c.mu.Unlock()
}

// OnLocation sets the callback for location fixes
func (c *Client) OnLocation(callback func(protocol.LocationData)) {
	c.mu.Lock()
	c.onLocation = callback
	c.mu.Unlock()
}

// OnWaypoints sets the callback for waypoint uploads
func (c *Client) OnWaypoints(callback func(protocol.WaypointsData)) {
	c.mu.Lock()
	c.onWaypoints = callback
	c.mu.Unlock()
}

// OnParams sets the callback for controller gain updates. The patch holds
// only the gains the bridge sent.
func (c *Client) OnParams(callback func(protocol.ParamsPatch)) {
	c.mu.Lock()
	c.onParams = callback
	c.mu.Unlock()
}

// OnControl sets the callback for start and stop requests
func (c *Client) OnControl(callback func(protocol.MessageType)) {
	c.mu.Lock()
	c.onControl = callback
	c.mu.Unlock()
}

// Connect establishes the connection in the background with auto-reconnect
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("bridge URL is empty")
	}

	ctx, c.cancel = context.WithCancel(ctx)

	go c.connectionLoop(ctx)
	return nil
}

// connectionLoop manages connection with auto-reconnect
func (c *Client) connectionLoop(ctx context.Context) {
	backoff := c.cfg.ReconnectBackoff

	for {
		select {
		case <-ctx.Done():
			c.closeConnection()
			return
		default:
		}

		err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("bridge connection failed",
				"error", err,
				"retry_in", backoff,
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}

			// Exponential backoff
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			c.reconnects.Add(1)
			continue
		}

		// Reset backoff on successful connection
		backoff = c.cfg.ReconnectBackoff

		// Read messages until error
		c.readLoop(ctx)
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.logger.Info("connecting to sensor bridge", "url", c.cfg.URL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected to sensor bridge")

	go c.pingLoop(ctx, conn)

	return nil
}

// pingLoop sends periodic pings on conn until it is replaced or closed
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.cfg.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}

			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("bridge read error", "error", err)
			c.closeConnection()
			return
		}

		c.messagesReceived.Add(1)
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Warn("parse message error", "error", err)
		return
	}

	c.mu.Lock()
	poseCb := c.onPose
	navCb := c.onNavigability
	locationCb := c.onLocation
	waypointsCb := c.onWaypoints
	paramsCb := c.onParams
	controlCb := c.onControl
	c.mu.Unlock()

	switch msg.Type {
	case protocol.TypePose:
		if poseCb != nil {
			pose, err := msg.GetPose()
			if err != nil {
				c.dropped(msg.Type, err)
				return
			}
			poseCb(*pose)
		}

	case protocol.TypeNavigability:
		if navCb != nil {
			rows, err := msg.GetNavigability()
			if err != nil {
				c.dropped(msg.Type, err)
				return
			}
			navCb(*rows)
		}

	case protocol.TypeLocation:
		if locationCb != nil {
			loc, err := msg.GetLocation()
			if err != nil {
				c.dropped(msg.Type, err)
				return
			}
			locationCb(*loc)
		}

	case protocol.TypeWaypoints:
		if waypointsCb != nil {
			wps, err := msg.GetWaypoints()
			if err != nil {
				c.dropped(msg.Type, err)
				return
			}
			waypointsCb(*wps)
		}

	case protocol.TypeParams:
		if paramsCb != nil {
			patch, err := msg.GetParams()
			if err != nil {
				c.dropped(msg.Type, err)
				return
			}
			paramsCb(patch)
		}

	case protocol.TypeStart, protocol.TypeStop:
		if controlCb != nil {
			controlCb(msg.Type)
		}

	case protocol.TypePing:
		pong := &protocol.Message{Type: protocol.TypePong, Timestamp: time.Now().UnixMilli()}
		c.SendMessage(pong)

	default:
		c.logger.Debug("ignoring bridge message", "type", msg.Type)
	}
}

func (c *Client) dropped(t protocol.MessageType, err error) {
	c.parseErrors.Add(1)
	c.logger.Warn("invalid bridge message", "type", t, "error", err)
}

// SendMessage sends a message to the bridge
func (c *Client) SendMessage(msg *protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("send error", "error", err)
		c.closeConnection()
		return fmt.Errorf("write: %w", err)
	}

	c.messagesSent.Add(1)
	return nil
}

// Forward publishes session events until ctx is done or events closes
// (blocking, use goroutine). Events are dropped while disconnected.
func (c *Client) Forward(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !c.IsConnected() {
				continue
			}
			if err := c.Publish(ev); err != nil {
				c.logger.Debug("event not published", "type", ev.Type, "error", err)
			}
		}
	}
}

// Publish sends a session event as telemetry
func (c *Client) Publish(ev session.Event) error {
	msg, err := ev.Message()
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close shuts down the client
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	return nil
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Stats contains client statistics
type Stats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	ParseErrors      uint64 `json:"parse_errors"`
	Reconnects       uint64 `json:"reconnects"`
}

// Stats returns client statistics
func (c *Client) Stats() Stats {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	return Stats{
		Connected:        connected,
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		ParseErrors:      c.parseErrors.Load(),
		Reconnects:       c.reconnects.Load(),
	}
}
