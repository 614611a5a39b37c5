package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-nav/internal/protocol"
	"github.com/teslashibe/go-nav/internal/session"
)

// statusInterval is how often the hub pushes a controller snapshot
const statusInterval = 500 * time.Millisecond

// wsClient serializes writes to one connection
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections and broadcasts navigation telemetry
type WSHub struct {
	session *session.Session
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(s *session.Session, logger *slog.Logger) *WSHub {
	return &WSHub{
		session: s,
		logger:  logger,
		clients: make(map[*websocket.Conn]*wsClient),
		done:    make(chan struct{}),
	}
}

// Run relays session events and periodic status until ctx is cancelled
func (h *WSHub) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	defer close(h.done)

	events := h.session.Subscribe()
	defer h.session.Unsubscribe(events)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopped")
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if h.ClientCount() == 0 {
				continue
			}
			msg, err := ev.Message()
			if err != nil {
				h.logger.Debug("skipping event", "type", ev.Type, "error", err)
				continue
			}
			h.broadcast(msg)

		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			msg, err := protocol.NewStatusMessage(h.session.Status())
			if err != nil {
				continue
			}
			h.broadcast(msg)
		}
	}
}

func (h *WSHub) broadcast(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if err := client.write(data); err != nil {
			// Will be cleaned up when connection closes
			h.logger.Debug("websocket write error", "error", err)
		}
	}
}

// UpgradeHandler returns the WebSocket upgrade handler
func (h *WSHub) UpgradeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return websocket.New(h.handleConnection)(c)
		}

		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error":   "WebSocket upgrade required",
			"message": "Connect via WebSocket to receive navigation telemetry",
		})
	}
}

func (h *WSHub) handleConnection(c *websocket.Conn) {
	client := &wsClient{conn: c}

	h.mu.Lock()
	h.clients[c] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		"remote_addr", c.RemoteAddr().String(),
		"clients", clientCount,
	)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		clientCount := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("websocket client disconnected",
			"remote_addr", c.RemoteAddr().String(),
			"clients", clientCount,
		)
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}

		h.handleCommand(client, msg)
	}
}

func (h *WSHub) handleCommand(client *wsClient, data []byte) {
	var cmd struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		reply *protocol.Message
		err   error
	)

	switch cmd.Type {
	case "ping":
		reply = &protocol.Message{Type: protocol.TypePong, Timestamp: time.Now().UnixMilli()}
	case "get_status":
		reply, err = protocol.NewStatusMessage(h.session.Status())
	case "get_stats":
		reply, err = protocol.NewMessage("stats", h.session.Stats())
	case "start":
		if err = h.session.Start(ctx); err == nil {
			reply, err = protocol.NewStatusMessage(h.session.Status())
		}
	case "stop":
		if err = h.session.Stop(ctx); err == nil {
			reply, err = protocol.NewStatusMessage(h.session.Status())
		}
	default:
		return
	}

	if err != nil {
		reply, _ = protocol.NewErrorMessage(err.Error())
	}

	out, err := json.Marshal(reply)
	if err != nil {
		return
	}
	client.write(out)
}

// ClientCount returns the number of connected WebSocket clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts down the WebSocket hub
func (h *WSHub) Close() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}

	// Close all client connections
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*wsClient)
	h.mu.Unlock()
}
