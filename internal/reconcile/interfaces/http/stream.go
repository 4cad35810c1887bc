package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"energy-ledger/internal/auth"
	"energy-ledger/internal/reconcile/application"
	"energy-ledger/internal/reconcile/application/eventbus"
)

const (
	// TypeFlushClosed carries an application.FlushClosed payload.
	TypeFlushClosed = "flush:closed"
	// TypePriceRecorded carries an application.PriceRecorded payload.
	TypePriceRecorded = "price:recorded"

	clientBuffer = 64
)

// Envelope wraps every stream message with a type discriminator.
type Envelope struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"deviceId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(msgType, deviceID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, DeviceID: deviceID, Payload: raw})
}

// Client is one connected websocket subscriber. An empty device filter
// receives every device.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	device string
}

// Hub fans flush and price events out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *zap.Logger
}

// NewHub constructs a hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[*Client]bool), logger: logger}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues msg for every client subscribed to deviceID. Slow
// clients drop messages instead of blocking the publisher.
func (h *Hub) Broadcast(deviceID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.device != "" && c.device != deviceID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("stream client buffer full, dropping message", zap.String("device_id", deviceID))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attach subscribes the hub to flush and price events on bus.
func (h *Hub) Attach(bus eventbus.EventBus) {
	eventbus.SubscribeTo(bus, func(ctx context.Context, evt application.FlushClosed) error {
		return h.publish(TypeFlushClosed, evt.DeviceID, evt)
	})
	eventbus.SubscribeTo(bus, func(ctx context.Context, evt application.PriceRecorded) error {
		return h.publish(TypePriceRecorded, evt.DeviceID, evt)
	})
}

func (h *Hub) publish(msgType, deviceID string, payload any) error {
	msg, err := NewEnvelope(msgType, deviceID, payload)
	if err != nil {
		return err
	}
	h.Broadcast(deviceID, msg)
	return nil
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump drains control frames until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("stream read error", zap.Error(err))
			}
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler upgrades GET /api/v1/flushes/stream to a websocket.
type StreamHandler struct {
	hub *Hub
}

// NewStreamHandler constructs the handler.
func NewStreamHandler(hub *Hub) (*StreamHandler, error) {
	if hub == nil {
		return nil, errors.New("stream handler: nil hub")
	}
	return &StreamHandler{hub: hub}, nil
}

// ServeHTTP accepts an optional device_id filter.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if err := auth.EnsureDeviceAccess(r.Context(), deviceID); err != nil {
		respondError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	client := &Client{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		device: deviceID,
	}
	h.hub.Register(client)
	go client.writePump()
	client.readPump()
}
