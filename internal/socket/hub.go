// internal/socket/hub.go
package socket

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"freight-resale-api-server/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

// Envelope is the frame every push is wrapped in.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// client serialises writes on one connection; gorilla allows a single
// concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub is the registry of live websocket connections, one per user.
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Register binds conn to userID. A previous connection of the same user is
// closed.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = &client{conn: conn}
	h.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
	h.logger.Debug().Str("user_id", userID).Msg("websocket client registered")
}

// Unregister removes userID only while it is still bound to conn, so a late
// cleanup of a replaced connection does not drop the new one.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[userID]; ok && c.conn == conn {
		delete(h.clients, userID)
		h.logger.Debug().Str("user_id", userID).Msg("websocket client unregistered")
	}
}

func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.clients))
	for id := range h.clients {
		out = append(out, id)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SendToClient writes one envelope to userID's connection. It returns
// notify.ErrNotConnected when the user is offline.
func (h *Hub) SendToClient(userID, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return notify.ErrNotConnected
	}

	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := c.write(msg); err != nil {
		h.Unregister(userID, c.conn)
		c.conn.Close()
		return fmt.Errorf("write %s to %s: %w", event, userID, err)
	}
	return nil
}

var _ notify.PushChannel = (*Hub)(nil)
