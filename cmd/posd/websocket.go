// WebSocket hub pushing sync status events to the SPA (localhost only).
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pedidolist/backend/internal/logging"
	syncpkg "github.com/pedidolist/backend/internal/sync"
	"github.com/pedidolist/backend/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only allow connections from localhost
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WSClient represents one connected SPA tab.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub maintains active client connections and broadcasts envelopes.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
}

// NewWSHub creates a hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[string]*WSClient)}
}

// Broadcast sends an envelope to every connected client. Slow clients are
// dropped rather than blocking the hub.
func (h *WSHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal ws envelope", err, nil)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			logging.Warn("Dropping slow websocket client", map[string]interface{}{"client": id})
			go h.remove(id)
		}
	}
}

func (h *WSHub) remove(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		close(client.send)
		client.conn.Close()
	}
}

// ServeWS upgrades an HTTP request to a WebSocket subscription.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed", err, nil)
		return
	}

	client := &WSClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 32),
	}
	client.hub = h

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	go client.writeLoop()
	go client.readLoop()
}

func (c *WSClient) writeLoop() {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.remove(c.id)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c.id)
				return
			}
		}
	}
}

// readLoop discards client messages; the stream is push-only. It exists to
// notice disconnects.
func (c *WSClient) readLoop() {
	defer c.hub.remove(c.id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// hubObserver forwards engine events to the hub as envelopes.
type hubObserver struct {
	hub *WSHub
}

// OnSyncEvent implements sync.Observer.
func (o *hubObserver) OnSyncEvent(ev syncpkg.Event) {
	data := map[string]interface{}{}
	switch v := ev.(type) {
	case syncpkg.SyncStarted:
		data["pending"] = v.Pending
	case syncpkg.ItemSynced:
		data["entity_kind"] = string(v.Kind)
		data["entity_id"] = v.LocalID.String()
		data["server_id"] = v.ServerID
		data["action"] = string(v.Action)
	case syncpkg.ConflictDetected:
		data["entity_kind"] = string(v.Kind)
		data["entity_id"] = v.LocalID.String()
		data["winner"] = v.Winner
	case syncpkg.ItemFailed:
		data["entity_kind"] = string(v.Kind)
		data["entity_id"] = v.LocalID.String()
		data["code"] = v.Code
		data["error"] = v.Error
		data["retries"] = v.Retries
		data["unsyncable"] = v.Unsyncable
	case syncpkg.SyncCompleted:
		data["synced"] = v.Synced
		data["failed"] = v.Failed
		data["conflicts"] = v.Conflicts
		data["remaining"] = v.Remaining
		data["duration_ms"] = v.Duration.Milliseconds()
	case syncpkg.SyncError:
		data["error"] = v.Error
	}
	o.hub.Broadcast(ev.EventType(), data)
}
