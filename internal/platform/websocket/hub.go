// Package websocket delivers the live worklist feed. Connected clients
// receive periodic heartbeats plus event broadcasts pushed by the rest of
// the application.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Event is a message pushed over the live feed.
type Event struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(name string, data json.RawMessage) Event {
	return Event{Event: name, Timestamp: time.Now().UTC(), Data: data}
}

// Client represents a single WebSocket connection.
type Client struct {
	ID   string
	Send chan []byte
}

// Hub tracks connected live-feed clients. All operations are thread-safe
// via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a Hub ready to manage live-feed clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunHeartbeat broadcasts a heartbeat event at the given interval until the
// context is cancelled. Intended to run in its own goroutine.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(NewEvent("heartbeat", nil))
		}
	}
}

// ---------------------------------------------------------------------------
// LiveHandler — Echo HTTP handler for live-feed connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// LiveHandler handles HTTP-to-WebSocket upgrades for the live feed.
type LiveHandler struct {
	hub *Hub
}

// NewLiveHandler creates a handler bound to the given Hub.
func NewLiveHandler(hub *Hub) *LiveHandler {
	return &LiveHandler{hub: hub}
}

// RegisterRoutes registers the live-feed endpoint on the provided Echo instance.
func (lh *LiveHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/live", lh.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket, registers the
// client with the hub, and starts read/write pumps.
func (lh *LiveHandler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}

	lh.hub.Register(client)

	go lh.writePump(client, ws)
	go lh.readPump(client, ws)

	return nil
}

// readPump drains inbound messages so control frames are processed, and
// unregisters the client when the connection drops.
func (lh *LiveHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		lh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes messages from the Send channel to the WebSocket connection.
func (lh *LiveHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
