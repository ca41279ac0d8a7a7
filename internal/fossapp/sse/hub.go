package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// ClientBuffer per-connection event buffer; events beyond it are dropped
const ClientBuffer = 64

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// NewClient client with the standard buffer
func NewClient(id, userID string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Events: make(chan Event, ClientBuffer),
	}
}

// Hub manages all SSE client connections. Delivery is best-effort: no
// replay, no acknowledgement.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.Named("sse"),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("client unregistered",
			zap.String("client_id", clientID),
			zap.Int("total", len(h.clients)))
	}
}

// ClientCount number of live connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.deliver(client, event)
	}
}

// SendToUser sends to every connection of one user and returns how many
// connections accepted the event.
func (h *Hub) SendToUser(userID string, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if client.UserID == userID && h.deliver(client, event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) deliver(client *Client, event Event) bool {
	select {
	case client.Events <- event:
		return true
	default:
		h.logger.Warn("client buffer full, dropping event",
			zap.String("client_id", client.ID),
			zap.String("event", event.EventType))
		return false
	}
}

// TileProgress payload of the tile_progress event
type TileProgress struct {
	JobID   string `json:"job_id"`
	TileID  string `json:"tile_id"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
	URN     string `json:"urn,omitempty"`
}

// PublishTileProgress pushes a tile generation phase change to the user
func (h *Hub) PublishTileProgress(userID string, p TileProgress) {
	data, err := json.Marshal(p)
	if err != nil {
		h.logger.Error("marshal tile progress", zap.Error(err))
		return
	}
	n := h.SendToUser(userID, Event{EventType: "tile_progress", Data: string(data)})
	h.logger.Debug("published tile_progress",
		zap.String("user_id", userID),
		zap.String("job_id", p.JobID),
		zap.String("phase", p.Phase),
		zap.Int("delivered", n))
}

// PublishProjectUpdate project level change (created, archived, deleted)
func (h *Hub) PublishProjectUpdate(projectID, action string) {
	data, _ := json.Marshal(map[string]string{"project_id": projectID, "action": action})
	h.Broadcast(Event{EventType: "project_update", Data: string(data)})
}
