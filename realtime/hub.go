// Package realtime serves the WebSocket channel and pushes recorder change notifications to its clients.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blogem/ha-gateway/observability"
)

// Server-pushed event names
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventDatabaseUpdated = "database_updated"
	EventQueryResult     = "query_result"
	EventQueryError      = "query_error"
	EventSubscribed      = "subscribed"
)

// Client frames handled by the channel itself rather than the method router
const (
	EventQueryDatabase   = "query_database"
	EventSubscribeEntity = "subscribe_entity"
)

// Events lists every event name a client may send or see, as advertised by ws/connect
var Events = []string{
	EventConnect, EventDisconnect, EventQueryDatabase, EventSubscribeEntity,
	EventSubscribed, EventDatabaseUpdated, EventQueryResult, EventQueryError,
}

const sendBuffer = 32

// Event is a message pushed by the server. ID is set when the event answers a client frame.
type Event struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Event     string          `json:"event"`
	Data      interface{}     `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// client is one WebSocket connection. Writes happen only in its writer goroutine.
type client struct {
	id        string
	identity  string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	// entities is guarded by Hub.mu
	entities map[string]struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// entityIDs returns the subscribed entity ids in order. The caller holds Hub.mu.
func (c *client) entityIDs() []string {
	ids := make([]string, 0, len(c.entities))
	for id := range c.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Hub tracks connected clients and fans out broadcasts
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub creates an empty hub
func NewHub(metrics *observability.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWebSocketClients(n)
	h.logger.Info("websocket client connected", "client_id", c.id, "caller", c.identity, "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.SetWebSocketClients(n)
		h.logger.Info("websocket client disconnected", "client_id", c.id, "clients", n)
	}
}

// Broadcast sends v to every client. A client whose buffer is full is dropped.
func (h *Hub) Broadcast(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "client_id", c.id)
		h.unregister(c)
	}
	return nil
}

// subscribe records that c wants updates for entityID and returns all of its subscriptions
func (h *Hub) subscribe(c *client, entityID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.entities == nil {
		c.entities = make(map[string]struct{})
	}
	c.entities[entityID] = struct{}{}
	return c.entityIDs()
}

// NotifyDatabaseUpdated tells every client that the recorder database changed.
// Clients with entity subscriptions also get their subscribed ids, so they know what to re-query.
func (h *Hub) NotifyDatabaseUpdated(path string) {
	h.metrics.DatabaseUpdated()
	now := h.now()

	plain, err := json.Marshal(Event{
		Event:     EventDatabaseUpdated,
		Data:      map[string]interface{}{"database_path": path},
		Timestamp: now,
	})
	if err != nil {
		h.logger.Error("failed to encode database update", "error", err)
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		msg := plain
		if len(c.entities) > 0 {
			msg, err = json.Marshal(Event{
				Event:     EventDatabaseUpdated,
				Data:      map[string]interface{}{"database_path": path, "entity_ids": c.entityIDs()},
				Timestamp: now,
			})
			if err != nil {
				continue
			}
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "client_id", c.id)
		h.unregister(c)
	}
}

// Close tells every client the server is going away and disconnects it
func (h *Hub) Close() {
	bye, _ := json.Marshal(Event{
		Event:     EventDisconnect,
		Data:      map[string]string{"reason": "server shutting down"},
		Timestamp: h.now(),
	})

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		// Best effort; the writer drains queued messages before closing
		select {
		case c.send <- bye:
		default:
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
