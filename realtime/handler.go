package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/blogem/ha-gateway/bridge"
	"github.com/blogem/ha-gateway/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	// The add-on is reached through Home Assistant ingress or a reverse proxy, so origins vary
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Dispatcher runs one bridge method call
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]interface{}, identity string) models.BridgeEnvelope
}

// frame is a client request. The id is echoed back unchanged.
type frame struct {
	ID     json.RawMessage        `json:"id,omitempty"`
	Method string                 `json:"method"`
	Args   map[string]interface{} `json:"args"`
}

type reply struct {
	ID json.RawMessage `json:"id,omitempty"`
	models.BridgeEnvelope
}

// Handler upgrades the request and serves bridge calls over the connection.
// identify returns the caller identity used for rate limiting.
func (h *Hub) Handler(dispatcher Dispatcher, identify func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		c := &client{
			id:       uuid.NewString(),
			identity: identify(r),
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
		}
		h.register(c)
		go h.writePump(c)

		h.sendTo(c, Event{
			Event:     EventConnect,
			Data:      map[string]string{"client_id": c.id, "status": "connected"},
			Timestamp: h.now(),
		})

		ctx := bridge.WithHost(r.Context(), r.Host)
		h.readPump(ctx, c, dispatcher)
	}
}

// readPump dispatches frames in arrival order until the connection fails
func (h *Hub) readPump(ctx context.Context, c *client, dispatcher Dispatcher) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}

		var f frame
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&f); err != nil {
			gwErr := models.WrapError(models.ErrInvalidRequest, "invalid frame", err)
			h.sendTo(c, reply{BridgeEnvelope: models.NewErrorEnvelope("", gwErr, nil, h.now())})
			continue
		}
		if f.Method == "" {
			gwErr := models.NewError(models.ErrInvalidRequest, "method is required")
			h.sendTo(c, reply{ID: f.ID, BridgeEnvelope: models.NewErrorEnvelope("", gwErr, nil, h.now())})
			continue
		}

		switch f.Method {
		case EventQueryDatabase:
			h.queryDatabase(ctx, c, dispatcher, f)
		case EventSubscribeEntity:
			h.subscribeEntity(c, f)
		default:
			env := dispatcher.Dispatch(ctx, f.Method, f.Args, c.identity)
			h.sendTo(c, reply{ID: f.ID, BridgeEnvelope: env})
		}
	}
}

// queryDatabase runs a query frame through the router and answers with a
// query_result or query_error event instead of an envelope
func (h *Hub) queryDatabase(ctx context.Context, c *client, dispatcher Dispatcher, f frame) {
	env := dispatcher.Dispatch(ctx, "query", f.Args, c.identity)

	event := Event{ID: f.ID, Event: EventQueryResult, Data: env.Result, Timestamp: h.now()}
	if !env.Success {
		data := map[string]interface{}{"request_id": env.RequestID}
		if env.Error != nil {
			data["error"] = env.Error.Message
			data["code"] = env.Error.Code
		}
		event.Event, event.Data = EventQueryError, data
	}
	h.sendTo(c, event)
}

// subscribeEntity adds an entity to the client's subscriptions
func (h *Hub) subscribeEntity(c *client, f frame) {
	entityID, _ := f.Args["entity_id"].(string)
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		gwErr := models.NewError(models.ErrInvalidRequest, "entity_id is required")
		h.sendTo(c, reply{ID: f.ID, BridgeEnvelope: models.NewErrorEnvelope(EventSubscribeEntity, gwErr, nil, h.now())})
		return
	}

	ids := h.subscribe(c, entityID)
	h.sendTo(c, Event{
		ID:        f.ID,
		Event:     EventSubscribed,
		Data:      map[string]interface{}{"entity_id": entityID, "entity_ids": ids},
		Timestamp: h.now(),
	})
}

// writePump owns all writes to the connection and keeps it alive with pings
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendTo queues v for one client, dropping the client when its buffer is full
func (h *Hub) sendTo(c *client, v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode websocket message", "client_id", c.id, "error", err)
		return
	}

	h.mu.Lock()
	_, connected := h.clients[c]
	if connected {
		select {
		case c.send <- msg:
		default:
			connected = false
		}
	}
	h.mu.Unlock()

	if !connected {
		h.unregister(c)
	}
}
