package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blogem/ha-gateway/authenticator"
	"github.com/blogem/ha-gateway/models"
)

// BridgeController handles the generic bridge endpoint and the REST shortcuts for recorder reads
type BridgeController struct {
	dispatcher *dispatcher
	auth       authenticator.Provider
}

// NewBridgeController creates a new bridge controller
func NewBridgeController(dispatcher *dispatcher, auth authenticator.Provider) *BridgeController {
	return &BridgeController{
		dispatcher: dispatcher,
		auth:       auth,
	}
}

// Bridge handles POST /ws_bridge with a {method, args, token} body.
// Older clients send the arguments at the top level instead of under args.
func (c *BridgeController) Bridge(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		c.dispatcher.fail(w, "", err)
		return
	}

	method, _ := body["method"].(string)
	if method == "" {
		c.dispatcher.fail(w, "", models.NewError(models.ErrInvalidRequest, "method is required"))
		return
	}

	// A token in the body is checked against the API key when one is configured
	if token, _ := body["token"].(string); token != "" && c.auth != nil && !c.auth.Verify(token) {
		c.dispatcher.fail(w, method, models.NewError(models.ErrUnauthorized, "invalid token"))
		return
	}

	args, ok := body["args"].(map[string]interface{})
	if !ok {
		if body["args"] != nil {
			c.dispatcher.fail(w, method, models.NewError(models.ErrInvalidRequest, "args must be an object"))
			return
		}
		args = make(map[string]interface{}, len(body))
		for k, v := range body {
			if k != "method" && k != "token" && k != "args" {
				args[k] = v
			}
		}
	}

	c.dispatcher.serve(w, r, method, args)
}

// Method returns a handler that dispatches method with the request's query string as arguments
func (c *BridgeController) Method(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args := make(map[string]interface{})
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				args[key] = values[len(values)-1]
			}
		}
		c.dispatcher.serve(w, r, method, args)
	}
}

// Query handles POST /query with a {query, params} body, and GET /query?q=
func (c *BridgeController) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		c.dispatcher.serve(w, r, "query", map[string]interface{}{"query": r.URL.Query().Get("q")})
		return
	}

	body, err := decodeBody(r)
	if err != nil {
		c.dispatcher.fail(w, "query", err)
		return
	}
	c.dispatcher.serve(w, r, "query", body)
}

// Schema handles GET /schema/{table}
func (c *BridgeController) Schema(w http.ResponseWriter, r *http.Request) {
	c.dispatcher.serve(w, r, "schema", map[string]interface{}{"table_name": chi.URLParam(r, "table")})
}

// States handles GET /states?limit=&entity_id=
func (c *BridgeController) States(w http.ResponseWriter, r *http.Request) {
	args := make(map[string]interface{})
	if err := queryInt(r, "limit", args); err != nil {
		c.dispatcher.fail(w, "states", err)
		return
	}
	if entityID := r.URL.Query().Get("entity_id"); entityID != "" {
		args["entity_id"] = entityID
	}
	c.dispatcher.serve(w, r, "states", args)
}

// Events handles GET /events?limit=&event_type=
func (c *BridgeController) Events(w http.ResponseWriter, r *http.Request) {
	args := make(map[string]interface{})
	if err := queryInt(r, "limit", args); err != nil {
		c.dispatcher.fail(w, "events", err)
		return
	}
	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		args["event_type"] = eventType
	}
	c.dispatcher.serve(w, r, "events", args)
}
