package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blogem/ha-gateway/authenticator"
	"github.com/blogem/ha-gateway/bridge"
	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/services"
	"github.com/blogem/ha-gateway/userctx"
)

// maxBodySize bounds request bodies; include files are small
const maxBodySize = 4 << 20

// writeJSON writes v as a JSON response with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusForCode maps an error code to its HTTP status
func StatusForCode(code models.ErrorCode) int {
	switch code {
	case "":
		return http.StatusOK
	case models.ErrInvalidRequest, models.ErrQueryDenied, models.ErrPathEscape,
		models.ErrConfigurationInvalid, models.ErrValidationFailed:
		return http.StatusBadRequest
	case models.ErrUnauthorized:
		return http.StatusUnauthorized
	case models.ErrForbidden:
		return http.StatusForbidden
	case models.ErrNotFound, models.ErrUnknownMethod:
		return http.StatusNotFound
	case models.ErrFileExists:
		return http.StatusConflict
	case models.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON object. Numbers are kept as json.Number so integers bind exactly.
func decodeBody(r *http.Request) (map[string]interface{}, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, models.WrapError(models.ErrInvalidRequest, "failed to read body", err)
	}
	if len(data) > maxBodySize {
		return nil, models.NewError(models.ErrInvalidRequest, "request body too large")
	}

	body := make(map[string]interface{})
	if len(bytes.TrimSpace(data)) == 0 {
		return body, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, models.WrapError(models.ErrInvalidRequest, "body must be a JSON object", err)
	}
	return body, nil
}

// queryInt copies an integer query parameter into args
func queryInt(r *http.Request, name string, args map[string]interface{}) error {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return models.NewError(models.ErrInvalidRequest, name+" must be an integer")
	}
	args[name] = n
	return nil
}

// Controllers holds all controller instances
type Controllers struct {
	Bridge *BridgeController
	Config *ConfigController
	Status *StatusController
}

// NewControllers creates and initializes all controller instances
func NewControllers(router *bridge.Router, services *services.Services, auth authenticator.Provider) *Controllers {
	dispatcher := &dispatcher{router: router}
	return &Controllers{
		Bridge: NewBridgeController(dispatcher, auth),
		Config: NewConfigController(dispatcher),
		Status: NewStatusController(services),
	}
}

// dispatcher runs a method for an HTTP request and writes the envelope
type dispatcher struct {
	router *bridge.Router
}

func (d *dispatcher) serve(w http.ResponseWriter, r *http.Request, method string, args map[string]interface{}) {
	identity := userctx.GetCaller(r.Context())
	ctx := bridge.WithHost(r.Context(), r.Host)

	env := d.router.Dispatch(ctx, method, args, identity)

	if limit, remaining := d.router.RateLimit(identity); limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	writeJSON(w, StatusForCode(env.ErrorCode()), env)
}

// fail writes an error envelope for a request rejected before dispatch
func (d *dispatcher) fail(w http.ResponseWriter, method string, err error) {
	env := models.NewErrorEnvelope(method, err, nil, time.Now())
	writeJSON(w, StatusForCode(env.ErrorCode()), env)
}
