package controllers

import (
	"net/http"

	"github.com/blogem/ha-gateway/services"
)

// StatusController serves the unauthenticated status endpoints. They are not rate limited.
type StatusController struct {
	services *services.Services
}

// NewStatusController creates a new status controller
func NewStatusController(services *services.Services) *StatusController {
	return &StatusController{
		services: services,
	}
}

// Health handles GET /health
func (c *StatusController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.services.Status.Health(r.Context()))
}

// Ping handles GET /ping
func (c *StatusController) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.services.Status.Ping())
}

// Status handles GET /status
func (c *StatusController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.services.Status.Status())
}

// Info handles GET /api
func (c *StatusController) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.services.Status.Info())
}
