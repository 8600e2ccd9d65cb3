package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blogem/ha-gateway/authenticator"
	gwmiddleware "github.com/blogem/ha-gateway/middleware"
	"github.com/blogem/ha-gateway/userctx"
)

// RouteOptions carry the handlers and switches that are not controllers
type RouteOptions struct {
	Auth           authenticator.Provider
	ExternalAccess bool
	TrustProxy     bool
	RequestTimeout time.Duration
	// WebSocket serves GET /ws; nil when the channel is disabled
	WebSocket http.Handler
	Metrics   http.Handler
}

// NewRouter configures all routes
func NewRouter(ctrl *Controllers, opts RouteOptions) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestIDToContext)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(gwmiddleware.CallerIdentity(opts.TrustProxy))

	// The WebSocket connection outlives any request timeout
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Use(middleware.Compress(5))

		// PUBLIC ROUTES
		r.Get("/health", ctrl.Status.Health)
		r.Get("/ping", ctrl.Status.Ping)
		r.Get("/status", ctrl.Status.Status)
		r.Get("/api", ctrl.Status.Info)
		if opts.Metrics != nil {
			r.Handle("/metrics", opts.Metrics)
		}

		// Bridge and shortcuts, all through the method router
		r.Post("/ws_bridge", ctrl.Bridge.Bridge)
		r.Get("/query", ctrl.Bridge.Query)
		r.Post("/query", ctrl.Bridge.Query)
		r.Get("/tables", ctrl.Bridge.Method("tables"))
		r.Get("/schema/{table}", ctrl.Bridge.Schema)
		r.Get("/entities", ctrl.Bridge.Method("entities"))
		r.Get("/states", ctrl.Bridge.States)
		r.Get("/events", ctrl.Bridge.Events)

		// File mutations need the API key when one is configured
		r.Route("/ha_config", func(r chi.Router) {
			if opts.Auth != nil {
				r.Use(gwmiddleware.RequireAPIKey(opts.Auth))
			}

			r.Post("/append_lines", ctrl.Config.AppendLines)
			r.Post("/insert", ctrl.Config.Insert)
		})

		// EXTERNAL ROUTES (gated, API key when configured)
		r.Route("/external", func(r chi.Router) {
			r.Use(gwmiddleware.RequireExternalAccess(opts.ExternalAccess))
			if opts.Auth != nil {
				r.Use(gwmiddleware.RequireAPIKey(opts.Auth))
			}

			r.Get("/status", ctrl.Bridge.Method("status"))
			r.Post("/query", ctrl.Bridge.Query)
			r.Get("/entities", ctrl.Bridge.Method("entities"))
			r.Get("/states", ctrl.Bridge.States)
		})
	})

	return r
}

// requestIDToContext exposes chi's request id to the services
func requestIDToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(userctx.SetRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
