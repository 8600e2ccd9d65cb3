package services

import (
	"context"
	"time"
)

// Version is the gateway version reported by the status methods
var Version = "1.0.0"

const addonName = "Home Assistant Gateway"

// ClientCounter reports the number of connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// StatusOptions describe the running gateway
type StatusOptions struct {
	DatabasePath     string
	DatabaseFound    bool
	ExternalAccess   bool
	WebSocketEnabled bool
	AvailableMethods []string
	WebSocketEvents  []string
	WebSocketClients ClientCounter
	Now              func() time.Time
}

// StatusInfo is returned by the status method and /status
type StatusInfo struct {
	Addon             string    `json:"addon"`
	Version           string    `json:"version"`
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
	DatabasePath      string    `json:"database_path,omitempty"`
	ExternalAccess    bool      `json:"external_access_enabled"`
	WebSocketEnabled  bool      `json:"websocket_enabled"`
}

// AddonInfo is returned by the info method and /api
type AddonInfo struct {
	Message           string   `json:"message"`
	Version           string   `json:"version"`
	DatabaseConnected bool     `json:"database_connected"`
	DatabasePath      string   `json:"database_path"`
	ExternalAccess    bool     `json:"external_access_enabled"`
	WebSocketEnabled  bool     `json:"websocket_enabled"`
	AvailableMethods  []string `json:"available_methods"`
}

// HealthInfo is returned by the health method and /health
type HealthInfo struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	DatabasePath     string    `json:"database_path"`
	DatabaseStatus   string    `json:"database_status"`
	Version          string    `json:"addon_version"`
	ExternalAccess   bool      `json:"external_access_enabled"`
	WebSocketEnabled bool      `json:"websocket_enabled"`
}

// PingInfo is returned by the ping method and /ping
type PingInfo struct {
	Status            string    `json:"status"`
	Addon             string    `json:"addon"`
	Version           string    `json:"version"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
}

// WebSocketInfo is returned by ws/connect
type WebSocketInfo struct {
	Enabled bool     `json:"websocket_enabled"`
	URL     string   `json:"websocket_url"`
	Events  []string `json:"events"`
}

// WebSocketStatus is returned by ws/status
type WebSocketStatus struct {
	Enabled          bool   `json:"websocket_enabled"`
	ConnectedClients int    `json:"connected_clients"`
	Status           string `json:"status"`
}

// StatusService reports on the gateway itself. None of its methods touch the artifact.
type StatusService interface {
	Status() *StatusInfo
	Info() *AddonInfo
	Health(ctx context.Context) *HealthInfo
	Ping() *PingInfo
	WebSocketInfo(host string) *WebSocketInfo
	WebSocketStatus() *WebSocketStatus
}

// statusService implements StatusService
type statusService struct {
	recorder RecorderService
	opts     StatusOptions
}

// NewStatusService creates a new status service
func NewStatusService(recorder RecorderService, opts StatusOptions) StatusService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &statusService{
		recorder: recorder,
		opts:     opts,
	}
}

// Status returns the running state of the gateway
func (s *statusService) Status() *StatusInfo {
	return &StatusInfo{
		Addon:             addonName,
		Version:           Version,
		Status:            "running",
		Timestamp:         s.opts.Now(),
		DatabaseConnected: s.opts.DatabaseFound,
		DatabasePath:      s.opts.DatabasePath,
		ExternalAccess:    s.opts.ExternalAccess,
		WebSocketEnabled:  s.opts.WebSocketEnabled,
	}
}

// Info describes the gateway and the methods it accepts
func (s *statusService) Info() *AddonInfo {
	return &AddonInfo{
		Message:           addonName + " is running!",
		Version:           Version,
		DatabaseConnected: s.opts.DatabaseFound,
		DatabasePath:      s.opts.DatabasePath,
		ExternalAccess:    s.opts.ExternalAccess,
		WebSocketEnabled:  s.opts.WebSocketEnabled,
		AvailableMethods:  s.opts.AvailableMethods,
	}
}

// Health probes the recorder database by listing its tables
func (s *statusService) Health(ctx context.Context) *HealthInfo {
	dbStatus := "connected"
	if _, err := s.recorder.Tables(ctx); err != nil {
		dbStatus = "error: " + err.Error()
	}

	return &HealthInfo{
		Status:           "healthy",
		Timestamp:        s.opts.Now(),
		DatabasePath:     s.opts.DatabasePath,
		DatabaseStatus:   dbStatus,
		Version:          Version,
		ExternalAccess:   s.opts.ExternalAccess,
		WebSocketEnabled: s.opts.WebSocketEnabled,
	}
}

// Ping answers without touching the database
func (s *statusService) Ping() *PingInfo {
	return &PingInfo{
		Status:            "pong",
		Addon:             addonName,
		Version:           Version,
		Timestamp:         s.opts.Now(),
		DatabaseConnected: s.opts.DatabaseFound,
	}
}

// WebSocketInfo tells a client where to connect
func (s *statusService) WebSocketInfo(host string) *WebSocketInfo {
	url := ""
	if host != "" {
		url = "ws://" + host + "/ws"
	}
	return &WebSocketInfo{
		Enabled: s.opts.WebSocketEnabled,
		URL:     url,
		Events:  s.opts.WebSocketEvents,
	}
}

// WebSocketStatus reports the connected client count
func (s *statusService) WebSocketStatus() *WebSocketStatus {
	status := &WebSocketStatus{
		Enabled: s.opts.WebSocketEnabled,
		Status:  "disabled",
	}
	if s.opts.WebSocketEnabled {
		status.Status = "active"
	}
	if s.opts.WebSocketClients != nil {
		status.ConnectedClients = s.opts.WebSocketClients.ClientCount()
	}
	return status
}
