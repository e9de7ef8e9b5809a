package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rescp17/peerlink/pkg/relay"
	"github.com/rescp17/peerlink/pkg/system"
)

// API is the HTTP surface of the signaling relay.
type API struct {
	hub     *relay.Hub
	monitor *system.SystemMonitor
	mux     *http.ServeMux
}

// NewAPI creates and initializes a new API instance.
func NewAPI(hub *relay.Hub) *API {
	api := &API{
		hub:     hub,
		monitor: system.NewSystemMonitor(),
		mux:     http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

// ServeHTTP allows the API struct to satisfy the http.Handler interface.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) registerRoutes() {
	a.mux.HandleFunc("GET /ws", a.hub.ServeWS)
	a.mux.HandleFunc("GET /healthz", a.HealthHandler)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	relay.Stats
	Runtime system.RuntimeStats `json:"runtime"`
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := HealthResponse{
		Status:  "ok",
		Stats:   a.hub.Stats(),
		Runtime: a.monitor.GetRuntimeStats(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}
