// Package controlplane is the HTTP/WebSocket control surface (SPEC_FULL.md
// C7, spec.md §4.7), grounded on AGT-MANAGER-1__manager1/main.go's
// gorilla/mux router for the HTTP shape and on
// original_source/agent_manager/api/websocket.py's ConnectionManager /
// redis_websocket_listener for the duplex-streaming idiom.
package controlplane

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/centerfire/agent-orchestrator/internal/config"
	"github.com/centerfire/agent-orchestrator/internal/coordinator"
	"github.com/centerfire/agent-orchestrator/internal/integrationmgr"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

// shutdownGracePeriod is how long DeleteAgent waits after publishing a
// shutdown command before removing the DB row and status keys, matching
// spec.md §4.7's "wait a short grace period" requirement.
const shutdownGracePeriod = 3 * time.Second

// Server is the Control Plane's HTTP/WebSocket surface.
type Server struct {
	Repo         config.Repository
	Status       *statusstore.Store
	Coordinator  *coordinator.Coordinator
	Integrations *integrationmgr.Manager
	Redis        *redis.Client
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics
	Upgrader     Upgrader
	RateLimiter  *RateLimiter // optional; nil disables rate limiting
}

// Router builds the full gorilla/mux router for this server, matching the
// path table in spec.md §4.7.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/agents").Subrouter()

	api.HandleFunc("", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("", s.handleCreateAgent).Methods(http.MethodPost)
	api.HandleFunc("/{id}", s.handleUpdateAgent).Methods(http.MethodPut)
	api.HandleFunc("/{id}", s.handleDeleteAgent).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/config", s.handleGetAgentConfig).Methods(http.MethodGet)
	api.HandleFunc("/{id}/status", s.handleAgentStatus).Methods(http.MethodGet)
	api.HandleFunc("/{id}/start", s.handleAgentStart).Methods(http.MethodPost)
	api.HandleFunc("/{id}/stop", s.handleAgentStop).Methods(http.MethodPost)
	api.HandleFunc("/{id}/restart", s.handleAgentRestart).Methods(http.MethodPost)

	api.HandleFunc("/{id}/integrations/{type}/status", s.handleIntegrationStatus).Methods(http.MethodGet)
	api.HandleFunc("/{id}/integrations/{type}/start", s.handleIntegrationStart).Methods(http.MethodPost)
	api.HandleFunc("/{id}/integrations/{type}/stop", s.handleIntegrationStop).Methods(http.MethodPost)
	api.HandleFunc("/{id}/integrations/{type}/restart", s.handleIntegrationRestart).Methods(http.MethodPost)

	r.HandleFunc("/ws/agents/{id}", s.handleWebSocket)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	if s.RateLimiter != nil {
		r.Use(s.RateLimiter.Middleware)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
