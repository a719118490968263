package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/centerfire/agent-orchestrator/internal/bus"
	"github.com/centerfire/agent-orchestrator/internal/config"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

type createAgentRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	OwnerID     string         `json:"owner_id"`
	Settings    map[string]any `json:"settings"`
}

type agentView struct {
	config.AgentConfig
	Status statusstore.Status `json:"status"`
	PID    int                `json:"pid,omitempty"`
}

// handleCreateAgent writes the new agent's DB row and seeds its Redis
// status to "stopped", per spec.md's POST /agents row.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := config.AgentConfig{ID: req.ID, Name: req.Name, Description: req.Description, OwnerID: req.OwnerID, Settings: req.Settings}
	if err := s.Repo.Upsert(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}
	if err := s.Status.SetFields(r.Context(), statusstore.AgentStatusKey(req.ID), map[string]any{
		"status": string(statusstore.StatusStopped),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to seed agent status")
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// handleListAgents joins every DB record with its current reconciled
// Redis status.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.Repo.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	views := make([]agentView, 0, len(cfgs))
	for _, cfg := range cfgs {
		rec, err := s.Status.GetWithLegacyFallback(r.Context(), statusstore.AgentStatusKey(cfg.ID), statusstore.LegacyAgentStatusKey(cfg.ID))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read agent status")
			return
		}
		views = append(views, agentView{AgentConfig: cfg, Status: rec.Status, PID: rec.PID})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleUpdateAgent overwrites the agent's configuration; if it is
// currently running, it requests a hot-restart via the control channel
// rather than stopping it outright.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, err := s.Repo.Get(r.Context(), agentID)
	if err == config.ErrNotFound {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read agent")
		return
	}

	cfg := existing
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Description != "" {
		cfg.Description = req.Description
	}
	if req.Settings != nil {
		cfg.Settings = req.Settings
	}
	if err := s.Repo.Upsert(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}

	rec, err := s.Status.Get(r.Context(), statusstore.AgentStatusKey(agentID))
	if err == nil && rec.IsLive() {
		s.publishControl(r.Context(), agentID, bus.CommandRestart)
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleDeleteAgent requests a graceful shutdown if running, waits a
// short grace period, then removes the DB row and status keys.
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]

	rec, err := s.Status.Get(r.Context(), statusstore.AgentStatusKey(agentID))
	if err == nil && rec.IsLive() {
		s.publishControl(r.Context(), agentID, bus.CommandShutdown)
		select {
		case <-r.Context().Done():
		case <-time.After(shutdownGracePeriod):
		}
	}

	if err := s.Repo.Delete(r.Context(), agentID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	_ = s.Status.Delete(r.Context(), statusstore.AgentStatusKey(agentID))
	_ = s.Status.Delete(r.Context(), statusstore.LegacyAgentStatusKey(agentID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleGetAgentConfig is the internal endpoint a freshly spawned child
// fetches its effective configuration from.
func (s *Server) handleGetAgentConfig(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	cfg, err := s.Repo.Get(r.Context(), agentID)
	if err == config.ErrNotFound {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read agent config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": cfg.ID, "settings": cfg.Settings})
}

// handleAgentStatus returns the reconciled status, 404 when the config is
// missing, and "stopped" when the config exists but no status key does.
func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	if _, err := s.Repo.Get(r.Context(), agentID); err == config.ErrNotFound {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read agent")
		return
	}

	rec, err := s.Status.GetWithLegacyFallback(r.Context(), statusstore.AgentStatusKey(agentID), statusstore.LegacyAgentStatusKey(agentID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read agent status")
		return
	}
	if rec.Status == statusstore.StatusNotFound {
		rec.Status = statusstore.StatusStopped
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	cfg, err := s.Repo.Get(r.Context(), agentID)
	if err == config.ErrNotFound {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read agent")
		return
	}

	results := s.Coordinator.StartAgentWithIntegrations(r.Context(), agentID, cfg.Settings, nil)
	s.Metrics.ProcessStarts.WithLabelValues("agent").Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "start requested", "results": results})
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"
	results := s.Coordinator.StopAgentWithIntegrations(r.Context(), agentID, nil, force)
	s.Metrics.ProcessStops.WithLabelValues("agent").Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "stop requested", "results": results})
}

func (s *Server) handleAgentRestart(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	cfg, err := s.Repo.Get(r.Context(), agentID)
	if err == config.ErrNotFound {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read agent")
		return
	}

	s.Coordinator.StopAgentWithIntegrations(r.Context(), agentID, nil, true)
	results := s.Coordinator.StartAgentWithIntegrations(r.Context(), agentID, cfg.Settings, nil)
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "restart requested", "results": results})
}

func (s *Server) publishControl(ctx context.Context, agentID string, cmd bus.ControlCommand) {
	blob, err := json.Marshal(bus.ControlEnvelope{Command: cmd})
	if err != nil {
		s.Logger.Error("failed to encode control envelope", "error", err)
		return
	}
	if err := s.Redis.Publish(ctx, bus.ControlChannel(agentID), blob).Err(); err != nil {
		s.Logger.Error("failed to publish control command", "command", cmd, "error", err)
	}
}
