package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

func (s *Server) handleIntegrationStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := s.Status.Get(r.Context(), statusstore.IntegrationStatusKey(vars["type"], vars["id"]))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read integration status")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type integrationSettingsRequest struct {
	Settings map[string]any `json:"settings"`
}

func (s *Server) handleIntegrationStart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req integrationSettingsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec, err := s.Integrations.Start(r.Context(), vars["type"], vars["id"], req.Settings)
	if err != nil {
		s.Metrics.ProcessFailures.WithLabelValues("integration", "start").Inc()
	}
	s.Metrics.ProcessStarts.WithLabelValues("integration").Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "start requested", "status": rec})
}

func (s *Server) handleIntegrationStop(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	force := r.URL.Query().Get("force") == "true"
	err := s.Integrations.Stop(r.Context(), vars["type"], vars["id"], force)
	if err != nil {
		s.Metrics.ProcessFailures.WithLabelValues("integration", "stop").Inc()
	}
	s.Metrics.ProcessStops.WithLabelValues("integration").Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "stop requested"})
}

func (s *Server) handleIntegrationRestart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req integrationSettingsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec, err := s.Integrations.Restart(r.Context(), vars["type"], vars["id"], req.Settings)
	if err != nil {
		s.Metrics.ProcessFailures.WithLabelValues("integration", "restart").Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "restart requested", "status": rec})
}
