package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/soochol/actionplan/internal/domain"
)

// generateRequest is the JSON body for POST /api/generate (§6's external
// generation request contract).
type generateRequest struct {
	Name                    string   `json:"name"`
	Timing                  string   `json:"timing,omitempty"`
	Level                   string   `json:"level"`
	Phase                   string   `json:"phase"`
	Subject                 string   `json:"subject"`
	SpecialProtocolsNodeIDs []string `json:"special_protocols_node_ids,omitempty"`
	DocumentsToQuery        []string `json:"documents_to_query,omitempty"`
	GuidelineDocuments      []string `json:"guideline_documents,omitempty"`
}

// generateResponse reports the run a generation request kicked off, for a
// caller to poll via GET /api/runs/{id}.
type generateResponse struct {
	RunID  string           `json:"run_id"`
	Status domain.RunStatus `json:"status"`
}

// generate starts a pipeline run from a user's crisis-plan request and
// returns immediately with a run id; the run itself executes asynchronously
// and is polled via GET /api/runs/{id}.
// POST /api/generate
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Level == "" || req.Phase == "" || req.Subject == "" {
		http.Error(w, "name, level, phase, and subject are required", http.StatusBadRequest)
		return
	}

	uc := domain.UserConfig{
		Name:                    req.Name,
		Timing:                  req.Timing,
		Level:                   domain.Level(req.Level),
		Phase:                   domain.Phase(req.Phase),
		Subject:                 domain.Subject(req.Subject),
		SpecialProtocolsNodeIDs: req.SpecialProtocolsNodeIDs,
		DocumentsToQuery:        req.DocumentsToQuery,
		GuidelineDocuments:      req.GuidelineDocuments,
	}

	state := domain.NewPipelineState(uc)
	run := domain.NewGenerationRun(uuid.NewString(), state)
	if err := s.runRepo.Create(r.Context(), run); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Execution proceeds on a context detached from the request, since the
	// run outlives the HTTP call that started it; the caller polls
	// GET /api/runs/{id} for progress and the final plan.
	go func() {
		if _, err := s.runner.Resume(context.Background(), run); err != nil {
			slog.Error("api: generation run failed", "run_id", run.ID, "err", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(generateResponse{RunID: run.ID, Status: run.Status})
}
