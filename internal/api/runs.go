package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// getRun returns the current state of one generation run, including its
// final plan once Status reaches a terminal value.
// GET /api/runs/{id}
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runRepo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// listRuns returns every known generation run, most recent first.
// GET /api/runs
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runRepo.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}
