package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/modelapi"
	"github.com/soochol/actionplan/internal/pipeline"
	"github.com/soochol/actionplan/internal/repository"
	"github.com/soochol/actionplan/internal/supervisor"
)

type noopExecutor struct{ name domain.StageName }

func (n noopExecutor) Name() domain.StageName                                  { return n.name }
func (n noopExecutor) Execute(_ context.Context, _ *domain.PipelineState) error { return nil }

type approvingGenerator struct{}

func (approvingGenerator) Generate(context.Context, modelapi.GenerateParams) (string, error) {
	return "", nil
}
func (approvingGenerator) GenerateStructured(context.Context, modelapi.GenerateParams, map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{"criteria":{"structural_completeness":1,"action_traceability":1,"logical_sequencing":1,"guideline_compliance":1,"formatting_quality":1,"actionability":1,"metadata_completeness":1},"defects":[]}`), nil
}

type approvingResolver struct{}

func (approvingResolver) GeneratorFor(string) (modelapi.Generator, error) { return approvingGenerator{}, nil }
func (approvingResolver) Embedder() (modelapi.Embedder, error)            { return nil, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Pipeline: config.PipelineConfig{
		MaxRetries:                 1,
		SupervisorApproveThreshold: 0.8,
		SupervisorRepairLower:      0.6,
		ValidatorMaxReruns:         3,
	}}
	caller := agentrt.NewCaller(approvingResolver{}, agentrt.NewPromptLibrary(), cfg)
	sup, err := supervisor.NewSupervisor(cfg, caller)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	execs := make([]pipeline.StageExecutor, 0, len(domain.StageOrder))
	for _, name := range domain.StageOrder {
		execs = append(execs, noopExecutor{name: name})
	}

	repo := repository.NewMemoryGenerationRunRepository()
	runner := pipeline.NewRunner(execs, sup, cfg, repo, nil)
	return NewServer(runner, repo)
}

func TestAPI_Generate_StartsRunAndReturnsID(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(generateRequest{Name: "Flood Response", Level: "ministry", Phase: "response", Subject: "war"})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d, body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var resp generateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("expected a non-empty run id")
	}
}

func TestAPI_Generate_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(generateRequest{Name: "Flood Response"})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAPI_GetRun_NotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPI_GetRun_ReturnsPersistedRun(t *testing.T) {
	srv := newTestServer(t)
	run := domain.NewGenerationRun("run-1", domain.NewPipelineState(domain.UserConfig{Name: "Test"}))
	if err := srv.runRepo.Create(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	var got domain.GenerationRun
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if got.ID != "run-1" {
		t.Errorf("id: got %q, want %q", got.ID, "run-1")
	}
}

func TestAPI_ListRuns_ReturnsAll(t *testing.T) {
	srv := newTestServer(t)
	run := domain.NewGenerationRun("run-list-1", domain.NewPipelineState(domain.UserConfig{Name: "Test"}))
	if err := srv.runRepo.Create(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs/", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Runs []domain.GenerationRun `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Runs) != 1 {
		t.Errorf("runs: got %d, want 1", len(resp.Runs))
	}
}
