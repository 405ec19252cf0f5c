package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/modelapi"
	"github.com/soochol/actionplan/internal/repository"
	"github.com/soochol/actionplan/internal/supervisor"
)

// fakeExecutor marks that it ran in state.Errors-free fashion by appending
// its name to a shared trace, and optionally returns a scripted error.
type fakeExecutor struct {
	name domain.StageName
	trace *[]domain.StageName
	err   error
}

func (f *fakeExecutor) Name() domain.StageName { return f.name }
func (f *fakeExecutor) Execute(_ context.Context, state *domain.PipelineState) error {
	if f.trace != nil {
		*f.trace = append(*f.trace, f.name)
	}
	return f.err
}

type scriptedGenerator struct {
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(context.Context, modelapi.GenerateParams) (string, error) {
	return "", nil
}

func (g *scriptedGenerator) GenerateStructured(context.Context, modelapi.GenerateParams, map[string]any) (json.RawMessage, error) {
	idx := g.calls
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	g.calls++
	return json.RawMessage(g.responses[idx]), nil
}

type scriptedResolver struct{ gen *scriptedGenerator }

func (r *scriptedResolver) GeneratorFor(string) (modelapi.Generator, error) { return r.gen, nil }
func (r *scriptedResolver) Embedder() (modelapi.Embedder, error)           { return nil, nil }

func fullExecutorSet(trace *[]domain.StageName) []StageExecutor {
	execs := make([]StageExecutor, 0, len(domain.StageOrder))
	for _, name := range domain.StageOrder {
		execs = append(execs, &fakeExecutor{name: name, trace: trace})
	}
	return execs
}

func newTestRunnerSupervisor(t *testing.T, gen *scriptedGenerator) *supervisor.Supervisor {
	t.Helper()
	cfg := &config.Config{Pipeline: config.PipelineConfig{
		MaxRetries:                 1,
		SupervisorApproveThreshold: 0.8,
		SupervisorRepairLower:      0.6,
	}}
	caller := agentrt.NewCaller(&scriptedResolver{gen: gen}, agentrt.NewPromptLibrary(), cfg)
	sup, err := supervisor.NewSupervisor(cfg, caller)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	return sup
}

func TestRunner_Run_ApprovesOnFirstPass(t *testing.T) {
	var trace []domain.StageName
	gen := &scriptedGenerator{responses: []string{
		`{"criteria":{"structural_completeness":1,"action_traceability":1,"logical_sequencing":1,"guideline_compliance":1,"formatting_quality":1,"actionability":1,"metadata_completeness":1},"defects":[]}`,
	}}
	sup := newTestRunnerSupervisor(t, gen)
	cfg := &config.Config{Pipeline: config.PipelineConfig{ValidatorMaxReruns: 3}}

	runner := NewRunner(fullExecutorSet(&trace), sup, cfg, nil, nil)
	state := domain.NewPipelineState(domain.UserConfig{Name: "Test", Level: domain.LevelMinistry, Phase: domain.PhaseResponse, Subject: domain.SubjectWar})

	final, err := runner.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != domain.StatusApproved {
		t.Errorf("expected approved status, got %v", final.Status)
	}
	if len(trace) != len(domain.StageOrder) {
		t.Errorf("expected every stage to run once, got trace %v", trace)
	}
}

func TestRunner_Run_ReRunsFromRoutedStageOnAgentRerun(t *testing.T) {
	var trace []domain.StageName
	gen := &scriptedGenerator{responses: []string{
		`{"criteria":{"structural_completeness":0.2,"action_traceability":0.2,"logical_sequencing":0.2,"guideline_compliance":0.2,"formatting_quality":0.2,"actionability":0.2,"metadata_completeness":0.2},"defects":[{"type":"missing_who","detail":"actor missing"}]}`,
		`{"criteria":{"structural_completeness":1,"action_traceability":1,"logical_sequencing":1,"guideline_compliance":1,"formatting_quality":1,"actionability":1,"metadata_completeness":1},"defects":[]}`,
	}}
	sup := newTestRunnerSupervisor(t, gen)
	cfg := &config.Config{Pipeline: config.PipelineConfig{ValidatorMaxReruns: 3}}

	runner := NewRunner(fullExecutorSet(&trace), sup, cfg, nil, nil)
	state := domain.NewPipelineState(domain.UserConfig{Name: "Test", Level: domain.LevelMinistry, Phase: domain.PhaseResponse, Subject: domain.SubjectWar})

	final, err := runner.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != domain.StatusApproved {
		t.Errorf("expected eventual approval, got %v", final.Status)
	}
	if final.ValidatorRetryCount != 1 {
		t.Errorf("expected one rerun recorded, got %d", final.ValidatorRetryCount)
	}

	assignerCount := 0
	for _, s := range trace {
		if s == domain.StageAssigner {
			assignerCount++
		}
	}
	if assignerCount != 2 {
		t.Errorf("expected assigner (and everything after it) to run twice, got %d", assignerCount)
	}
}

func TestRunner_Run_ExhaustsRerunsAndReturnsWarnings(t *testing.T) {
	var trace []domain.StageName
	lowScore := `{"criteria":{"structural_completeness":0.1,"action_traceability":0.1,"logical_sequencing":0.1,"guideline_compliance":0.1,"formatting_quality":0.1,"actionability":0.1,"metadata_completeness":0.1},"defects":[{"type":"missing_who","detail":"still missing"}]}`
	gen := &scriptedGenerator{responses: []string{lowScore, lowScore, lowScore}}
	sup := newTestRunnerSupervisor(t, gen)
	cfg := &config.Config{Pipeline: config.PipelineConfig{ValidatorMaxReruns: 1}}

	runner := NewRunner(fullExecutorSet(&trace), sup, cfg, nil, nil)
	state := domain.NewPipelineState(domain.UserConfig{Name: "Test", Level: domain.LevelMinistry, Phase: domain.PhaseResponse, Subject: domain.SubjectWar})

	final, err := runner.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != domain.StatusApprovedWithWarnings {
		t.Errorf("expected approved_with_warnings after exhausting reruns, got %v", final.Status)
	}
}

func TestRunner_Run_StageFailurePropagatesError(t *testing.T) {
	var trace []domain.StageName
	execs := fullExecutorSet(&trace)
	for i, e := range execs {
		if e.Name() == domain.StageExtractor {
			execs[i] = &fakeExecutor{name: domain.StageExtractor, trace: &trace, err: errors.New("boom")}
		}
	}
	sup := newTestRunnerSupervisor(t, &scriptedGenerator{responses: []string{"{}"}})
	cfg := &config.Config{Pipeline: config.PipelineConfig{ValidatorMaxReruns: 3}}

	runner := NewRunner(execs, sup, cfg, nil, nil)
	state := domain.NewPipelineState(domain.UserConfig{Name: "Test", Level: domain.LevelMinistry, Phase: domain.PhaseResponse, Subject: domain.SubjectWar})

	_, err := runner.Run(context.Background(), state)
	if err == nil {
		t.Fatal("expected error from failing stage")
	}
	if len(state.Errors) != 1 || state.Errors[0].Stage != domain.StageExtractor {
		t.Errorf("expected one recorded error entry for extractor, got %v", state.Errors)
	}
}

func TestRunner_Start_PersistsRunViaRepository(t *testing.T) {
	var trace []domain.StageName
	gen := &scriptedGenerator{responses: []string{
		`{"criteria":{"structural_completeness":1,"action_traceability":1,"logical_sequencing":1,"guideline_compliance":1,"formatting_quality":1,"actionability":1,"metadata_completeness":1},"defects":[]}`,
	}}
	sup := newTestRunnerSupervisor(t, gen)
	cfg := &config.Config{Pipeline: config.PipelineConfig{ValidatorMaxReruns: 3}}
	repo := repository.NewMemoryGenerationRunRepository()

	runner := NewRunner(fullExecutorSet(&trace), sup, cfg, repo, nil)
	run, err := runner.Start(context.Background(), domain.UserConfig{Name: "Test", Level: domain.LevelMinistry, Phase: domain.PhaseResponse, Subject: domain.SubjectWar})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected generated run id")
	}

	stored, err := repo.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get persisted run: %v", err)
	}
	if stored.Status != domain.RunCompleted {
		t.Errorf("expected persisted run status completed, got %v", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("expected CompletedAt to be set on the persisted run")
	}
}
