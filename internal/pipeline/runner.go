package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/notify"
	"github.com/soochol/actionplan/internal/repository"
	"github.com/soochol/actionplan/internal/supervisor"
)

// Runner drives a PipelineState through its stages in order, calling the
// Supervisor after Formatter and looping back to whichever stage it names
// on an agent_rerun verdict, generalizing teacher's
// internal/services/pipeline_runner.go executeFrom loop. runRepo and
// notifier are both optional: a nil value just skips persistence or
// notification, the same no-op-on-nil shape teacher's own executors use
// for optional dependencies.
type Runner struct {
	executors  map[domain.StageName]StageExecutor
	supervisor *supervisor.Supervisor
	cfg        *config.Config
	runRepo    repository.GenerationRunRepository
	notifier   notify.Notifier
}

func NewRunner(executors []StageExecutor, sup *supervisor.Supervisor, cfg *config.Config, runRepo repository.GenerationRunRepository, notifier notify.Notifier) *Runner {
	byName := make(map[domain.StageName]StageExecutor, len(executors))
	for _, e := range executors {
		byName[e.Name()] = e
	}
	return &Runner{executors: byName, supervisor: sup, cfg: cfg, runRepo: runRepo, notifier: notifier}
}

// Start creates a fresh GenerationRun from uc, persists it, and drives it to
// completion the same way Run does, persisting after every stage pass and
// every supervisor verdict so a concurrent reader can poll progress.
func (r *Runner) Start(ctx context.Context, uc domain.UserConfig) (*domain.GenerationRun, error) {
	state := domain.NewPipelineState(uc)
	run := domain.NewGenerationRun(uuid.NewString(), state)

	if r.runRepo != nil {
		if err := r.runRepo.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("create generation run: %w", err)
		}
	}

	_, err := r.run(ctx, run)
	return run, err
}

// Resume drives an already-created GenerationRun (one a caller built and
// persisted itself, e.g. to hand its id back before execution finishes) to
// completion. Used by internal/api to start a run asynchronously: the HTTP
// handler creates and persists the run, returns its id immediately, then
// calls Resume in a goroutine with a context detached from the request.
func (r *Runner) Resume(ctx context.Context, run *domain.GenerationRun) (*domain.GenerationRun, error) {
	return r.run(ctx, run)
}

// Run advances state from state.CurrentStage to completion, applying
// Supervisor verdicts after every pass through Formatter. It returns the
// final state with Status set, and an error only for a non-recoverable
// stage failure (exhausted agent retries, storage failure, and similar).
// Run does not persist; use Start for a tracked, resumable invocation.
func (r *Runner) Run(ctx context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	run := &domain.GenerationRun{State: state}
	_, err := r.run(ctx, run)
	return state, err
}

func (r *Runner) run(ctx context.Context, run *domain.GenerationRun) (*domain.GenerationRun, error) {
	state := run.State
	maxReruns := r.cfg.Pipeline.ValidatorMaxReruns
	if maxReruns <= 0 {
		maxReruns = 3
	}

	for {
		if err := r.executeFrom(ctx, state); err != nil {
			r.fail(ctx, run, err)
			return run, err
		}
		r.persist(ctx, run)

		verdict, err := r.supervisor.Evaluate(ctx, state)
		if err != nil {
			werr := fmt.Errorf("supervisor evaluation: %w", err)
			r.fail(ctx, run, werr)
			return run, werr
		}
		state.QualityScores = append(state.QualityScores, domain.QualityScoreEntry{
			OverallScore: verdict.OverallScore,
			Criteria:     verdict.Criteria,
			Outcome:      string(verdict.Outcome),
		})

		switch verdict.Outcome {
		case supervisor.OutcomeApprove:
			state.Status = domain.StatusApproved
			r.complete(ctx, run)
			return run, nil

		case supervisor.OutcomeSelfRepair:
			state.FinalPlan = verdict.RepairedPlan
			state.Status = domain.StatusApproved
			slog.Info("pipeline: supervisor self-repaired plan", "repairs", verdict.RepairsMade)
			r.complete(ctx, run)
			return run, nil

		case supervisor.OutcomeAgentRerun:
			if state.ValidatorRetryCount >= maxReruns {
				state.Status = domain.StatusApprovedWithWarnings
				slog.Warn("pipeline: exhausted supervisor reruns, returning best-available plan",
					"reruns", state.ValidatorRetryCount, "score", verdict.OverallScore)
				r.complete(ctx, run)
				return run, nil
			}
			state.ResetTo(verdict.ResponsibleAgent, verdict.TargetedFeedback)
			slog.Info("pipeline: supervisor rerun", "stage", verdict.ResponsibleAgent, "attempt", state.ValidatorRetryCount)
			r.persist(ctx, run)

		default:
			werr := fmt.Errorf("supervisor returned unknown outcome %q", verdict.Outcome)
			r.fail(ctx, run, werr)
			return run, werr
		}
	}
}

func (r *Runner) persist(ctx context.Context, run *domain.GenerationRun) {
	if r.runRepo == nil || run.ID == "" {
		return
	}
	run.SyncFromState()
	if err := r.runRepo.Update(ctx, run); err != nil {
		slog.Warn("pipeline: persist run failed", "run_id", run.ID, "err", err)
	}
}

func (r *Runner) complete(ctx context.Context, run *domain.GenerationRun) {
	now := time.Now()
	run.Status = domain.RunCompleted
	run.CompletedAt = &now
	r.persist(ctx, run)
	r.notify(ctx, fmt.Sprintf("generation run %s completed", run.ID))
}

func (r *Runner) fail(ctx context.Context, run *domain.GenerationRun, err error) {
	now := time.Now()
	run.Status = domain.RunFailed
	run.Error = err.Error()
	run.CompletedAt = &now
	r.persist(ctx, run)
	r.notify(ctx, fmt.Sprintf("generation run %s failed: %s", run.ID, err.Error()))
}

func (r *Runner) notify(ctx context.Context, message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, message); err != nil {
		slog.Warn("pipeline: notify failed", "err", err)
	}
}

// executeFrom runs every stage from state.CurrentStage through Formatter,
// in StageOrder. A stage resumed via ResetTo starts mid-sequence; every
// stage after it re-runs too, since each stage reads fields the prior
// ones wrote.
func (r *Runner) executeFrom(ctx context.Context, state *domain.PipelineState) error {
	startIdx := domain.StageIndex(state.CurrentStage)
	if startIdx < 0 {
		startIdx = 0
	}

	for i := startIdx; i < len(domain.StageOrder); i++ {
		stageName := domain.StageOrder[i]
		executor, ok := r.executors[stageName]
		if !ok {
			return fmt.Errorf("no executor registered for stage %s", stageName)
		}

		state.CurrentStage = stageName
		if err := executor.Execute(ctx, state); err != nil {
			state.Errors = append(state.Errors, domain.ErrorEntry{
				Stage:   stageName,
				Kind:    "execution",
				Message: err.Error(),
			})
			return fmt.Errorf("stage %s: %w", stageName, err)
		}
	}

	return nil
}
