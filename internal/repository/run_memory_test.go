package repository

import (
	"context"
	"testing"
	"time"

	"github.com/soochol/actionplan/internal/domain"
)

func TestMemoryGenerationRunRepo_CRUD(t *testing.T) {
	repo := NewMemoryGenerationRunRepository()
	ctx := context.Background()

	run := &domain.GenerationRun{
		ID:         "run-test1",
		UserConfig: domain.UserConfig{Name: "Flood response"},
		Status:     domain.RunRunning,
		State:      domain.NewPipelineState(domain.UserConfig{Name: "Flood response"}),
		StartedAt:  time.Now(),
	}

	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.Get(ctx, "run-test1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.RunRunning {
		t.Errorf("expected status %q, got %q", domain.RunRunning, got.Status)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 run, got %d", len(list))
	}

	run.Status = domain.RunCompleted
	if err := repo.Update(ctx, run); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = repo.Get(ctx, "run-test1")
	if got.Status != domain.RunCompleted {
		t.Errorf("expected updated status, got %q", got.Status)
	}
}

func TestMemoryGenerationRunRepo_UpdateMissing(t *testing.T) {
	repo := NewMemoryGenerationRunRepository()
	ctx := context.Background()

	run := &domain.GenerationRun{ID: "run-missing", State: domain.NewPipelineState(domain.UserConfig{})}
	if err := repo.Update(ctx, run); err == nil {
		t.Error("expected error updating a run that was never created")
	}
}

func TestMemoryGenerationRunRepo_GetMissing(t *testing.T) {
	repo := NewMemoryGenerationRunRepository()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "nope"); err == nil {
		t.Error("expected error fetching an unknown run id")
	}
}
