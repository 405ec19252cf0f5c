package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soochol/actionplan/internal/domain"
)

// GenerationRunDB defines the DB-layer methods needed by the persistent
// repository. *db.DB satisfies this interface.
type GenerationRunDB interface {
	CreateGenerationRun(ctx context.Context, r *domain.GenerationRun) error
	GetGenerationRun(ctx context.Context, id string) (*domain.GenerationRun, error)
	ListGenerationRuns(ctx context.Context) ([]*domain.GenerationRun, error)
	UpdateGenerationRun(ctx context.Context, r *domain.GenerationRun) error
}

// PersistentGenerationRunRepository wraps MemoryGenerationRunRepository with
// a PostgreSQL backend. Writes go to both; reads try memory first and fall
// back to the database on miss, caching the result back into memory.
type PersistentGenerationRunRepository struct {
	mem *MemoryGenerationRunRepository
	db  GenerationRunDB
}

func NewPersistentGenerationRunRepository(mem *MemoryGenerationRunRepository, db GenerationRunDB) *PersistentGenerationRunRepository {
	return &PersistentGenerationRunRepository{mem: mem, db: db}
}

func (r *PersistentGenerationRunRepository) Create(ctx context.Context, run *domain.GenerationRun) error {
	_ = r.mem.Create(ctx, run)
	if err := r.db.CreateGenerationRun(ctx, run); err != nil {
		return fmt.Errorf("db create generation_run: %w", err)
	}
	return nil
}

func (r *PersistentGenerationRunRepository) Get(ctx context.Context, id string) (*domain.GenerationRun, error) {
	if run, err := r.mem.Get(ctx, id); err == nil {
		return run, nil
	}
	run, err := r.db.GetGenerationRun(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = r.mem.Create(ctx, run)
	return run, nil
}

func (r *PersistentGenerationRunRepository) List(ctx context.Context) ([]*domain.GenerationRun, error) {
	runs, err := r.db.ListGenerationRuns(ctx)
	if err == nil {
		return runs, nil
	}
	slog.Warn("db list generation_runs failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx)
}

func (r *PersistentGenerationRunRepository) Update(ctx context.Context, run *domain.GenerationRun) error {
	_ = r.mem.Update(ctx, run)
	if err := r.db.UpdateGenerationRun(ctx, run); err != nil {
		return fmt.Errorf("db update generation_run: %w", err)
	}
	return nil
}
