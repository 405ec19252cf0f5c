package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/memstore"
)

// MemoryGenerationRunRepository implements GenerationRunRepository in-memory.
type MemoryGenerationRunRepository struct {
	store *memstore.Store[*domain.GenerationRun]
}

func NewMemoryGenerationRunRepository() *MemoryGenerationRunRepository {
	return &MemoryGenerationRunRepository{
		store: memstore.New(func(r *domain.GenerationRun) string { return r.ID }),
	}
}

func (r *MemoryGenerationRunRepository) Create(ctx context.Context, run *domain.GenerationRun) error {
	return r.store.Set(ctx, run)
}

func (r *MemoryGenerationRunRepository) Get(ctx context.Context, id string) (*domain.GenerationRun, error) {
	run, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("generation run %q not found", id)
	}
	return run, err
}

func (r *MemoryGenerationRunRepository) List(ctx context.Context) ([]*domain.GenerationRun, error) {
	runs, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

func (r *MemoryGenerationRunRepository) Update(ctx context.Context, run *domain.GenerationRun) error {
	if !r.store.Has(ctx, run.ID) {
		return fmt.Errorf("generation run %q not found", run.ID)
	}
	return r.store.Set(ctx, run)
}
