// Package repository persists GenerationRun records: a generation's full
// stage history, retries, and supervisor reroutes, queryable after the
// pipeline has finished or while it is still running.
package repository

import (
	"context"

	"github.com/soochol/actionplan/internal/domain"
)

// GenerationRunRepository stores and retrieves GenerationRun records.
type GenerationRunRepository interface {
	Create(ctx context.Context, run *domain.GenerationRun) error
	Get(ctx context.Context, id string) (*domain.GenerationRun, error)
	List(ctx context.Context) ([]*domain.GenerationRun, error)
	Update(ctx context.Context, run *domain.GenerationRun) error
}
