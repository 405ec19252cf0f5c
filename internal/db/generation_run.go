package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soochol/actionplan/internal/domain"
)

// CreateGenerationRun inserts a new run record.
func (d *DB) CreateGenerationRun(ctx context.Context, r *domain.GenerationRun) error {
	userConfigJSON, err := json.Marshal(r.UserConfig)
	if err != nil {
		return fmt.Errorf("marshal user_config: %w", err)
	}
	stateJSON, err := json.Marshal(r.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO generation_runs (id, user_config, status, current_stage, validator_retry_count, state, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, userConfigJSON, string(r.Status), string(r.CurrentStage),
		r.ValidatorRetryCount, stateJSON, r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation_run: %w", err)
	}
	return nil
}

// GetGenerationRun retrieves a run record by id.
func (d *DB) GetGenerationRun(ctx context.Context, id string) (*domain.GenerationRun, error) {
	r := &domain.GenerationRun{ID: id}
	var status, currentStage string
	var userConfigJSON, stateJSON []byte

	err := d.Pool.QueryRowContext(ctx,
		`SELECT user_config, status, current_stage, validator_retry_count, state, started_at, completed_at
		 FROM generation_runs WHERE id = $1`, id,
	).Scan(&userConfigJSON, &status, &currentStage, &r.ValidatorRetryCount, &stateJSON, &r.StartedAt, &r.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("generation run %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get generation_run: %w", err)
	}

	r.Status = domain.RunStatus(status)
	r.CurrentStage = domain.StageName(currentStage)
	if err := json.Unmarshal(userConfigJSON, &r.UserConfig); err != nil {
		return nil, fmt.Errorf("unmarshal user_config: %w", err)
	}
	var state domain.PipelineState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	r.State = &state
	return r, nil
}

// UpdateGenerationRun overwrites the mutable fields of an existing run.
func (d *DB) UpdateGenerationRun(ctx context.Context, r *domain.GenerationRun) error {
	stateJSON, err := json.Marshal(r.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`UPDATE generation_runs SET status = $1, current_stage = $2, validator_retry_count = $3, state = $4, completed_at = $5
		 WHERE id = $6`,
		string(r.Status), string(r.CurrentStage), r.ValidatorRetryCount, stateJSON, r.CompletedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update generation_run: %w", err)
	}
	return nil
}

// ListGenerationRuns returns every run, most recently started first.
func (d *DB) ListGenerationRuns(ctx context.Context) ([]*domain.GenerationRun, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, user_config, status, current_stage, validator_retry_count, state, started_at, completed_at
		 FROM generation_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list generation_runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.GenerationRun
	for rows.Next() {
		r := &domain.GenerationRun{}
		var status, currentStage string
		var userConfigJSON, stateJSON []byte
		if err := rows.Scan(&r.ID, &userConfigJSON, &status, &currentStage, &r.ValidatorRetryCount, &stateJSON, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan generation_run: %w", err)
		}
		r.Status = domain.RunStatus(status)
		r.CurrentStage = domain.StageName(currentStage)
		_ = json.Unmarshal(userConfigJSON, &r.UserConfig)
		var state domain.PipelineState
		_ = json.Unmarshal(stateJSON, &state)
		r.State = &state
		out = append(out, r)
	}
	return out, rows.Err()
}
