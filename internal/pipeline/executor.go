// Package pipeline implements C7: the ten-stage state machine that
// advances a domain.PipelineState from a user request to a final markdown
// action plan, with Supervisor-driven reruns to any prior stage.
package pipeline

import (
	"context"

	"github.com/soochol/actionplan/internal/domain"
)

// StageExecutor runs one named stage, reading and writing only the fields
// the stage's contract names (§4.7); every other field passes through
// state unchanged because Execute receives and mutates the same object.
type StageExecutor interface {
	Name() domain.StageName
	Execute(ctx context.Context, state *domain.PipelineState) error
}
