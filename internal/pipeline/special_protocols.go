package pipeline

import (
	"context"

	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/special"
)

// SpecialProtocolsStage wraps C9's Injector as a pipeline stage: expands
// the user-selected bypass ids into full subtrees, a no-op when none were
// requested.
type SpecialProtocolsStage struct {
	injector *special.Injector
}

func NewSpecialProtocolsStage(injector *special.Injector) *SpecialProtocolsStage {
	return &SpecialProtocolsStage{injector: injector}
}

func (s *SpecialProtocolsStage) Name() domain.StageName { return domain.StageSpecialProtocols }

func (s *SpecialProtocolsStage) Execute(ctx context.Context, state *domain.PipelineState) error {
	nodes, err := s.injector.Inject(ctx, state.SpecialProtocolsNodeIDs)
	if err != nil {
		return err
	}
	state.SpecialProtocolsNodes = nodes
	return nil
}
