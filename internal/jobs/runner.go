package jobs

import (
	"context"

	"github.com/kalambet/billmatch/internal/correct"
	"github.com/kalambet/billmatch/internal/pipeline"
)

// Service runs jobs against a corrector and an orchestrator sharing one store.
type Service struct {
	Corrector    *correct.Corrector
	Orchestrator *pipeline.Orchestrator
}

// PostProcess runs the given correction steps in order, or the full pipeline
// when steps is empty.
func (s *Service) PostProcess(ctx context.Context, runID int64, steps []string) error {
	if len(steps) == 0 {
		_, err := s.Corrector.Run(ctx, runID)
		return err
	}
	for _, step := range steps {
		if _, err := s.Corrector.RunStep(ctx, runID, step); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) MatchOnly(ctx context.Context, parentRunID int64) (int64, error) {
	run, err := s.Orchestrator.MatchOnly(ctx, parentRunID)
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}
