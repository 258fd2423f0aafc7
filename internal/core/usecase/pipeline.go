package usecase

import (
	"context"
	"fmt"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

// retrievalState is threaded through the pipeline stages. Each producing
// stage deposits its list under its own name; consuming stages read their
// inputs by name and write the merged result to final.
type retrievalState struct {
	question string
	topK     int
	fetchK   int
	filter   domain.SearchFilter

	lists map[string][]domain.RetrievedChunk
	final []domain.RetrievedChunk
}

type retrievalStage struct {
	name string
	run  func(ctx context.Context, state *retrievalState) error
}

func runPipeline(ctx context.Context, stages []retrievalStage, state *retrievalState) error {
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stage.run(ctx, state); err != nil {
			return fmt.Errorf("retrieval stage %s: %w", stage.name, err)
		}
	}
	return nil
}
