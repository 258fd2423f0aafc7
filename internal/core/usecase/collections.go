package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

const reclassifySampleChunks = 3

// Delete removes a document and every trace of it: index chunks, the raw
// file, and the registry row. Ownership is enforced by reporting not-found
// for another user's documents.
func (uc *DocumentUseCase) Delete(ctx context.Context, userID, docID string) error {
	doc, err := uc.registry.Get(ctx, docID)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		return domain.WrapError(domain.ErrNotFound, "delete document", fmt.Errorf("document %s", docID))
	}

	if err := uc.vector.Delete(ctx, docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.vector.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	if err := uc.storage.Remove(ctx, docID+"."+doc.FileType); err != nil {
		return fmt.Errorf("remove raw file: %w", err)
	}
	if err := uc.registry.Remove(ctx, docID); err != nil {
		return err
	}

	uc.logger.Info("document_deleted", "doc_id", docID, "user_id", userID)
	return nil
}

// UpdateCollections replaces a document's labels in the registry and patches
// the informational copy carried on its chunks.
func (uc *DocumentUseCase) UpdateCollections(ctx context.Context, docID string, collections []string) error {
	normalized := NormalizeCollections(collections)
	if len(normalized) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "update collections",
			fmt.Errorf("no valid collection labels"))
	}

	if err := uc.registry.UpdateCollections(ctx, docID, normalized); err != nil {
		return err
	}
	updates := map[string]string{"collections_csv": strings.Join(normalized, collectionsDelimiter)}
	if err := uc.vector.UpdateMetadata(ctx, docID, updates); err != nil {
		return fmt.Errorf("update chunk metadata: %w", err)
	}
	if err := uc.vector.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// Reclassify re-runs collection suggestion over the document's indexed text
// and applies the result. Used by the worker when a request arrives on the
// queue.
func (uc *DocumentUseCase) Reclassify(ctx context.Context, docID string) ([]string, error) {
	doc, err := uc.registry.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	sample, err := uc.documentSample(ctx, docID)
	if err != nil {
		return nil, err
	}
	if sample == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reclassify document",
			fmt.Errorf("document %s has no indexed text", docID))
	}

	labels := uc.suggester.SuggestCollections(ctx, doc.Filename, sample)
	if err := uc.UpdateCollections(ctx, docID, labels); err != nil {
		return nil, err
	}

	uc.logger.Info("document_reclassified",
		"doc_id", docID,
		"collections", strings.Join(labels, ","),
	)
	return labels, nil
}

// EnqueueReclassify validates the document and hands the actual work to the
// queue for the worker to pick up.
func (uc *DocumentUseCase) EnqueueReclassify(ctx context.Context, docID string) error {
	if _, err := uc.registry.Get(ctx, docID); err != nil {
		return err
	}
	if err := uc.queue.PublishReclassify(ctx, docID); err != nil {
		return fmt.Errorf("enqueue reclassify: %w", err)
	}
	return nil
}

func (uc *DocumentUseCase) documentSample(ctx context.Context, docID string) (string, error) {
	corpus, err := uc.vector.AllChunks(ctx)
	if err != nil {
		return "", fmt.Errorf("load chunks: %w", err)
	}

	var own []domain.Chunk
	for _, chunk := range corpus {
		if chunk.Metadata.DocID == docID {
			own = append(own, chunk)
		}
	}
	sort.Slice(own, func(i, j int) bool {
		return own[i].Metadata.ChunkIndex < own[j].Metadata.ChunkIndex
	})
	if len(own) > reclassifySampleChunks {
		own = own[:reclassifySampleChunks]
	}

	parts := make([]string, len(own))
	for i, chunk := range own {
		parts[i] = chunk.Content
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}
