package ports

import (
	"context"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

// QueryService is the inbound contract for answering questions over the
// indexed corpus.
type QueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
}

// UploadResult reports a completed document ingestion.
type UploadResult struct {
	Document             *domain.Document
	SuggestedCollections []string
}

// DocumentService is the inbound contract for document lifecycle operations.
type DocumentService interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*UploadResult, error)
	Delete(ctx context.Context, userID, docID string) error
	UpdateCollections(ctx context.Context, docID string, collections []string) error
	Reclassify(ctx context.Context, docID string) ([]string, error)
	EnqueueReclassify(ctx context.Context, docID string) error
}
