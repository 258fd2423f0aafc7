package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/taxonomy"
)

const collectionsDelimiter = "|"

type DocumentUseCase struct {
	registry  ports.DocumentRegistry
	users     ports.UserRegistry
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	vector    ports.VectorStore
	suggester *Suggester
	queue     ports.ReclassifyQueue
	logger    *slog.Logger

	maxUploadBytes int64
}

func NewDocumentUseCase(
	registry ports.DocumentRegistry,
	users ports.UserRegistry,
	storage ports.ObjectStorage,
	textExtractor ports.TextExtractor,
	chunker ports.Chunker,
	vector ports.VectorStore,
	suggester *Suggester,
	queue ports.ReclassifyQueue,
	maxUploadMB int,
	logger *slog.Logger,
) *DocumentUseCase {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &DocumentUseCase{
		registry:       registry,
		users:          users,
		storage:        storage,
		extractor:      textExtractor,
		chunker:        chunker,
		vector:         vector,
		suggester:      suggester,
		queue:          queue,
		logger:         logger,
		maxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
	}
}

func (uc *DocumentUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*ports.UploadResult, error) {
	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("filename is empty"))
	}
	if len(req.Content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file is empty"))
	}
	if int64(len(req.Content)) > uc.maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("file exceeds %d MB limit", uc.maxUploadBytes/(1024*1024)))
	}

	if err := uc.users.EnsureExists(ctx, req.UserID, req.UserID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	sum := sha256.Sum256(req.Content)
	fileHash := hex.EncodeToString(sum[:])
	if existing, err := uc.registry.FindByHash(ctx, req.UserID, fileHash); err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	} else if existing != nil {
		return nil, domain.WrapError(domain.ErrConflict, "upload document",
			fmt.Errorf("identical content already uploaded as %s (%s)", existing.ID, existing.Filename))
	}

	segments, err := uc.extractor.Extract(ctx, filename, req.Content)
	if err != nil {
		return nil, err
	}

	var fullText strings.Builder
	for _, segment := range segments {
		if fullText.Len() > 0 {
			fullText.WriteString("\n\n")
		}
		fullText.WriteString(segment.Text)
	}
	if strings.TrimSpace(fullText.String()) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("%s contains no extractable text", filename))
	}

	collections, suggested := uc.resolveCollections(ctx, req, filename, fullText.String())

	docID := newDocID()
	chunks := uc.buildChunks(segments, docID, filename, collections)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("%s produced no chunks", filename))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if err := uc.storage.Save(ctx, docID+ext, bytes.NewReader(req.Content)); err != nil {
		return nil, fmt.Errorf("store raw file: %w", err)
	}

	// Delete before add keeps re-uploads under a recycled ID idempotent.
	if err := uc.vector.Delete(ctx, docID); err != nil {
		return nil, fmt.Errorf("clear previous chunks: %w", err)
	}
	if _, err := uc.vector.Add(ctx, chunks, docID); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	if err := uc.vector.Persist(ctx); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	doc := &domain.Document{
		ID:          docID,
		Filename:    filename,
		FileType:    strings.TrimPrefix(ext, "."),
		ChunkCount:  len(chunks),
		Collections: collections,
		UserID:      req.UserID,
		FileHash:    fileHash,
		UploadedAt:  time.Now().UTC(),
	}
	if err := uc.registry.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}

	uc.logger.Info("document_uploaded",
		"doc_id", docID,
		"filename", filename,
		"user_id", req.UserID,
		"chunks", len(chunks),
		"collections", strings.Join(collections, ","),
	)

	result := &ports.UploadResult{Document: doc}
	if suggested {
		result.SuggestedCollections = collections
	}
	return result, nil
}

func (uc *DocumentUseCase) resolveCollections(
	ctx context.Context,
	req domain.UploadRequest,
	filename, text string,
) (labels []string, suggested bool) {
	if normalized := NormalizeCollections(req.Collections); len(normalized) > 0 {
		return normalized, false
	}
	if req.AutoSuggest {
		return uc.suggester.SuggestCollections(ctx, filename, text), true
	}
	return []string{taxonomy.DefaultCollection}, false
}

func (uc *DocumentUseCase) buildChunks(
	segments []ports.ExtractedSegment,
	docID, filename string,
	collections []string,
) []domain.Chunk {
	csv := strings.Join(collections, collectionsDelimiter)

	var out []domain.Chunk
	index := 0
	for _, segment := range segments {
		for _, piece := range uc.chunker.Split(segment.Text) {
			out = append(out, domain.Chunk{
				Content: piece,
				Metadata: domain.ChunkMetadata{
					DocID:          docID,
					SourceFile:     filename,
					ChunkIndex:     index,
					CollectionsCSV: csv,
					Page:           segment.Page,
				},
			})
			index++
		}
	}
	return out
}

// newDocID is a 12 hex character identifier, short enough for URLs while
// collision-safe at this corpus scale.
func newDocID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:12]
}
