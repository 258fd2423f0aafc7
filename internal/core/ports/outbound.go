package ports

import (
	"context"
	"io"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

// DocumentRegistry persists document metadata and the document/collection
// relation. The registry chunk count must track the chunk store; callers
// mutate both sides and surface any divergence as an error.
type DocumentRegistry interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, docID string) (*domain.Document, error)
	Remove(ctx context.Context, docID string) error
	ListAll(ctx context.Context, userID string) ([]domain.Document, error)
	ListByCollection(ctx context.Context, collection, userID string) ([]domain.Document, error)
	UpdateCollections(ctx context.Context, docID string, collections []string) error
	AllCollections(ctx context.Context, userID string) ([]string, error)
	FindByHash(ctx context.Context, userID, fileHash string) (*domain.Document, error)
}

// UserRegistry persists user records.
type UserRegistry interface {
	EnsureExists(ctx context.Context, userID, displayName string) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	ListAll(ctx context.Context) ([]domain.User, error)
}

// SessionStore holds bounded, expiring chat session histories. History
// returns a defensive copy; both methods sweep expired sessions first.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
	AddExchange(ctx context.Context, sessionID, question, answer string) error
}

// Embedder builds vectors for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the chunk index capability set. Search operations on an
// empty store return empty results; any call before Initialize is a contract
// violation and errors.
type VectorStore interface {
	Initialize(ctx context.Context, embedder Embedder) error
	Add(ctx context.Context, chunks []domain.Chunk, docID string) ([]string, error)
	Delete(ctx context.Context, docID string) error
	Search(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error)
	SearchFiltered(ctx context.Context, query string, k int, docIDs []string) ([]domain.RetrievedChunk, error)
	AllChunks(ctx context.Context) ([]domain.Chunk, error)
	UpdateMetadata(ctx context.Context, docID string, updates map[string]string) error
	Persist(ctx context.Context) error
}

// Generator creates chat-model completions. Chat sends an explicit message
// sequence (system, history, question); Generate sends a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, system string, history []domain.Message, question string) (string, error)
}

// Chunker splits extracted text into retrieval units.
type Chunker interface {
	Split(text string) []string
}

// ExtractedSegment is a page-scoped span of extracted text. Page is
// domain.PageUnknown for formats without page structure.
type ExtractedSegment struct {
	Text string
	Page int
}

// TextExtractor converts raw uploaded bytes into text segments.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]ExtractedSegment, error)
}

// ObjectStorage stores the raw uploaded files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// ReclassifyQueue carries asynchronous reclassification requests.
type ReclassifyQueue interface {
	PublishReclassify(ctx context.Context, docID string) error
	SubscribeReclassify(ctx context.Context, handler func(context.Context, string) error) error
}
