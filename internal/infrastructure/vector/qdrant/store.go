// Package qdrant implements the chunk index on a Qdrant server over its REST
// API. Payload carries the chunk text alongside its metadata so the corpus can
// be reconstructed without a second store.
package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/resilience"
)

const scrollPageSize = 256

type Store struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	mu       sync.Mutex
	embedder ports.Embedder
	ready    bool
}

func New(baseURL, collection string, executor *resilience.Executor) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

// Initialize records the embedder. The collection itself is created lazily on
// the first Add, once the embedding dimension is known.
func (s *Store) Initialize(_ context.Context, embedder ports.Embedder) error {
	if embedder == nil {
		return fmt.Errorf("qdrant: embedder is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedder = embedder
	return nil
}

func (s *Store) Add(ctx context.Context, chunks []domain.Chunk, docID string) ([]string, error) {
	embedder, err := s.requireEmbedder()
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("qdrant add: embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("qdrant add: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	ids := make([]string, len(chunks))
	points := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.NewString()
		points[i] = map[string]any{
			"id":     ids[i],
			"vector": vectors[i],
			"payload": map[string]any{
				"text":            chunk.Content,
				"doc_id":          docID,
				"source_file":     chunk.Metadata.SourceFile,
				"chunk_index":     chunk.Metadata.ChunkIndex,
				"collections_csv": chunk.Metadata.CollectionsCSV,
				"page":            chunk.Metadata.Page,
			},
		}
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	if err := s.call(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert"); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) Delete(ctx context.Context, docID string) error {
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection)
	request := map[string]any{
		"filter": docFilter([]string{docID}),
	}
	err := s.call(ctx, http.MethodPost, path, request, nil, "delete")
	if isNotFoundStatus(err) {
		return nil
	}
	return err
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	return s.search(ctx, query, k, nil)
}

// SearchFiltered pushes the document filter down to the server. A nil filter
// means unrestricted; an empty non-nil filter matches nothing.
func (s *Store) SearchFiltered(ctx context.Context, query string, k int, docIDs []string) ([]domain.RetrievedChunk, error) {
	if docIDs != nil && len(docIDs) == 0 {
		return nil, nil
	}
	return s.search(ctx, query, k, docIDs)
}

func (s *Store) search(ctx context.Context, query string, k int, docIDs []string) ([]domain.RetrievedChunk, error) {
	embedder, err := s.requireEmbedder()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: embed query: %w", err)
	}

	request := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if docIDs != nil {
		request["filter"] = docFilter(docIDs)
	}

	var response struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	err = s.call(ctx, http.MethodPost, path, request, &response, "search")
	if isNotFoundStatus(err) {
		// Collection does not exist yet, nothing has been indexed.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(response.Result))
	for _, point := range response.Result {
		out = append(out, point.toRetrieved())
	}
	return out, nil
}

// AllChunks pages through the whole collection with the scroll API.
func (s *Store) AllChunks(ctx context.Context) ([]domain.Chunk, error) {
	var out []domain.Chunk
	var offset any

	for {
		request := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
		}
		if offset != nil {
			request["offset"] = offset
		}

		var response struct {
			Result struct {
				Points         []scoredPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/scroll", s.collection)
		err := s.call(ctx, http.MethodPost, path, request, &response, "scroll")
		if isNotFoundStatus(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		for _, point := range response.Result.Points {
			out = append(out, point.toChunk())
		}
		if response.Result.NextPageOffset == nil {
			return out, nil
		}
		offset = response.Result.NextPageOffset
	}
}

// UpdateMetadata patches payload fields on every point of a document in one
// server-side call.
func (s *Store) UpdateMetadata(ctx context.Context, docID string, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	payload := make(map[string]any, len(updates))
	for key, value := range updates {
		payload[key] = value
	}

	path := fmt.Sprintf("/collections/%s/points/payload?wait=true", s.collection)
	request := map[string]any{
		"payload": payload,
		"filter":  docFilter([]string{docID}),
	}
	err := s.call(ctx, http.MethodPost, path, request, nil, "set_payload")
	if isNotFoundStatus(err) {
		return nil
	}
	return err
}

// Persist is a no-op: Qdrant durably stores points on write.
func (s *Store) Persist(context.Context) error { return nil }

func (s *Store) requireEmbedder() (ports.Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder == nil {
		return nil, fmt.Errorf("qdrant: store not initialized")
	}
	return s.embedder, nil
}

func (s *Store) ensureCollection(ctx context.Context, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	path := "/collections/" + s.collection
	err := s.call(ctx, http.MethodGet, path, nil, nil, "collection_info")
	if err == nil {
		s.ready = true
		return nil
	}
	if !isNotFoundStatus(err) {
		return err
	}

	request := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if err := s.call(ctx, http.MethodPut, path, request, nil, "create_collection"); err != nil {
		return err
	}
	s.ready = true
	return nil
}

func docFilter(docIDs []string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "doc_id",
				"match": map[string]any{"any": docIDs},
			},
		},
	}
}

type scoredPoint struct {
	Score   float64 `json:"score"`
	Payload struct {
		Text           string `json:"text"`
		DocID          string `json:"doc_id"`
		SourceFile     string `json:"source_file"`
		ChunkIndex     int    `json:"chunk_index"`
		CollectionsCSV string `json:"collections_csv"`
		Page           int    `json:"page"`
	} `json:"payload"`
}

func (p scoredPoint) toRetrieved() domain.RetrievedChunk {
	return domain.RetrievedChunk{
		DocID:      p.Payload.DocID,
		SourceFile: p.Payload.SourceFile,
		ChunkIndex: p.Payload.ChunkIndex,
		Page:       p.Payload.Page,
		Text:       p.Payload.Text,
		Score:      p.Score,
	}
}

func (p scoredPoint) toChunk() domain.Chunk {
	return domain.Chunk{
		Content: p.Payload.Text,
		Metadata: domain.ChunkMetadata{
			DocID:          p.Payload.DocID,
			SourceFile:     p.Payload.SourceFile,
			ChunkIndex:     p.Payload.ChunkIndex,
			CollectionsCSV: p.Payload.CollectionsCSV,
			Page:           p.Payload.Page,
		},
	}
}
