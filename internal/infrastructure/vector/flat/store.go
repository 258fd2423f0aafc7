// Package flat implements the chunk index as an in-process brute-force cosine
// scan with a gob snapshot on disk. It exists for single-node deployments and
// tests where running a vector database is not worth the setup.
package flat

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
)

const defaultOverfetchFactor = 5

type record struct {
	ID     string
	Vector []float32
	Norm   float64
	Chunk  domain.Chunk
}

type Store struct {
	path            string
	overfetchFactor int

	mu       sync.RWMutex
	embedder ports.Embedder
	records  []record
}

// New creates a store snapshotting to path. An empty path keeps the index
// memory-only.
func New(path string, overfetchFactor int) *Store {
	if overfetchFactor <= 0 {
		overfetchFactor = defaultOverfetchFactor
	}
	return &Store{path: path, overfetchFactor: overfetchFactor}
}

// Initialize records the embedder and loads the snapshot if one exists.
func (s *Store) Initialize(_ context.Context, embedder ports.Embedder) error {
	if embedder == nil {
		return fmt.Errorf("flat: embedder is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedder = embedder

	if s.path == "" {
		return nil
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("flat: open snapshot: %w", err)
	}
	defer f.Close()

	var records []record
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return fmt.Errorf("flat: decode snapshot: %w", err)
	}
	s.records = records
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
		return nil, fmt.Errorf("flat add: embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("flat add: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	added := make([]record, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.NewString()
		chunk.Metadata.DocID = docID
		added[i] = record{
			ID:     ids[i],
			Vector: vectors[i],
			Norm:   vectorNorm(vectors[i]),
			Chunk:  chunk,
		}
	}

	s.mu.Lock()
	s.records = append(s.records, added...)
	s.mu.Unlock()
	return ids, nil
}

func (s *Store) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Chunk.Metadata.DocID != docID {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	return s.search(ctx, query, k, nil)
}

// SearchFiltered over-fetches an unfiltered top list and drops chunks outside
// the allowed documents, since the scan has no server-side predicate to push
// the filter into.
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
		return nil, fmt.Errorf("flat search: embed query: %w", err)
	}
	queryNorm := vectorNorm(vector)

	fetch := k
	var allowed map[string]struct{}
	if docIDs != nil {
		fetch = k * s.overfetchFactor
		allowed = make(map[string]struct{}, len(docIDs))
		for _, id := range docIDs {
			allowed[id] = struct{}{}
		}
	}

	s.mu.RLock()
	scored := make([]domain.RetrievedChunk, 0, len(s.records))
	for _, rec := range s.records {
		scored = append(scored, domain.RetrievedChunk{
			DocID:      rec.Chunk.Metadata.DocID,
			SourceFile: rec.Chunk.Metadata.SourceFile,
			ChunkIndex: rec.Chunk.Metadata.ChunkIndex,
			Page:       rec.Chunk.Metadata.Page,
			Text:       rec.Chunk.Content,
			Score:      cosine(vector, queryNorm, rec.Vector, rec.Norm),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > fetch {
		scored = scored[:fetch]
	}

	if allowed == nil {
		return scored, nil
	}
	out := make([]domain.RetrievedChunk, 0, k)
	for _, chunk := range scored {
		if _, ok := allowed[chunk.DocID]; !ok {
			continue
		}
		out = append(out, chunk)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *Store) AllChunks(context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Chunk
	}
	return out, nil
}

// UpdateMetadata rewrites the metadata of every chunk of a document. Only
// collections_csv and source_file are patchable; other keys are ignored.
func (s *Store) UpdateMetadata(_ context.Context, docID string, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Chunk.Metadata.DocID != docID {
			continue
		}
		if csv, ok := updates["collections_csv"]; ok {
			s.records[i].Chunk.Metadata.CollectionsCSV = csv
		}
		if source, ok := updates["source_file"]; ok {
			s.records[i].Chunk.Metadata.SourceFile = source
		}
	}
	return nil
}

// Persist writes the snapshot atomically via a temp file rename.
func (s *Store) Persist(context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	records := make([]record, len(s.records))
	copy(records, s.records)
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("flat persist: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".flat-*")
	if err != nil {
		return fmt.Errorf("flat persist: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(records); err != nil {
		tmp.Close()
		return fmt.Errorf("flat persist: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flat persist: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("flat persist: %w", err)
	}
	return nil
}

func (s *Store) requireEmbedder() (ports.Embedder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.embedder == nil {
		return nil, fmt.Errorf("flat: store not initialized")
	}
	return s.embedder, nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(query []float32, queryNorm float64, other []float32, otherNorm float64) float64 {
	if len(query) != len(other) || queryNorm == 0 || otherNorm == 0 {
		return 0
	}
	var dot float64
	for i := range query {
		dot += float64(query[i]) * float64(other[i])
	}
	return dot / (queryNorm * otherNorm)
}
