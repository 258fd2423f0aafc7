package flat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

// embedderFake maps known texts onto fixed unit vectors so cosine ordering is
// predictable.
type embedderFake struct {
	vectors map[string][]float32
}

func newEmbedderFake() *embedderFake {
	return &embedderFake{vectors: map[string][]float32{
		"apples":  {1, 0, 0},
		"oranges": {0.9, 0.1, 0},
		"rockets": {0, 0, 1},
	}}
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vectorFor(text)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vectorFor(text), nil
}

func (f *embedderFake) vectorFor(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{0.5, 0.5, 0.5}
}

func chunk(docID string, index int, content string) domain.Chunk {
	return domain.Chunk{
		Content: content,
		Metadata: domain.ChunkMetadata{
			DocID:      docID,
			SourceFile: docID + ".txt",
			ChunkIndex: index,
			Page:       domain.PageUnknown,
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New("", 5)
	if err := s.Initialize(context.Background(), newEmbedderFake()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return s
}

func TestStoreSearchOrdersByCosine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids, err := s.Add(ctx, []domain.Chunk{
		chunk("fruit", 0, "oranges"),
		chunk("space", 0, "rockets"),
	}, "fruit")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 point ids, got %d", len(ids))
	}

	results, err := s.Search(ctx, "apples", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "oranges" {
		t.Fatalf("expected oranges first, got %q", results[0].Text)
	}
	if results[0].Score <= results[1].Score {
		t.Fatal("scores must be descending")
	}
}

func TestStoreSearchFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Add(ctx, []domain.Chunk{chunk("fruit", 0, "oranges")}, "fruit")
	_, _ = s.Add(ctx, []domain.Chunk{chunk("space", 0, "rockets")}, "space")

	results, err := s.SearchFiltered(ctx, "apples", 5, []string{"space"})
	if err != nil {
		t.Fatalf("SearchFiltered() error = %v", err)
	}
	if len(results) != 1 || results[0].DocID != "space" {
		t.Fatalf("expected only space chunks, got %+v", results)
	}

	empty, err := s.SearchFiltered(ctx, "apples", 5, []string{})
	if err != nil {
		t.Fatalf("SearchFiltered() error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatal("empty non-nil filter must match nothing")
	}
}

func TestStoreDeleteRemovesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Add(ctx, []domain.Chunk{chunk("a", 0, "apples"), chunk("a", 1, "oranges")}, "a")
	_, _ = s.Add(ctx, []domain.Chunk{chunk("b", 0, "rockets")}, "b")

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	all, _ := s.AllChunks(ctx)
	if len(all) != 1 || all[0].Metadata.DocID != "b" {
		t.Fatalf("expected only doc b, got %+v", all)
	}
}

func TestStoreUpdateMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Add(ctx, []domain.Chunk{chunk("a", 0, "apples")}, "a")
	_, _ = s.Add(ctx, []domain.Chunk{chunk("b", 0, "rockets")}, "b")

	err := s.UpdateMetadata(ctx, "a", map[string]string{"collections_csv": "legal-compliance"})
	if err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}

	all, _ := s.AllChunks(ctx)
	for _, c := range all {
		switch c.Metadata.DocID {
		case "a":
			if c.Metadata.CollectionsCSV != "legal-compliance" {
				t.Fatalf("metadata not updated: %+v", c.Metadata)
			}
		case "b":
			if c.Metadata.CollectionsCSV != "" {
				t.Fatalf("unrelated document touched: %+v", c.Metadata)
			}
		}
	}
}

func TestStorePersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.idx")
	ctx := context.Background()

	s := New(path, 5)
	if err := s.Initialize(ctx, newEmbedderFake()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	_, _ = s.Add(ctx, []domain.Chunk{chunk("a", 0, "oranges")}, "a")
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	reloaded := New(path, 5)
	if err := reloaded.Initialize(ctx, newEmbedderFake()); err != nil {
		t.Fatalf("Initialize() after reload error = %v", err)
	}

	results, err := reloaded.Search(ctx, "apples", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Text != "oranges" {
		t.Fatalf("snapshot roundtrip lost data: %+v", results)
	}
}

func TestStoreRequiresInitialize(t *testing.T) {
	s := New("", 5)

	if _, err := s.Add(context.Background(), []domain.Chunk{chunk("a", 0, "x")}, "a"); err == nil {
		t.Fatal("Add before Initialize must fail")
	}
	if _, err := s.Search(context.Background(), "q", 3); err == nil {
		t.Fatal("Search before Initialize must fail")
	}
}
