package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

type embedderFake struct{}

func (embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func newInitializedStore(t *testing.T, serverURL string) *Store {
	t.Helper()
	s := New(serverURL, "chunks", nil)
	if err := s.Initialize(context.Background(), embedderFake{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return s
}

func TestSearchMissingCollectionReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	s := newInitializedStore(t, server.URL)
	results, err := s.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestSearchFilteredEmptyFilterSkipsServer(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	s := newInitializedStore(t, server.URL)
	results, err := s.SearchFiltered(context.Background(), "q", 5, []string{})
	if err != nil {
		t.Fatalf("SearchFiltered() error = %v", err)
	}
	if results != nil || called {
		t.Fatal("empty non-nil filter must return without calling the server")
	}
}

func TestSearchFilteredSendsDocFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":[{"score":0.9,"payload":{"text":"hit","doc_id":"d1","source_file":"a.txt","chunk_index":0,"page":-1}}]}`))
	}))
	defer server.Close()

	s := newInitializedStore(t, server.URL)
	results, err := s.SearchFiltered(context.Background(), "q", 5, []string{"d1", "d2"})
	if err != nil {
		t.Fatalf("SearchFiltered() error = %v", err)
	}

	if len(results) != 1 || results[0].DocID != "d1" || results[0].Text != "hit" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Page != domain.PageUnknown {
		t.Fatalf("expected page passthrough, got %d", results[0].Page)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("request carried no filter: %v", captured)
	}
	must := filter["must"].([]any)[0].(map[string]any)
	if must["key"] != "doc_id" {
		t.Fatalf("filter must target doc_id, got %v", must)
	}
	anyIDs := must["match"].(map[string]any)["any"].([]any)
	if len(anyIDs) != 2 || anyIDs[0] != "d1" {
		t.Fatalf("unexpected filter ids: %v", anyIDs)
	}
}

func TestAddCreatesCollectionAndUpserts(t *testing.T) {
	var upserted map[string]any
	createdCollection := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/chunks":
			http.Error(w, `{}`, http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			createdCollection = true
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			_ = json.NewDecoder(r.Body).Decode(&upserted)
			_, _ = w.Write([]byte(`{"result":{}}`))
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	s := newInitializedStore(t, server.URL)
	chunks := []domain.Chunk{{
		Content: "body",
		Metadata: domain.ChunkMetadata{
			DocID:          "d1",
			SourceFile:     "a.txt",
			ChunkIndex:     0,
			CollectionsCSV: "other",
			Page:           domain.PageUnknown,
		},
	}}

	ids, err := s.Add(context.Background(), chunks, "d1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 point id, got %d", len(ids))
	}
	if !createdCollection {
		t.Fatal("missing collection must be created before upsert")
	}

	points := upserted["points"].([]any)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	if payload["doc_id"] != "d1" || payload["text"] != "body" || payload["collections_csv"] != "other" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestAllChunksFollowsScrollPagination(t *testing.T) {
	page := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/scroll" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		page++
		if page == 1 {
			_, _ = w.Write([]byte(`{"result":{"points":[{"payload":{"text":"one","doc_id":"d1","chunk_index":0,"page":-1}}],"next_page_offset":"cursor-1"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"payload":{"text":"two","doc_id":"d1","chunk_index":1,"page":-1}}],"next_page_offset":null}}`))
	}))
	defer server.Close()

	s := newInitializedStore(t, server.URL)
	chunks, err := s.AllChunks(context.Background())
	if err != nil {
		t.Fatalf("AllChunks() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks across pages, got %d", len(chunks))
	}
	if chunks[0].Content != "one" || chunks[1].Content != "two" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if page != 2 {
		t.Fatalf("expected 2 scroll calls, got %d", page)
	}
}

func TestUpdateMetadataSetsPayloadByFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/payload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	s := newInitializedStore(t, server.URL)
	err := s.UpdateMetadata(context.Background(), "d1", map[string]string{"collections_csv": "hr-personal"})
	if err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}

	payload := captured["payload"].(map[string]any)
	if payload["collections_csv"] != "hr-personal" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := captured["filter"]; !ok {
		t.Fatal("payload update must be filter scoped")
	}
}

func TestUninitializedStoreErrors(t *testing.T) {
	s := New("http://localhost:1", "chunks", nil)
	if _, err := s.Search(context.Background(), "q", 3); err == nil {
		t.Fatal("Search before Initialize must fail")
	}
}
