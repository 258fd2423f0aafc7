package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
)

type usersFake struct {
	ensured []string
	err     error
}

func (f *usersFake) EnsureExists(_ context.Context, userID, _ string) error {
	f.ensured = append(f.ensured, userID)
	return f.err
}
func (f *usersFake) Get(context.Context, string) (*domain.User, error) { return nil, nil }
func (f *usersFake) ListAll(context.Context) ([]domain.User, error)    { return nil, nil }

type storageFake struct {
	saved   map[string][]byte
	removed []string
	err     error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	content, _ := io.ReadAll(data)
	f.saved[key] = content
	return nil
}
func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (f *storageFake) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return f.err
}

type extractorFake struct {
	segments []ports.ExtractedSegment
	err      error
}

func (f *extractorFake) Extract(_ context.Context, filename string, _ []byte) ([]ports.ExtractedSegment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.segments != nil {
		return f.segments, nil
	}
	if !strings.HasSuffix(filename, ".txt") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported file type"))
	}
	return []ports.ExtractedSegment{{Text: "extracted text body", Page: domain.PageUnknown}}, nil
}

type chunkerFake struct {
	pieces int
}

func (f *chunkerFake) Split(text string) []string {
	n := f.pieces
	if n <= 0 {
		n = 1
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s [%d]", text, i)
	}
	return out
}

type ingestVectorFake struct {
	added    map[string][]domain.Chunk
	deleted  []string
	persists int
	updates  map[string]map[string]string
	corpus   []domain.Chunk
	addErr   error
}

func newIngestVectorFake() *ingestVectorFake {
	return &ingestVectorFake{
		added:   make(map[string][]domain.Chunk),
		updates: make(map[string]map[string]string),
	}
}

func (f *ingestVectorFake) Initialize(context.Context, ports.Embedder) error { return nil }
func (f *ingestVectorFake) Add(_ context.Context, chunks []domain.Chunk, docID string) ([]string, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.added[docID] = chunks
	ids := make([]string, len(chunks))
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", docID, i)
	}
	return ids, nil
}
func (f *ingestVectorFake) Delete(_ context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}
func (f *ingestVectorFake) Search(context.Context, string, int) ([]domain.RetrievedChunk, error) {
	return nil, nil
}
func (f *ingestVectorFake) SearchFiltered(context.Context, string, int, []string) ([]domain.RetrievedChunk, error) {
	return nil, nil
}
func (f *ingestVectorFake) AllChunks(context.Context) ([]domain.Chunk, error) {
	return f.corpus, nil
}
func (f *ingestVectorFake) UpdateMetadata(_ context.Context, docID string, updates map[string]string) error {
	f.updates[docID] = updates
	return nil
}
func (f *ingestVectorFake) Persist(context.Context) error {
	f.persists++
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishReclassify(_ context.Context, docID string) error {
	f.published = append(f.published, docID)
	return f.err
}
func (f *queueFake) SubscribeReclassify(context.Context, func(context.Context, string) error) error {
	return nil
}

type docUseCaseFixture struct {
	uc       *DocumentUseCase
	registry *registryFake
	users    *usersFake
	storage  *storageFake
	vector   *ingestVectorFake
	queue    *queueFake
	gen      *generatorFake
}

func newDocUseCaseFixture() *docUseCaseFixture {
	f := &docUseCaseFixture{
		registry: &registryFake{},
		users:    &usersFake{},
		storage:  newStorageFake(),
		vector:   newIngestVectorFake(),
		queue:    &queueFake{},
		gen:      &generatorFake{response: `["other"]`},
	}
	f.uc = NewDocumentUseCase(
		f.registry,
		f.users,
		f.storage,
		&extractorFake{},
		&chunkerFake{pieces: 2},
		f.vector,
		NewSuggester(f.gen, discardLogger()),
		f.queue,
		1,
		discardLogger(),
	)
	return f
}

func TestUploadIndexesAndRegisters(t *testing.T) {
	f := newDocUseCaseFixture()

	result, err := f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID:      "alice",
		Filename:    "notes.txt",
		Content:     []byte("hello world"),
		Collections: []string{"Finance Accounting"},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	doc := result.Document
	if doc.ChunkCount != 2 {
		t.Fatalf("expected 2 chunks, got %d", doc.ChunkCount)
	}
	if doc.FileType != "txt" || doc.Filename != "notes.txt" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(doc.Collections) != 1 || doc.Collections[0] != "finance-accounting" {
		t.Fatalf("expected normalized collections, got %v", doc.Collections)
	}
	if len(doc.ID) != 12 {
		t.Fatalf("expected 12 char doc id, got %q", doc.ID)
	}

	chunks := f.vector.added[doc.ID]
	if len(chunks) != 2 {
		t.Fatalf("expected 2 indexed chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		md := chunk.Metadata
		if md.DocID != doc.ID || md.SourceFile != "notes.txt" || md.ChunkIndex != i {
			t.Fatalf("unexpected chunk metadata: %+v", md)
		}
		if md.CollectionsCSV != "finance-accounting" {
			t.Fatalf("unexpected collections csv %q", md.CollectionsCSV)
		}
	}

	if len(f.vector.deleted) != 1 || f.vector.deleted[0] != doc.ID {
		t.Fatal("upload must clear previous chunks before adding")
	}
	if f.vector.persists != 1 {
		t.Fatalf("expected 1 persist, got %d", f.vector.persists)
	}
	if _, ok := f.storage.saved[doc.ID+".txt"]; !ok {
		t.Fatalf("raw file not saved, keys: %v", f.storage.saved)
	}
	if len(f.registry.docs) != 1 {
		t.Fatalf("expected registry entry, got %d", len(f.registry.docs))
	}
	if len(f.users.ensured) != 1 || f.users.ensured[0] != "alice" {
		t.Fatalf("expected user ensured, got %v", f.users.ensured)
	}
	if result.SuggestedCollections != nil {
		t.Fatal("explicit collections must not report suggestions")
	}
}

func TestUploadRejectsDuplicateContent(t *testing.T) {
	f := newDocUseCaseFixture()
	content := []byte("same bytes")

	first, err := f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID: "alice", Filename: "a.txt", Content: content,
	})
	if err != nil {
		t.Fatalf("first Upload() error = %v", err)
	}

	_, err = f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID: "alice", Filename: "b.txt", Content: content,
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), first.Document.ID) {
		t.Fatalf("conflict error should name the existing document: %v", err)
	}

	// A different user may upload the same bytes.
	if _, err := f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID: "bob", Filename: "c.txt", Content: content,
	}); err != nil {
		t.Fatalf("other user Upload() error = %v", err)
	}
}

func TestUploadValidation(t *testing.T) {
	f := newDocUseCaseFixture()

	cases := []struct {
		name string
		req  domain.UploadRequest
	}{
		{"empty filename", domain.UploadRequest{UserID: "u", Filename: " ", Content: []byte("x")}},
		{"empty content", domain.UploadRequest{UserID: "u", Filename: "a.txt"}},
		{"oversized", domain.UploadRequest{UserID: "u", Filename: "a.txt", Content: bytes.Repeat([]byte("x"), 2*1024*1024)}},
		{"unsupported type", domain.UploadRequest{UserID: "u", Filename: "a.exe", Content: []byte("x")}},
	}
	for _, tc := range cases {
		if _, err := f.uc.Upload(context.Background(), tc.req); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}

func TestUploadAutoSuggestUsesModelLabels(t *testing.T) {
	f := newDocUseCaseFixture()
	f.gen.response = `["research-scientific"]`

	result, err := f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID:      "alice",
		Filename:    "paper.txt",
		Content:     []byte("abstract"),
		AutoSuggest: true,
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(result.SuggestedCollections) != 1 || result.SuggestedCollections[0] != "research-scientific" {
		t.Fatalf("unexpected suggestions: %v", result.SuggestedCollections)
	}
	if result.Document.Collections[0] != "research-scientific" {
		t.Fatalf("suggestion must become the document collection, got %v", result.Document.Collections)
	}
}

func TestUploadDefaultsToOtherCollection(t *testing.T) {
	f := newDocUseCaseFixture()

	result, err := f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID:   "alice",
		Filename: "plain.txt",
		Content:  []byte("body"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(result.Document.Collections) != 1 || result.Document.Collections[0] != "other" {
		t.Fatalf("expected default collection, got %v", result.Document.Collections)
	}
	if len(f.gen.prompts) != 0 {
		t.Fatal("suggester must not run without auto_suggest")
	}
}

func TestUploadAssignsPagesPerSegment(t *testing.T) {
	f := newDocUseCaseFixture()
	f.uc.extractor = &extractorFake{segments: []ports.ExtractedSegment{
		{Text: "page one", Page: 1},
		{Text: "page two", Page: 2},
	}}

	result, err := f.uc.Upload(context.Background(), domain.UploadRequest{
		UserID:   "alice",
		Filename: "doc.txt",
		Content:  []byte("irrelevant"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	chunks := f.vector.added[result.Document.ID]
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks (2 per segment), got %d", len(chunks))
	}
	if chunks[0].Metadata.Page != 1 || chunks[3].Metadata.Page != 2 {
		t.Fatalf("page metadata lost: first=%d last=%d", chunks[0].Metadata.Page, chunks[3].Metadata.Page)
	}
	for i, chunk := range chunks {
		if chunk.Metadata.ChunkIndex != i {
			t.Fatalf("chunk index must be global across segments, got %d at %d", chunk.Metadata.ChunkIndex, i)
		}
	}
}
