package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func docColumns() []string {
	return []string{"id", "filename", "file_type", "chunk_count", "user_id", "file_hash", "uploaded_at"}
}

func TestDocumentGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	uploadedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, filename, file_type, chunk_count, user_id, file_hash, uploaded_at\s+FROM documents WHERE id = \$1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(docColumns()).
			AddRow("d1", "report.pdf", "pdf", 12, "alice", "abc123", uploadedAt))
	mock.ExpectQuery(`SELECT collection FROM document_collections WHERE doc_id = \$1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"collection"}).
			AddRow("other").
			AddRow("finance-accounting"))

	doc, err := repo.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Filename != "report.pdf" || doc.UserID != "alice" || doc.ChunkCount != 12 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(doc.Collections) != 2 || doc.Collections[0] != "finance-accounting" {
		t.Fatalf("collections must be sorted: %v", doc.Collections)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDocumentGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(`SELECT id, filename`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentFindByHashAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(`SELECT id, filename`).
		WithArgs("alice", "deadbeef").
		WillReturnError(sql.ErrNoRows)

	doc, err := repo.FindByHash(context.Background(), "alice", "deadbeef")
	if err != nil {
		t.Fatalf("FindByHash() error = %v", err)
	}
	if doc != nil {
		t.Fatalf("absent hash must yield nil document, got %+v", doc)
	}
}

func TestDocumentRemoveNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Remove(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentCreateCommitsCollections(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	uploadedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("d1", "a.txt", "txt", 3, "alice", "abc", uploadedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_collections`).
		WithArgs("d1", "legal-compliance").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_collections`).
		WithArgs("d1", "other").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), &domain.Document{
		ID:          "d1",
		Filename:    "a.txt",
		FileType:    "txt",
		ChunkCount:  3,
		UserID:      "alice",
		FileHash:    "abc",
		UploadedAt:  uploadedAt,
		Collections: []string{"legal-compliance", "other"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDocumentCreateRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.Document{ID: "d1"})
	if err == nil {
		t.Fatal("expected insert failure to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDocumentUpdateCollectionsUnknownDoc(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.UpdateCollections(context.Background(), "missing", []string{"other"})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentUpdateCollectionsReplacesRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM document_collections WHERE doc_id = \$1`).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO document_collections`).
		WithArgs("d1", "hr-personal").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.UpdateCollections(context.Background(), "d1", []string{"hr-personal"}); err != nil {
		t.Fatalf("UpdateCollections() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDocumentListAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	uploadedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM documents WHERE user_id = \$1 ORDER BY uploaded_at DESC, id`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(docColumns()).
			AddRow("d2", "b.txt", "txt", 1, "alice", "h2", uploadedAt).
			AddRow("d1", "a.txt", "txt", 2, "alice", "h1", uploadedAt.Add(-time.Hour)))
	mock.ExpectQuery(`SELECT collection FROM document_collections`).
		WithArgs("d2").
		WillReturnRows(sqlmock.NewRows([]string{"collection"}).AddRow("other"))
	mock.ExpectQuery(`SELECT collection FROM document_collections`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"collection"}))

	docs, err := repo.ListAll(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "d2" || docs[1].ID != "d1" {
		t.Fatalf("unexpected order: %+v", docs)
	}
	if len(docs[0].Collections) != 1 || docs[0].Collections[0] != "other" {
		t.Fatalf("collections not attached: %+v", docs[0])
	}
}

func TestAllCollectionsDistinct(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(`SELECT DISTINCT dc.collection`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"collection"}).
			AddRow("finance-accounting").
			AddRow("other"))

	collections, err := repo.AllCollections(context.Background(), "alice")
	if err != nil {
		t.Fatalf("AllCollections() error = %v", err)
	}
	if len(collections) != 2 || collections[0] != "finance-accounting" {
		t.Fatalf("unexpected collections: %v", collections)
	}
}
