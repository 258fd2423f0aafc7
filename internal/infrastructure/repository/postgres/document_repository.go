package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, file_type, chunk_count, user_id, file_hash, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.Filename, doc.FileType, doc.ChunkCount, doc.UserID, doc.FileHash, doc.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	for _, collection := range doc.Collections {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO document_collections (doc_id, collection) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			doc.ID, collection,
		)
		if err != nil {
			return fmt.Errorf("create document: collection %s: %w", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, docID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, filename, file_type, chunk_count, user_id, file_hash, uploaded_at
		 FROM documents WHERE id = $1`,
		docID,
	)

	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.ChunkCount, &doc.UserID, &doc.FileHash, &doc.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", docID))
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	doc.Collections, err = r.collectionsOf(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) Remove(ctx context.Context, docID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "remove document", fmt.Errorf("document %s", docID))
	}
	return nil
}

func (r *DocumentRepository) ListAll(ctx context.Context, userID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, file_type, chunk_count, user_id, file_hash, uploaded_at
		 FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return r.scanDocuments(ctx, rows, "list documents")
}

func (r *DocumentRepository) ListByCollection(ctx context.Context, collection, userID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.filename, d.file_type, d.chunk_count, d.user_id, d.file_hash, d.uploaded_at
		 FROM documents d
		 JOIN document_collections dc ON dc.doc_id = d.id
		 WHERE dc.collection = $1 AND d.user_id = $2
		 ORDER BY d.uploaded_at DESC, d.id`,
		collection, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents by collection: %w", err)
	}
	defer rows.Close()
	return r.scanDocuments(ctx, rows, "list documents by collection")
}

func (r *DocumentRepository) UpdateCollections(ctx context.Context, docID string, collections []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update collections: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, docID).Scan(&exists); err != nil {
		return fmt.Errorf("update collections: %w", err)
	}
	if !exists {
		return domain.WrapError(domain.ErrNotFound, "update collections", fmt.Errorf("document %s", docID))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_collections WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("update collections: %w", err)
	}
	for _, collection := range collections {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO document_collections (doc_id, collection) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			docID, collection,
		)
		if err != nil {
			return fmt.Errorf("update collections: %s: %w", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update collections: %w", err)
	}
	return nil
}

func (r *DocumentRepository) AllCollections(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT dc.collection
		 FROM document_collections dc
		 JOIN documents d ON d.id = dc.doc_id
		 WHERE d.user_id = $1
		 ORDER BY dc.collection`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var collection string
		if err := rows.Scan(&collection); err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		out = append(out, collection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return out, nil
}

// FindByHash returns nil without error when the user has no document with the
// given content hash.
func (r *DocumentRepository) FindByHash(ctx context.Context, userID, fileHash string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, filename, file_type, chunk_count, user_id, file_hash, uploaded_at
		 FROM documents WHERE user_id = $1 AND file_hash = $2
		 ORDER BY uploaded_at DESC LIMIT 1`,
		userID, fileHash,
	)

	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.ChunkCount, &doc.UserID, &doc.FileHash, &doc.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}

	doc.Collections, err = r.collectionsOf(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) scanDocuments(ctx context.Context, rows *sql.Rows, operation string) ([]domain.Document, error) {
	var out []domain.Document
	for rows.Next() {
		var doc domain.Document
		err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.ChunkCount, &doc.UserID, &doc.FileHash, &doc.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	for i := range out {
		collections, err := r.collectionsOf(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Collections = collections
	}
	return out, nil
}

func (r *DocumentRepository) collectionsOf(ctx context.Context, docID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT collection FROM document_collections WHERE doc_id = $1`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("document collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var collection string
		if err := rows.Scan(&collection); err != nil {
			return nil, fmt.Errorf("document collections: %w", err)
		}
		out = append(out, collection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document collections: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
