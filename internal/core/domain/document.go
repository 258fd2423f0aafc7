package domain

import "time"

type Document struct {
	ID          string    `json:"doc_id"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type"`
	ChunkCount  int       `json:"chunk_count"`
	Collections []string  `json:"collections"`
	UserID      string    `json:"user_id"`
	FileHash    string    `json:"file_hash,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type User struct {
	ID          string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// PageUnknown marks chunks whose source format carries no page numbers.
const PageUnknown = -1

// ChunkMetadata is attached to every indexed chunk. CollectionsCSV is a
// pipe-delimited label list kept on the chunk for informational filtering;
// the registry remains the authoritative collection relation.
type ChunkMetadata struct {
	DocID          string `json:"doc_id"`
	SourceFile     string `json:"source_file"`
	ChunkIndex     int    `json:"chunk_index"`
	CollectionsCSV string `json:"collections_csv"`
	Page           int    `json:"page"`
}

// Chunk is the immutable unit of embedding and retrieval.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}
