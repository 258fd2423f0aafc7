package domain

// SearchFilter restricts retrieval to a concrete set of document IDs.
// A nil DocIDs slice means unfiltered; an empty non-nil slice matches nothing.
type SearchFilter struct {
	DocIDs []string
}

func (f SearchFilter) Restricted() bool {
	return f.DocIDs != nil
}

func (f SearchFilter) Allows(docID string) bool {
	if f.DocIDs == nil {
		return true
	}
	for _, id := range f.DocIDs {
		if id == docID {
			return true
		}
	}
	return false
}

type RetrievedChunk struct {
	DocID      string  `json:"doc_id"`
	SourceFile string  `json:"source_file"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SourceRef is the caller-facing view of a retrieved chunk with content
// truncated for display.
type SourceRef struct {
	Content    string `json:"content"`
	SourceFile string `json:"source_file"`
	ChunkIndex int    `json:"chunk_index"`
	DocID      string `json:"doc_id"`
}

type Answer struct {
	Text      string           `json:"answer"`
	Sources   []RetrievedChunk `json:"-"`
	Question  string           `json:"question"`
	SessionID string           `json:"session_id,omitempty"`
}
