package domain

// QueryRequest carries one retrieval question with its filter constraints.
// TopK of zero means "use the configured default".
type QueryRequest struct {
	UserID     string   `json:"-"`
	Question   string   `json:"question"`
	TopK       int      `json:"top_k"`
	DocIDs     []string `json:"doc_ids,omitempty"`
	Collection string   `json:"collection,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
}

// UploadRequest carries one document ingestion.
type UploadRequest struct {
	UserID      string
	Filename    string
	Content     []byte
	Collections []string
	AutoSuggest bool
}
