package domain

type MessageRole string

const (
	RoleHuman MessageRole = "human"
	RoleAI    MessageRole = "ai"
)

// Message is one entry in a chat session history. Exchanges are appended in
// human/ai pairs; trimming always discards the oldest messages first.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}
