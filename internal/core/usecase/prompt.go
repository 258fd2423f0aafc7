package usecase

import (
	"fmt"
	"strings"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

const ragSystemPrompt = `You are a helpful assistant that answers questions based on the provided context. Use ONLY the context below to answer. If the context does not contain the answer, say you don't know. Cite the source filename when it helps the user locate the information.`

const contextSeparator = "\n\n---\n\n"

// formatContext renders the retrieved chunks for the model, one labeled block
// per chunk. Page numbers appear only for paged formats.
func formatContext(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "No relevant documents found."
	}

	blocks := make([]string, len(chunks))
	for i, chunk := range chunks {
		label := fmt.Sprintf("[Source %d: %s]", i+1, chunk.SourceFile)
		if chunk.Page != domain.PageUnknown {
			label = fmt.Sprintf("[Source %d: %s (p.%d)]", i+1, chunk.SourceFile, chunk.Page)
		}
		blocks[i] = label + "\n" + chunk.Text
	}
	return strings.Join(blocks, contextSeparator)
}

func buildSystemPrompt(chunks []domain.RetrievedChunk) string {
	return ragSystemPrompt + "\n\nContext:\n" + formatContext(chunks)
}

// SourceRefs converts retrieved chunks into their caller-facing form with
// display-truncated content.
func SourceRefs(chunks []domain.RetrievedChunk) []domain.SourceRef {
	out := make([]domain.SourceRef, len(chunks))
	for i, chunk := range chunks {
		out[i] = domain.SourceRef{
			Content:    smartTruncate(chunk.Text, 500),
			SourceFile: chunk.SourceFile,
			ChunkIndex: chunk.ChunkIndex,
			DocID:      chunk.DocID,
		}
	}
	return out
}
