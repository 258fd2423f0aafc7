package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
)

// rerankWithLLM asks the chat model to reorder the candidate list by
// relevance and keeps the topN best. The model sees numbered snippets and
// must answer with a JSON array of numbers; anything unparseable falls back
// to the incoming order so a flaky model can only cost quality, not answers.
func rerankWithLLM(
	ctx context.Context,
	generator ports.Generator,
	logger *slog.Logger,
	question string,
	candidates []domain.RetrievedChunk,
	topN int,
) []domain.RetrievedChunk {
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}
	if len(candidates) <= 1 {
		return trimCandidates(candidates, topN)
	}

	prompt := buildRerankPrompt(question, candidates)
	response, err := generator.Generate(ctx, prompt)
	if err != nil {
		logger.Warn("rerank_generate_failed", "error", err)
		return trimCandidates(candidates, topN)
	}

	ranking, ok := parseRanking(response, len(candidates))
	if !ok {
		logger.Warn("rerank_response_unparseable", "response_prefix", prefixForLog(response))
		return trimCandidates(candidates, topN)
	}

	out := make([]domain.RetrievedChunk, 0, len(candidates))
	used := make(map[int]struct{}, len(candidates))
	for _, idx := range ranking {
		out = append(out, candidates[idx])
		used[idx] = struct{}{}
	}
	for i, chunk := range candidates {
		if _, ok := used[i]; !ok {
			out = append(out, chunk)
		}
	}
	return trimCandidates(out, topN)
}

func buildRerankPrompt(question string, candidates []domain.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("Rank the following passages by how well they answer the question.\n")
	b.WriteString("Respond with ONLY a JSON array of passage numbers, most relevant first, e.g. [2, 1, 3].\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nPassages:\n", question)
	for i, chunk := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, smartTruncate(chunk.Text, 400))
	}
	return b.String()
}

// parseRanking extracts a 1-based passage ordering from the model response.
// Out-of-range and duplicate numbers are dropped; the result uses 0-based
// indices into the candidate slice.
func parseRanking(response string, n int) ([]int, bool) {
	raw := stripCodeFences(response)
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, false
	}

	var numbers []int
	if err := json.Unmarshal([]byte(raw[start:end+1]), &numbers); err != nil {
		return nil, false
	}

	out := make([]int, 0, len(numbers))
	seen := make(map[int]struct{}, len(numbers))
	for _, num := range numbers {
		idx := num - 1
		if idx < 0 || idx >= n {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func prefixForLog(s string) string {
	const limit = 120
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
