package usecase

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index is an Okapi BM25 index built per query over the (filtered) corpus.
// The corpus is small enough that rebuilding beats keeping an incremental
// index in sync with the vector store.
type bm25Index struct {
	chunks    []domain.Chunk
	docTokens [][]string
	docFreq   map[string]int
	avgLen    float64
}

func newBM25Index(chunks []domain.Chunk) *bm25Index {
	idx := &bm25Index{
		chunks:    chunks,
		docTokens: make([][]string, len(chunks)),
		docFreq:   make(map[string]int),
	}

	var totalLen int
	for i, chunk := range chunks {
		tokens := tokenize(chunk.Content)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			idx.docFreq[token]++
		}
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(chunks))
	}
	return idx
}

func (idx *bm25Index) search(query string, k int) []domain.RetrievedChunk {
	if k <= 0 || len(idx.chunks) == 0 {
		return nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	n := float64(len(idx.chunks))
	scored := make([]domain.RetrievedChunk, 0, len(idx.chunks))
	for i, chunk := range idx.chunks {
		tokens := idx.docTokens[i]
		if len(tokens) == 0 {
			continue
		}

		termFreq := make(map[string]int, len(tokens))
		for _, token := range tokens {
			termFreq[token]++
		}

		var score float64
		for _, token := range queryTokens {
			tf := float64(termFreq[token])
			if tf == 0 {
				continue
			}
			df := float64(idx.docFreq[token])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := bm25K1 * (1 - bm25B + bm25B*float64(len(tokens))/idx.avgLen)
			score += idf * tf * (bm25K1 + 1) / (tf + norm)
		}
		if score <= 0 {
			continue
		}

		scored = append(scored, domain.RetrievedChunk{
			DocID:      chunk.Metadata.DocID,
			SourceFile: chunk.Metadata.SourceFile,
			ChunkIndex: chunk.Metadata.ChunkIndex,
			Page:       chunk.Metadata.Page,
			Text:       chunk.Content,
			Score:      score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].DocID != scored[j].DocID {
			return scored[i].DocID < scored[j].DocID
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
