package usecase

import (
	"fmt"
	"sort"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	chunk domain.RetrievedChunk
	score float64
}

// fuseWeightedRRF merges the lexical and semantic result lists with weighted
// reciprocal rank fusion. Weights are convex: bm25Weight goes to the lexical
// list, the remainder to the semantic one. The lexical list is folded first
// and the sort is stable, so on exact score ties a chunk surfaced lexically
// outranks one surfaced only semantically.
func fuseWeightedRRF(lexical, semantic []domain.RetrievedChunk, bm25Weight float64, rrfK int) []domain.RetrievedChunk {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	if bm25Weight < 0 {
		bm25Weight = 0
	}
	if bm25Weight > 1 {
		bm25Weight = 1
	}

	acc := make(map[string]*fusedCandidate, len(lexical)+len(semantic))
	order := make([]string, 0, len(lexical)+len(semantic))
	addList := func(chunks []domain.RetrievedChunk, weight float64) {
		for rank, chunk := range chunks {
			key := chunkKey(chunk)
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{chunk: chunk}
				acc[key] = candidate
				order = append(order, key)
			}
			candidate.score += weight / float64(rrfK+rank+1)
		}
	}

	addList(lexical, bm25Weight)
	addList(semantic, 1-bm25Weight)

	out := make([]domain.RetrievedChunk, 0, len(order))
	for _, key := range order {
		chunk := acc[key].chunk
		chunk.Score = acc[key].score
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func trimCandidates(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func chunkKey(chunk domain.RetrievedChunk) string {
	if chunk.DocID != "" && chunk.ChunkIndex >= 0 {
		return fmt.Sprintf("%s:%d", chunk.DocID, chunk.ChunkIndex)
	}
	return fmt.Sprintf("%s|%s|%s", chunk.DocID, chunk.SourceFile, chunk.Text)
}
