package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
)

const (
	maxTopK        = 20
	maxQuestionLen = 2000
)

// QueryConfig carries the retrieval tuning knobs.
type QueryConfig struct {
	TopK                  int
	HybridEnabled         bool
	BM25Weight            float64
	RerankEnabled         bool
	RerankTopN            int
	RerankOverfetchFactor int
}

type QueryUseCase struct {
	vector    ports.VectorStore
	generator ports.Generator
	sessions  ports.SessionStore
	registry  ports.DocumentRegistry
	cfg       QueryConfig
	logger    *slog.Logger
}

func NewQueryUseCase(
	vector ports.VectorStore,
	generator ports.Generator,
	sessions ports.SessionStore,
	registry ports.DocumentRegistry,
	cfg QueryConfig,
	logger *slog.Logger,
) *QueryUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.RerankTopN <= 0 {
		cfg.RerankTopN = cfg.TopK
	}
	if cfg.RerankOverfetchFactor <= 0 {
		cfg.RerankOverfetchFactor = 3
	}
	return &QueryUseCase{
		vector:    vector,
		generator: generator,
		sessions:  sessions,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("question is empty"))
	}
	if n := len([]rune(question)); n > maxQuestionLen {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query",
			fmt.Errorf("question is %d characters, limit is %d", n, maxQuestionLen))
	}

	topK := req.TopK
	if topK == 0 {
		topK = uc.cfg.TopK
	}
	if topK < 1 || topK > maxTopK {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query",
			fmt.Errorf("top_k %d is outside [1,%d]", topK, maxTopK))
	}

	filter, err := uc.resolveFilter(ctx, req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	chunks, err := uc.retrieve(ctx, question, topK, filter)
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("retrieval_complete",
		"question_len", len(question),
		"chunks", len(chunks),
		"filtered", filter.Restricted(),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	var history []domain.Message
	if req.SessionID != "" {
		history, err = uc.sessions.History(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session history: %w", err)
		}
	}

	answerText, err := uc.generator.Chat(ctx, buildSystemPrompt(chunks), history, question)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if req.SessionID != "" {
		if err := uc.sessions.AddExchange(ctx, req.SessionID, question, answerText); err != nil {
			return nil, fmt.Errorf("store session exchange: %w", err)
		}
	}

	return &domain.Answer{
		Text:      answerText,
		Sources:   chunks,
		Question:  question,
		SessionID: req.SessionID,
	}, nil
}

func (uc *QueryUseCase) retrieve(
	ctx context.Context,
	question string,
	topK int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	if filter.Restricted() && len(filter.DocIDs) == 0 {
		return nil, nil
	}

	fetchK := topK
	if uc.cfg.RerankEnabled {
		fetchK = topK * uc.cfg.RerankOverfetchFactor
	}

	state := &retrievalState{
		question: question,
		topK:     topK,
		fetchK:   fetchK,
		filter:   filter,
		lists:    make(map[string][]domain.RetrievedChunk),
	}

	stages := []retrievalStage{uc.vectorStage()}
	if uc.cfg.HybridEnabled {
		stages = append(stages, uc.lexicalStage(), uc.fuseStage())
	} else {
		stages = append(stages, uc.selectStage())
	}
	if uc.cfg.RerankEnabled {
		stages = append(stages, uc.rerankStage())
	}

	if err := runPipeline(ctx, stages, state); err != nil {
		return nil, err
	}
	return trimCandidates(state.final, topK), nil
}

func (uc *QueryUseCase) vectorStage() retrievalStage {
	return retrievalStage{
		name: "vector",
		run: func(ctx context.Context, state *retrievalState) error {
			var (
				chunks []domain.RetrievedChunk
				err    error
			)
			if state.filter.Restricted() {
				chunks, err = uc.vector.SearchFiltered(ctx, state.question, state.fetchK, state.filter.DocIDs)
			} else {
				chunks, err = uc.vector.Search(ctx, state.question, state.fetchK)
			}
			if err != nil {
				return err
			}
			state.lists["vector"] = chunks
			return nil
		},
	}
}

func (uc *QueryUseCase) lexicalStage() retrievalStage {
	return retrievalStage{
		name: "lexical",
		run: func(ctx context.Context, state *retrievalState) error {
			corpus, err := uc.vector.AllChunks(ctx)
			if err != nil {
				return err
			}
			if state.filter.Restricted() {
				kept := corpus[:0]
				for _, chunk := range corpus {
					if state.filter.Allows(chunk.Metadata.DocID) {
						kept = append(kept, chunk)
					}
				}
				corpus = kept
			}
			state.lists["lexical"] = newBM25Index(corpus).search(state.question, state.fetchK)
			return nil
		},
	}
}

func (uc *QueryUseCase) fuseStage() retrievalStage {
	return retrievalStage{
		name: "fuse",
		run: func(_ context.Context, state *retrievalState) error {
			fused := fuseWeightedRRF(state.lists["lexical"], state.lists["vector"], uc.cfg.BM25Weight, defaultRRFK)
			state.final = trimCandidates(fused, state.fetchK)
			return nil
		},
	}
}

func (uc *QueryUseCase) selectStage() retrievalStage {
	return retrievalStage{
		name: "select",
		run: func(_ context.Context, state *retrievalState) error {
			state.final = state.lists["vector"]
			return nil
		},
	}
}

func (uc *QueryUseCase) rerankStage() retrievalStage {
	return retrievalStage{
		name: "rerank",
		run: func(ctx context.Context, state *retrievalState) error {
			topN := uc.cfg.RerankTopN
			if topN > state.topK {
				topN = state.topK
			}
			state.final = rerankWithLLM(ctx, uc.generator, uc.logger, state.question, state.final, topN)
			return nil
		},
	}
}

// resolveFilter intersects the caller's constraints with document ownership.
// A user with no documents and no explicit constraints queries unrestricted,
// which preserves single-tenant deployments where nothing sets user IDs.
func (uc *QueryUseCase) resolveFilter(ctx context.Context, req domain.QueryRequest) (domain.SearchFilter, error) {
	ownDocs, err := uc.registry.ListAll(ctx, req.UserID)
	if err != nil {
		return domain.SearchFilter{}, fmt.Errorf("list user documents: %w", err)
	}

	if req.Collection == "" && len(req.DocIDs) == 0 {
		if len(ownDocs) == 0 {
			return domain.SearchFilter{}, nil
		}
		ids := make([]string, len(ownDocs))
		for i, doc := range ownDocs {
			ids[i] = doc.ID
		}
		return domain.SearchFilter{DocIDs: ids}, nil
	}

	allowed := make(map[string]struct{}, len(ownDocs))
	for _, doc := range ownDocs {
		allowed[doc.ID] = struct{}{}
	}

	if req.Collection != "" {
		collectionDocs, err := uc.registry.ListByCollection(ctx, req.Collection, req.UserID)
		if err != nil {
			return domain.SearchFilter{}, fmt.Errorf("list collection documents: %w", err)
		}
		inCollection := make(map[string]struct{}, len(collectionDocs))
		for _, doc := range collectionDocs {
			if _, ok := allowed[doc.ID]; ok {
				inCollection[doc.ID] = struct{}{}
			}
		}
		allowed = inCollection
	}

	ids := make([]string, 0, len(allowed))
	if len(req.DocIDs) > 0 {
		for _, id := range req.DocIDs {
			if _, ok := allowed[id]; ok {
				ids = append(ids, id)
			}
		}
	} else {
		for _, doc := range ownDocs {
			if _, ok := allowed[doc.ID]; ok {
				ids = append(ids, doc.ID)
			}
		}
	}
	return domain.SearchFilter{DocIDs: ids}, nil
}
