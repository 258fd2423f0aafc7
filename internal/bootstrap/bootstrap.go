// Package bootstrap wires configuration into a ready application graph shared
// by the api and worker entry points.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/stars1210JasonHe/Meinrag/internal/config"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/core/usecase"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/chunking"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/extractor"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/llm/ollama"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/queue/nats"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/repository/postgres"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/resilience"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/storage/localfs"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/vector"
	"github.com/stars1210JasonHe/Meinrag/internal/memory"
)

type App struct {
	Config config.Config
	Logger *slog.Logger
	DB     *sql.DB

	Queue    *nats.Queue
	Registry ports.DocumentRegistry
	Users    ports.UserRegistry

	QueryUC ports.QueryService
	DocsUC  ports.DocumentService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	registry := postgres.NewDocumentRepository(db)
	users := postgres.NewUserRepository(db)

	storage, err := localfs.New(cfg.UploadDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.Connect(cfg.NATSURL, cfg.NATSSubject, executor, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorStore, err := vector.NewStore(cfg, executor)
	if err != nil {
		queue.Close()
		db.Close()
		return nil, err
	}
	if err := vectorStore.Initialize(ctx, embedder); err != nil {
		queue.Close()
		db.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	sessions, err := memory.NewSessionStore(cfg, db)
	if err != nil {
		queue.Close()
		db.Close()
		return nil, err
	}

	suggester := usecase.NewSuggester(generator, logger)
	docsUC := usecase.NewDocumentUseCase(
		registry,
		users,
		storage,
		extractor.New(),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		vectorStore,
		suggester,
		queue,
		cfg.MaxUploadMB,
		logger,
	)
	queryUC := usecase.NewQueryUseCase(
		vectorStore,
		generator,
		sessions,
		registry,
		usecase.QueryConfig{
			TopK:                  cfg.RetrievalTopK,
			HybridEnabled:         cfg.HybridEnabled,
			BM25Weight:            cfg.HybridBM25Weight,
			RerankEnabled:         cfg.RerankEnabled,
			RerankTopN:            cfg.RerankTopN,
			RerankOverfetchFactor: cfg.RerankOverfetchFactor,
		},
		logger,
	)

	// The default user exists from the start so header-less requests always
	// resolve to a valid owner.
	if err := users.EnsureExists(ctx, "admin", "admin"); err != nil {
		queue.Close()
		db.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Queue:    queue,
		Registry: registry,
		Users:    users,
		QueryUC:  queryUC,
		DocsUC:   docsUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
