// Package vector selects the chunk index backend from configuration.
package vector

import (
	"fmt"

	"github.com/stars1210JasonHe/Meinrag/internal/config"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/resilience"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/vector/flat"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/vector/qdrant"
)

func NewStore(cfg config.Config, executor *resilience.Executor) (ports.VectorStore, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	case "flat":
		return flat.New(cfg.FlatIndexPath, cfg.FilterOverfetchFactor), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}
