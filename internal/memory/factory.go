package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stars1210JasonHe/Meinrag/internal/config"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/repository/postgres"
)

// NewSessionStore picks the session backend. The postgres backend needs an
// open database handle; passing nil with MEMORY_BACKEND=postgres is a
// configuration error.
func NewSessionStore(cfg config.Config, db *sql.DB) (ports.SessionStore, error) {
	ttl := time.Duration(cfg.MemorySessionTTLSeconds) * time.Second

	switch cfg.MemoryBackend {
	case "memory":
		return NewManager(cfg.MemoryMaxMessages, ttl), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("memory backend postgres requires a database connection")
		}
		return postgres.NewSessionRepository(db, cfg.MemoryMaxMessages, ttl), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.MemoryBackend)
	}
}
