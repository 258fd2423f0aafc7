package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

// SessionRepository stores chat histories in Postgres. Expired sessions are
// swept opportunistically on every access, and each session keeps at most
// maxMessages recent messages.
type SessionRepository struct {
	db          *sql.DB
	maxMessages int
	ttl         time.Duration
}

func NewSessionRepository(db *sql.DB, maxMessages int, ttl time.Duration) *SessionRepository {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRepository{db: db, maxMessages: maxMessages, ttl: ttl}
}

func (r *SessionRepository) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if err := r.sweep(ctx); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT role, content FROM (
			SELECT id, role, content FROM chat_messages
			WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		 ) recent ORDER BY id`,
		sessionID, r.maxMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		if err := rows.Scan(&role, &msg.Content); err != nil {
			return nil, fmt.Errorf("session history: %w", err)
		}
		msg.Role = domain.MessageRole(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}

	if len(out) > 0 {
		_, err = r.db.ExecContext(ctx,
			`UPDATE chat_sessions SET last_access = now() WHERE id = $1`,
			sessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("session history: touch: %w", err)
		}
	}
	return out, nil
}

func (r *SessionRepository) AddExchange(ctx context.Context, sessionID, question, answer string) error {
	if err := r.sweep(ctx); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add exchange: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, last_access) VALUES ($1, now())
		 ON CONFLICT (id) DO UPDATE SET last_access = now()`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("add exchange: session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3), ($1, $4, $5)`,
		sessionID, string(domain.RoleHuman), question, string(domain.RoleAI), answer,
	)
	if err != nil {
		return fmt.Errorf("add exchange: messages: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM chat_messages WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		 )`,
		sessionID, r.maxMessages,
	)
	if err != nil {
		return fmt.Errorf("add exchange: trim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add exchange: %w", err)
	}
	return nil
}

func (r *SessionRepository) sweep(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE last_access < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(r.ttl.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	return nil
}
