// Package memory keeps chat session histories in process memory with a TTL
// and a per-session message cap.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
)

type session struct {
	mu       sync.Mutex
	messages []domain.Message

	// lastAccess holds UnixNano; atomic so the sweep can read it without
	// taking the session lock. Writes happen under the store lock.
	lastAccess atomic.Int64
}

// Manager is a SessionStore backed by a map of sessions. The store-level lock
// guards map membership only; message reads and writes take the per-session
// lock, so different sessions never contend.
type Manager struct {
	maxMessages int
	ttl         time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(maxMessages int, ttl time.Duration) *Manager {
	return newManager(maxMessages, ttl, time.Now)
}

func newManager(maxMessages int, ttl time.Duration, now func() time.Time) *Manager {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		maxMessages: maxMessages,
		ttl:         ttl,
		now:         now,
		sessions:    make(map[string]*session),
	}
}

// History returns a copy of the session's messages, oldest first. Unknown or
// expired sessions yield an empty history.
func (m *Manager) History(_ context.Context, sessionID string) ([]domain.Message, error) {
	now := m.now()
	sess := m.lookup(sessionID, now)
	if sess == nil {
		return nil, nil
	}

	sess.mu.Lock()
	out := make([]domain.Message, len(sess.messages))
	copy(out, sess.messages)
	sess.mu.Unlock()
	return out, nil
}

// AddExchange appends a question/answer pair, creating the session when
// needed, then trims to the newest maxMessages messages.
func (m *Manager) AddExchange(_ context.Context, sessionID, question, answer string) error {
	now := m.now()

	m.mu.Lock()
	m.sweepLocked(now)
	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = &session{}
		m.sessions[sessionID] = sess
	}
	// Stamped before releasing the store lock so a concurrent sweep cannot
	// evict the session while its access time is still stale.
	sess.lastAccess.Store(now.UnixNano())
	m.mu.Unlock()

	sess.mu.Lock()
	sess.messages = append(sess.messages,
		domain.Message{Role: domain.RoleHuman, Content: question},
		domain.Message{Role: domain.RoleAI, Content: answer},
	)
	if overflow := len(sess.messages) - m.maxMessages; overflow > 0 {
		sess.messages = append(sess.messages[:0:0], sess.messages[overflow:]...)
	}
	sess.mu.Unlock()
	return nil
}

func (m *Manager) lookup(sessionID string, now time.Time) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
	sess := m.sessions[sessionID]
	if sess != nil {
		sess.lastAccess.Store(now.UnixNano())
	}
	return sess
}

func (m *Manager) sweepLocked(now time.Time) {
	deadline := now.Add(-m.ttl).UnixNano()
	for id, sess := range m.sessions {
		if sess.lastAccess.Load() < deadline {
			delete(m.sessions, id)
		}
	}
}
