// Package session manages logical MCP sessions across stateless HTTP calls.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flapi-dev/flapi/internal/domain/auth"
)

// ErrSessionNotFound is returned when a session doesn't exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// Session tracks one client's context across JSON-RPC exchanges.
type Session struct {
	// ID is a cryptographically random identifier, 32 bytes hex-encoded.
	ID string
	// Auth is the identity bound at creation. Nil for unauthenticated
	// sessions. Never re-derived mid-session.
	Auth *auth.Context
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// LastActivity is the last time the session was used (UTC).
	LastActivity time.Time
}

// IsAuthenticated reports whether the session has a bound identity.
func (s *Session) IsAuthenticated() bool {
	return s.Auth != nil && s.Auth.Authenticated
}

// Config holds session manager configuration.
type Config struct {
	// IdleTimeout evicts sessions idle longer than this. Zero disables
	// eviction: sessions then live until an explicit DELETE, matching
	// flAPI's observed behavior.
	IdleTimeout time.Duration
	// CleanupInterval is how often the eviction sweep runs when
	// IdleTimeout is set. Default: 1 minute.
	CleanupInterval time.Duration
}

// Manager tracks sessions in memory. Safe for concurrent use by all
// transport worker goroutines.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout     time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a session manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.CleanupInterval
	if interval == 0 {
		interval = time.Minute
	}
	return &Manager{
		sessions:        make(map[string]*Session),
		idleTimeout:     cfg.IdleTimeout,
		cleanupInterval: interval,
		logger:          logger,
		stopChan:        make(chan struct{}),
	}
}

// Create stores a new session bound to the given auth context (which
// may be nil) and returns its id.
func (m *Manager) Create(authCtx *auth.Context) (string, error) {
	id, err := GenerateID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	m.mu.Lock()
	m.sessions[id] = &Session{
		ID:           id,
		Auth:         authCtx,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.mu.Unlock()
	return id, nil
}

// Get retrieves a session by id. Returns ErrSessionNotFound for
// unknown or expired ids. The returned session is a copy.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || m.expired(sess) {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// Touch bumps the session's activity timestamp. No-op for unknown ids.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		sess.LastActivity = time.Now().UTC()
	}
	m.mu.Unlock()
}

// Remove deletes a session. Idempotent.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartCleanup launches the background eviction sweep. No-op when
// idle eviction is disabled. Call Stop for a clean shutdown.
func (m *Manager) StartCleanup(ctx context.Context) {
	if m.idleTimeout == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.cleanup()
			}
		}
	}()
}

// Stop halts the cleanup goroutine and waits for it. Safe to call
// multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleaned := 0
	for id, sess := range m.sessions {
		if m.expired(sess) {
			delete(m.sessions, id)
			cleaned++
		}
	}
	if cleaned > 0 {
		m.logger.Debug("evicted idle sessions", "count", cleaned)
	}
}

func (m *Manager) expired(sess *Session) bool {
	if m.idleTimeout == 0 {
		return false
	}
	return time.Now().UTC().Sub(sess.LastActivity) > m.idleTimeout
}

// GenerateID creates a cryptographically random session id,
// 64 hex characters (32 bytes).
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
