package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-house/internal/auctionerrors"
)

// Session is the server-side record of one login. Every refresh token issued
// for it belongs to the same family; revoking the session kills all of them
// together with the access tokens that name it.
type Session struct {
	ID          string
	UserID      string
	RefreshHash string
	// PreviousHash was current until RotatedAt.
	PreviousHash string
	RotatedAt    time.Time
	ExpiresAt    time.Time
	Revoked      bool
}

// Rotation is one redemption of a refresh token.
type Rotation struct {
	OldHash string
	NewHash string
	At      time.Time
	// Grace is how long after a rotation the hash it replaced is still
	// answered with errJustRotated instead of being treated as reuse.
	Grace     time.Duration
	ExpiresAt time.Time
}

// errJustRotated reports a redemption of the hash replaced by the latest
// rotation, within the grace window. The session stays valid.
var errJustRotated = errors.New("refresh token rotated moments ago")

// SessionStore persists sessions. Rotate must be atomic: of two concurrent
// redemptions of the same refresh token exactly one succeeds.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	// Rotate replaces r.OldHash with r.NewHash. The previous hash inside the
	// grace window yields errJustRotated; any other redeemed hash revokes the
	// session and returns ErrRefreshTokenReused.
	Rotate(ctx context.Context, id string, r Rotation) error
	Revoke(ctx context.Context, id string) error
}

type memorySession struct {
	Session
	redeemed map[string]struct{}
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*memorySession)}
}

func (m *MemorySessionStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memorySession{Session: s, redeemed: make(map[string]struct{})}
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("get session %s: %w", id, auctionerrors.ErrSessionNotFound)
	}
	return s.Session, nil
}

func (m *MemorySessionStore) Rotate(_ context.Context, id string, r Rotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrSessionNotFound)
	}
	if s.Revoked {
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrSessionRevoked)
	}
	if s.RefreshHash != r.OldHash {
		if r.OldHash == s.PreviousHash && r.At.Before(s.RotatedAt.Add(r.Grace)) {
			return fmt.Errorf("rotate session %s: %w", id, errJustRotated)
		}
		if _, seen := s.redeemed[r.OldHash]; seen {
			s.Revoked = true
			return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrRefreshTokenReused)
		}
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrTokenInvalid)
	}

	s.redeemed[r.OldHash] = struct{}{}
	s.PreviousHash = r.OldHash
	s.RotatedAt = r.At
	s.RefreshHash = r.NewHash
	s.ExpiresAt = r.ExpiresAt
	return nil
}

// Prune drops sessions that expired or were revoked before now and reports
// how many it removed. Access tokens naming a pruned session are rejected as
// revoked.
func (m *MemorySessionStore) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.Revoked || !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemorySessionStore) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("revoke session %s: %w", id, auctionerrors.ErrSessionNotFound)
	}
	s.Revoked = true
	return nil
}
