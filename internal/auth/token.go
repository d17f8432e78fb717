// Package auth issues and verifies session credentials: short-lived signed
// access tokens and opaque rotating refresh tokens backed by a server-side
// session record.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"auction-house/internal/auctionerrors"
	"auction-house/utils"
)

// Config holds token signing parameters.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Identity is who an access token speaks for.
type Identity struct {
	UserID    string
	SessionID string
}

// DefaultRefreshGrace is how long a just-rotated refresh token may still be
// presented without counting as reuse.
const DefaultRefreshGrace = 10 * time.Second

// TokenPair is what login and refresh hand back to the client. A refresh
// answered within the grace window carries no refresh token; the client keeps
// the one the winning refresh returned.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type accessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies and rotates credentials.
type TokenService struct {
	store  SessionStore
	secret []byte
	issuer string
	access time.Duration
	fresh  time.Duration
	grace  time.Duration
	now    func() time.Time
	flight singleflight.Group
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// WithRefreshGrace overrides DefaultRefreshGrace. Zero disables the window.
func WithRefreshGrace(d time.Duration) Option {
	return func(s *TokenService) { s.grace = d }
}

// NewTokenService creates a token service over store.
func NewTokenService(store SessionStore, cfg Config, opts ...Option) *TokenService {
	s := &TokenService{
		store:  store,
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		access: cfg.AccessTTL,
		fresh:  cfg.RefreshTTL,
		grace:  DefaultRefreshGrace,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue starts a new session family for userID.
func (s *TokenService) Issue(ctx context.Context, userID string) (TokenPair, error) {
	sessionID := utils.GenerateID()
	refresh, err := newRefreshToken(sessionID)
	if err != nil {
		return TokenPair{}, err
	}

	now := s.now()
	sess := Session{
		ID:          sessionID,
		UserID:      userID,
		RefreshHash: hashToken(refresh),
		ExpiresAt:   now.Add(s.fresh),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return TokenPair{}, fmt.Errorf("auth: create session: %w", err)
	}
	return s.pair(userID, sessionID, refresh, now)
}

// Authenticate verifies an access token. Expired tokens fail with
// ErrTokenExpired, tokens of a revoked session with ErrSessionRevoked, and
// anything else unacceptable with ErrTokenInvalid.
func (s *TokenService) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("auth: %w", auctionerrors.ErrTokenExpired)
		}
		return Identity{}, fmt.Errorf("auth: %w: %v", auctionerrors.ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return Identity{}, fmt.Errorf("auth: %w: missing subject or session", auctionerrors.ErrTokenInvalid)
	}

	sess, err := s.store.Get(ctx, claims.SessionID)
	switch {
	case errors.Is(err, auctionerrors.ErrSessionNotFound):
		return Identity{}, fmt.Errorf("auth: %w", auctionerrors.ErrSessionRevoked)
	case err != nil:
		return Identity{}, fmt.Errorf("auth: load session: %w", err)
	case sess.Revoked:
		return Identity{}, fmt.Errorf("auth: %w", auctionerrors.ErrSessionRevoked)
	}
	return Identity{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}

// Refresh redeems refreshToken for a new pair. The presented token stops
// working; presenting it again after the grace window revokes the whole
// session. Concurrent calls with the same token share one redemption.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	v, err, _ := s.flight.Do(hashToken(refreshToken), func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), refreshToken)
	})
	if err != nil {
		return TokenPair{}, err
	}
	return v.(TokenPair), nil
}

func (s *TokenService) refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	sessionID, ok := sessionOf(refreshToken)
	if !ok {
		return TokenPair{}, fmt.Errorf("auth: %w: malformed refresh token", auctionerrors.ErrTokenInvalid)
	}

	sess, err := s.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, auctionerrors.ErrSessionNotFound):
		return TokenPair{}, fmt.Errorf("auth: %w: unknown session", auctionerrors.ErrTokenInvalid)
	case err != nil:
		return TokenPair{}, fmt.Errorf("auth: load session: %w", err)
	case sess.Revoked:
		return TokenPair{}, fmt.Errorf("auth: %w", auctionerrors.ErrSessionRevoked)
	}

	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		return TokenPair{}, fmt.Errorf("auth: refresh: %w", auctionerrors.ErrTokenExpired)
	}

	next, err := newRefreshToken(sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	err = s.store.Rotate(ctx, sessionID, Rotation{
		OldHash:   hashToken(refreshToken),
		NewHash:   hashToken(next),
		At:        now,
		Grace:     s.grace,
		ExpiresAt: now.Add(s.fresh),
	})
	switch {
	case errors.Is(err, errJustRotated):
		utils.Debug("auth: refresh raced a rotation, issuing access token only", map[string]any{"session_id": sessionID})
		return s.pair(sess.UserID, sessionID, "", now)
	case errors.Is(err, auctionerrors.ErrRefreshTokenReused):
		utils.Warn("auth: refresh token reused, session revoked", map[string]any{"session_id": sessionID, "user_id": sess.UserID})
		return TokenPair{}, fmt.Errorf("auth: %w", err)
	case err != nil:
		return TokenPair{}, fmt.Errorf("auth: %w", err)
	}
	return s.pair(sess.UserID, sessionID, next, now)
}

// PruneSessions drops dead sessions from stores that do not expire them on
// their own.
func (s *TokenService) PruneSessions() int {
	p, ok := s.store.(interface{ Prune(time.Time) int })
	if !ok {
		return 0
	}
	return p.Prune(s.now())
}

// Revoke ends a session family.
func (s *TokenService) Revoke(ctx context.Context, sessionID string) error {
	if err := s.store.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

func (s *TokenService) pair(userID, sessionID, refresh string, now time.Time) (TokenPair, error) {
	exp := now.Add(s.access)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}

	pair := TokenPair{
		AccessToken:     signed,
		AccessExpiresAt: exp,
	}
	if refresh != "" {
		pair.RefreshToken = refresh
		pair.RefreshExpiresAt = now.Add(s.fresh)
	}
	return pair, nil
}

// newRefreshToken returns "<session id>.<256 random bits>".
func newRefreshToken(sessionID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate refresh token: %w", err)
	}
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(buf), nil
}

func sessionOf(refreshToken string) (string, bool) {
	id, secret, ok := strings.Cut(refreshToken, ".")
	if !ok || secret == "" || !utils.IsValidID(id) {
		return "", false
	}
	return id, true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
