package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/driftline/memorycore/internal/memory/errs"
)

// SessionStore is the persistence surface Authenticator needs. store.Store
// satisfies it.
type SessionStore interface {
	CreateSession(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	SessionUserID(ctx context.Context, tokenHash string) (string, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

// DefaultSessionTTL bounds how long an issued token remains valid.
const DefaultSessionTTL = 24 * time.Hour

// Authenticator issues and validates opaque bearer tokens. There is no
// anonymous fallback: a missing, expired, or revoked token always
// surfaces errs.Unauthorized rather than proceeding with a default
// identity.
type Authenticator struct {
	sessions SessionStore
	ttl      time.Duration
}

// NewAuthenticator builds an Authenticator. ttl of zero uses DefaultSessionTTL.
func NewAuthenticator(sessions SessionStore, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Authenticator{sessions: sessions, ttl: ttl}
}

// hashToken returns the persisted form of a bearer token: its caller
// never needs the raw token to come back out of storage.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueToken creates a new session for userID and returns the bearer
// token to hand to the caller. The token itself is never stored.
func (a *Authenticator) IssueToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errs.Unauthorized
	}
	token, err := GenerateSecureToken(32)
	if err != nil {
		return "", err
	}
	if err := a.sessions.CreateSession(ctx, hashToken(token), userID, a.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves a bearer token to its owning user_id. An empty
// token, or one with no active session, returns errs.Unauthorized —
// there is no anonymous identity to fall back to.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errs.Unauthorized
	}
	return a.sessions.SessionUserID(ctx, hashToken(token))
}

// Revoke ends a session early (logout, suspected compromise).
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return errs.Unauthorized
	}
	return a.sessions.RevokeSession(ctx, hashToken(token))
}
