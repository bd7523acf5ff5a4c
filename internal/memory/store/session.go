package store

import (
	"context"
	"time"

	"github.com/driftline/memorycore/internal/memory/errs"
)

// CreateSession records a new active session keyed by the sha-256 hash
// of its bearer token — the raw token is never persisted.
func (s *Store) CreateSession(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memorycore.sessions (token_hash, user_id, created_at, expires_at)
VALUES ($1, $2, now(), now() + $3::interval)`,
		tokenHash, userID, ttl.String())
	return err
}

// SessionUserID returns the user_id bound to tokenHash, or
// errs.Unauthorized if the session is absent, expired, or revoked.
func (s *Store) SessionUserID(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.GetContext(ctx, &userID, `
SELECT user_id FROM memorycore.sessions
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`, tokenHash)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", errs.Unauthorized
		}
		return "", err
	}
	return userID, nil
}

// RevokeSession invalidates a session ahead of its natural expiry (logout).
func (s *Store) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE memorycore.sessions SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return err
}
