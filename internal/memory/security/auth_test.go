package security

import (
	"context"
	"testing"
	"time"

	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionStore struct {
	byHash map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byHash: map[string]string{}}
}

func (f *fakeSessionStore) CreateSession(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	f.byHash[tokenHash] = userID
	return nil
}

func (f *fakeSessionStore) SessionUserID(ctx context.Context, tokenHash string) (string, error) {
	userID, ok := f.byHash[tokenHash]
	if !ok {
		return "", errs.Unauthorized
	}
	return userID, nil
}

func (f *fakeSessionStore) RevokeSession(ctx context.Context, tokenHash string) error {
	delete(f.byHash, tokenHash)
	return nil
}

func TestAuthenticator_IssueAndAuthenticate(t *testing.T) {
	auth := NewAuthenticator(newFakeSessionStore(), time.Hour)

	token, err := auth.IssueToken(context.Background(), "user-1")
	require.NoError(t, err)

	userID, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAuthenticator_EmptyTokenIsUnauthorized(t *testing.T) {
	auth := NewAuthenticator(newFakeSessionStore(), time.Hour)
	_, err := auth.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, errs.Unauthorized)
}

func TestAuthenticator_UnknownTokenIsUnauthorized(t *testing.T) {
	auth := NewAuthenticator(newFakeSessionStore(), time.Hour)
	_, err := auth.Authenticate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, errs.Unauthorized)
}

func TestAuthenticator_RevokeInvalidatesToken(t *testing.T) {
	store := newFakeSessionStore()
	auth := NewAuthenticator(store, time.Hour)

	token, err := auth.IssueToken(context.Background(), "user-1")
	require.NoError(t, err)

	require.NoError(t, auth.Revoke(context.Background(), token))

	_, err = auth.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, errs.Unauthorized)
}
