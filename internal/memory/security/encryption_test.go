package security

import (
	"testing"

	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionService_RoundTrips(t *testing.T) {
	svc := NewEncryptionService("master-key", 0)

	encrypted, err := svc.EncryptContent("hello world", "user-1")
	require.NoError(t, err)

	plaintext, err := svc.DecryptContent(encrypted, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", plaintext)
}

func TestEncryptionService_RejectsWrongUser(t *testing.T) {
	svc := NewEncryptionService("master-key", 0)

	encrypted, err := svc.EncryptContent("secret", "user-1")
	require.NoError(t, err)

	_, err = svc.DecryptContent(encrypted, "user-2")
	assert.ErrorIs(t, err, errs.Corrupt)
}

func TestEncryptionService_RejectsTruncatedPayload(t *testing.T) {
	svc := NewEncryptionService("master-key", 0)
	_, err := svc.DecryptContent([]byte("short"), "user-1")
	assert.ErrorIs(t, err, errs.Corrupt)
}

func TestEncryptionService_EnforcesMinIterations(t *testing.T) {
	svc := NewEncryptionService("master-key", 1)
	assert.GreaterOrEqual(t, svc.keyIter, MinKeyIterations)
}

func TestEncryptionService_EncryptJSON_RoundTrips(t *testing.T) {
	svc := NewEncryptionService("master-key", 0)

	type payload struct {
		Name string `json:"name"`
	}
	encoded, err := svc.EncryptJSON(payload{Name: "alice"}, "user-1")
	require.NoError(t, err)

	var out payload
	require.NoError(t, svc.DecryptJSON(encoded, "user-1", &out))
	assert.Equal(t, "alice", out.Name)
}

func TestGenerateSecureToken_ProducesDistinctTokens(t *testing.T) {
	a, err := GenerateSecureToken(32)
	require.NoError(t, err)
	b, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
