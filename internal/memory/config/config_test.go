package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FailsClosedWithoutJWTSecret(t *testing.T) {
	clearMemorycoreEnv(t)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_FailsClosedWithoutMasterKeyWhenEncryptionEnabled(t *testing.T) {
	clearMemorycoreEnv(t)
	t.Setenv("MEMORYCORE_SECURITY_JWT_SECRET", "test-secret")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master_encryption_key")
}

func TestLoad_SucceedsWithRequiredSecretsAndAppliesDefaults(t *testing.T) {
	clearMemorycoreEnv(t)
	t.Setenv("MEMORYCORE_SECURITY_JWT_SECRET", "test-secret")
	t.Setenv("MEMORYCORE_SECURITY_MASTER_ENCRYPTION_KEY", "test-master-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.Embedding.Dims)
	assert.Equal(t, 15, cfg.Pool.MaxOpenConns)
	assert.Equal(t, 30, cfg.Decay.HalfLifeDays)
	assert.Equal(t, 0.3, cfg.Retrieval.RelevanceThreshold)
	assert.Equal(t, 0.8, cfg.Retrieval.HighImportanceBypass)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	clearMemorycoreEnv(t)
	t.Setenv("MEMORYCORE_SECURITY_JWT_SECRET", "test-secret")
	t.Setenv("MEMORYCORE_SECURITY_MASTER_ENCRYPTION_KEY", "test-master-key")
	t.Setenv("MEMORYCORE_RETRIEVAL_DEFAULT_K", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Retrieval.DefaultK)
}

func TestValidate_RejectsWrongEmbeddingDims(t *testing.T) {
	cfg := &Config{
		Security: SecurityConfig{JWTSecret: "s"},
		Embedding: EmbeddingConfig{Dims: 512},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "768")
}

func TestDecayConfig_DayConversions(t *testing.T) {
	c := DecayConfig{HalfLifeDays: 30, CleanupMinAgeDays: 30, RetentionDays: 90}
	assert.Equal(t, 30*24*60*60, int(c.HalfLifeDuration().Seconds()))
	assert.Equal(t, 30*24*60*60, int(c.CleanupMinAgeDuration().Seconds()))
	assert.Equal(t, 90*24*60*60, int(c.RetentionHorizonDuration().Seconds()))
}

func clearMemorycoreEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if len(e) > 11 && e[:11] == "MEMORYCORE_" {
			key := e[:indexOf(e, '=')]
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
}

func indexOf(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}
