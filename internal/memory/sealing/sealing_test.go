package sealing

import (
	"bytes"
	"compress/flate"
	"strings"
	"testing"

	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestUnseal_PlaintextPassesThroughUnchanged(t *testing.T) {
	s := NewSealer(nil)
	m := &model.Memory{Content: "hello world"}
	require.NoError(t, s.Unseal(m))
	assert.Equal(t, "hello world", m.Content)
}

func TestUnseal_FlateOnlyInflates(t *testing.T) {
	s := NewSealer(nil)
	plain := []byte("some long repeated text some long repeated text some long repeated text")
	m := &model.Memory{
		Content:    string(deflate(t, plain)),
		Encryption: &model.EncryptionMetadata{Algorithm: "flate"},
	}
	require.NoError(t, s.Unseal(m))
	assert.Equal(t, string(plain), m.Content)
}

func TestUnseal_EncryptedRoundTrips(t *testing.T) {
	enc := security.NewEncryptionService("a-test-master-key", 0)
	s := NewSealer(enc)

	sealed, err := enc.EncryptContent("top secret content", "user-1")
	require.NoError(t, err)

	m := &model.Memory{
		UserID:     "user-1",
		Content:    string(sealed),
		Encryption: &model.EncryptionMetadata{Algorithm: "aes-256-gcm"},
	}
	require.NoError(t, s.Unseal(m))
	assert.Equal(t, "top secret content", m.Content)
}

func TestUnseal_EncryptedAndCompressedRoundTrips(t *testing.T) {
	enc := security.NewEncryptionService("a-test-master-key", 0)
	s := NewSealer(enc)

	plain := []byte("some long repeated text some long repeated text some long repeated text")
	compressed := deflate(t, plain)
	sealed, err := enc.EncryptContent(string(compressed), "user-1")
	require.NoError(t, err)

	m := &model.Memory{
		UserID:     "user-1",
		Content:    string(sealed),
		Encryption: &model.EncryptionMetadata{Algorithm: "aes-256-gcm+flate"},
	}
	require.NoError(t, s.Unseal(m))
	assert.Equal(t, string(plain), m.Content)
}

func TestUnseal_EncryptedWithoutServiceConfiguredErrors(t *testing.T) {
	s := NewSealer(nil)
	m := &model.Memory{
		Content:    "ciphertext",
		Encryption: &model.EncryptionMetadata{Algorithm: "aes-256-gcm"},
	}
	err := s.Unseal(m)
	require.Error(t, err)
}

func TestSeal_RoundTripsPlaintextOnlyWhenShort(t *testing.T) {
	s := NewSealer(nil)
	data, algorithm, err := s.Seal("short", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "", algorithm)
	assert.Equal(t, "short", string(data))
}

func TestSeal_Unseal_RoundTripsCompressedOnly(t *testing.T) {
	s := NewSealer(nil)
	plain := strings.Repeat("some long repeated text ", 30)
	data, algorithm, err := s.Seal(plain, "user-1")
	require.NoError(t, err)
	require.Equal(t, "flate", algorithm)

	m := &model.Memory{UserID: "user-1", Content: string(data), Encryption: &model.EncryptionMetadata{Algorithm: algorithm}}
	require.NoError(t, s.Unseal(m))
	assert.Equal(t, plain, m.Content)
}

func TestSeal_Unseal_RoundTripsEncryptedAndCompressed(t *testing.T) {
	enc := security.NewEncryptionService("a-test-master-key", 0)
	s := NewSealer(enc)
	plain := strings.Repeat("some long repeated text ", 30)
	data, algorithm, err := s.Seal(plain, "user-1")
	require.NoError(t, err)
	require.Equal(t, "aes-256-gcm+flate", algorithm)

	m := &model.Memory{UserID: "user-1", Content: string(data), Encryption: &model.EncryptionMetadata{Algorithm: algorithm}}
	require.NoError(t, s.Unseal(m))
	assert.Equal(t, plain, m.Content)
}
