package storageexport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Key_PartitionsByUserThenMemory(t *testing.T) {
	c := &Client{prefix: "gdpr-exports"}
	key := c.key(Snapshot{UserID: "u1", MemoryID: "m1"})
	assert.Equal(t, "gdpr-exports/u1/m1.json", key)
}

func TestMarshalSnapshot_NeverCarriesPlaintextField(t *testing.T) {
	now := time.Now()
	body, err := marshalSnapshot(Snapshot{
		MemoryID:            "m1",
		UserID:              "u1",
		SealedContent:       []byte("ciphertext-bytes"),
		EncryptionAlgorithm: "aes-256-gcm",
		CreatedAt:           now,
		PurgedAt:            now,
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "m1", decoded["memory_id"])
	assert.Equal(t, "u1", decoded["user_id"])
	assert.Equal(t, "aes-256-gcm", decoded["encryption_algorithm"])
	assert.NotContains(t, decoded, "plaintext")
	assert.NotContains(t, decoded, "content")
}

func TestMarshalSnapshot_RoundTripsSealedContent(t *testing.T) {
	sealed := []byte{0x00, 0x01, 0xff, 0x10}
	body, err := marshalSnapshot(Snapshot{MemoryID: "m1", UserID: "u1", SealedContent: sealed})
	require.NoError(t, err)

	var env snapshotEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, sealed, env.SealedContentBase64, "json's automatic base64 encoding for []byte fields must round-trip binary sealed content exactly")
}
