package sealing

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeCompress_SkipsShortContent(t *testing.T) {
	data := []byte("short content")
	out, compressed, err := maybeCompress(data)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, data, out)
}

func TestMaybeCompress_CompressesRepetitiveLongContent(t *testing.T) {
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40))
	out, compressed, err := maybeCompress(data)
	require.NoError(t, err)
	require.True(t, compressed)
	assert.Less(t, len(out), len(data))

	back, err := decompress(out)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestMaybeCompress_SkipsIncompressibleLongContent(t *testing.T) {
	// Chained SHA-256 digests have no repetition for flate to exploit, so
	// the deflated size stays above the ratio ceiling and this exercises
	// the "keep original" branch.
	var data []byte
	digest := sha256.Sum256([]byte("incompressible"))
	for len(data) < 640 {
		data = append(data, digest[:]...)
		digest = sha256.Sum256(digest[:])
	}
	out, compressed, err := maybeCompress(data)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, data, out)
}
