package store

import (
	"testing"

	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackVector_RoundTrips(t *testing.T) {
	v := make([]float32, model.EmbeddingDimensions)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	packed, err := PackVector(v)
	require.NoError(t, err)
	assert.Len(t, packed, model.EmbeddingDimensions*4)

	got, err := UnpackVector(packed)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestPackVector_RejectsWrongDimensions(t *testing.T) {
	_, err := PackVector([]float32{1, 2, 3})
	assert.Error(t, err)
}

func TestUnpackVector_RejectsMisalignedBytes(t *testing.T) {
	_, err := UnpackVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("importance_score"))
	assert.Error(t, ValidateIdentifier("user_id; DROP TABLE memories;"))
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash("hello")
	b := ContentHash("hello")
	c := ContentHash("world")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
