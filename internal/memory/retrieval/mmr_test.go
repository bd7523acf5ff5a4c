package retrieval

import (
	"testing"

	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiversityRerank_PenalizesNearDuplicates(t *testing.T) {
	candidates := []Scored{
		{Memory: &model.Memory{ID: "a", Embedding: []float32{1, 0, 0}}, Composite: 0.9},
		{Memory: &model.Memory{ID: "b", Embedding: []float32{1, 0, 0}}, Composite: 0.85}, // near-dup of a
		{Memory: &model.Memory{ID: "c", Embedding: []float32{0, 1, 0}}, Composite: 0.8},  // distinct
	}
	out := DiversityRerank(candidates, 0.5)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Memory.ID)
	assert.Equal(t, "c", out[1].Memory.ID)
	assert.Equal(t, "b", out[2].Memory.ID)
}

func TestDiversityRerank_SingleCandidate(t *testing.T) {
	candidates := []Scored{{Memory: &model.Memory{ID: "a"}, Composite: 1.0}}
	out := DiversityRerank(candidates, 0.1)
	assert.Len(t, out, 1)
}
