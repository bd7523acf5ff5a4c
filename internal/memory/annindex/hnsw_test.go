package annindex

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randVec(r *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestIndex_InsertAndSearchFindsExactMatch(t *testing.T) {
	idx := New(Config{})
	ctx := context.Background()
	r := rand.New(rand.NewSource(42))

	var vectors [][]float32
	for i := 0; i < 200; i++ {
		v := randVec(r, 16)
		vectors = append(vectors, v)
		idx.Insert(ctx, idForIndex(i), v)
	}

	target := vectors[50]
	results := idx.Search(ctx, target, 5)
	require.NotEmpty(t, results)
	assert.Equal(t, idForIndex(50), results[0].MemoryID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestIndex_SearchRespectsK(t *testing.T) {
	idx := New(Config{})
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		idx.Insert(ctx, idForIndex(i), randVec(r, 8))
	}
	results := idx.Search(ctx, randVec(r, 8), 10)
	assert.LessOrEqual(t, len(results), 10)
}

func TestIndex_DeleteRemovesFromResults(t *testing.T) {
	idx := New(Config{})
	ctx := context.Background()
	r := rand.New(rand.NewSource(3))

	var vectors [][]float32
	for i := 0; i < 30; i++ {
		v := randVec(r, 8)
		vectors = append(vectors, v)
		idx.Insert(ctx, idForIndex(i), v)
	}

	idx.Delete(ctx, idForIndex(5))
	results := idx.Search(ctx, vectors[5], 30)
	for _, res := range results {
		assert.NotEqual(t, idForIndex(5), res.MemoryID)
	}
}

func TestIndex_InsertIsIdempotentByMemoryID(t *testing.T) {
	idx := New(Config{})
	ctx := context.Background()

	idx.Insert(ctx, "m1", []float32{1, 0, 0})
	idx.Insert(ctx, "m1", []float32{0, 1, 0})

	assert.Equal(t, 1, idx.Len())
}

func TestManager_SearchNeverCrossesUsers(t *testing.T) {
	mgr := NewManager(Config{})
	ctx := context.Background()

	mgr.Insert(ctx, "user-a", "mem-a", []float32{1, 0, 0})
	mgr.Insert(ctx, "user-b", "mem-b", []float32{1, 0, 0})

	resultsA := mgr.Search(ctx, "user-a", []float32{1, 0, 0}, 10)
	require.Len(t, resultsA, 1)
	assert.Equal(t, "mem-a", resultsA[0].MemoryID)
}

func idForIndex(i int) string {
	return "mem-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
