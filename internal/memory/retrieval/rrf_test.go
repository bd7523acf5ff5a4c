package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReciprocalRankFusion_FavorsAgreement(t *testing.T) {
	semantic := []string{"a", "b", "c"}
	keyword := []string{"a", "c", "b"}
	fused := ReciprocalRankFusion(semantic, keyword, 60, 0.7, 0.3)

	assert.Greater(t, fused["a"], fused["b"])
	assert.Greater(t, fused["a"], fused["c"])
}

func TestReciprocalRankFusion_DefaultsWhenWeightsZero(t *testing.T) {
	fused := ReciprocalRankFusion([]string{"a"}, []string{"a"}, 0, 0, 0)
	assert.InDelta(t, 1.0/61, fused["a"], 1e-9)
}
