package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBM25Scorer_RanksExactMatchHigher(t *testing.T) {
	docs := map[string]string{
		"a": "the cat sat on the mat",
		"b": "a completely unrelated sentence about boats",
	}
	scorer := NewBM25Scorer(docs)
	assert.Greater(t, scorer.Score("a", "cat mat"), scorer.Score("b", "cat mat"))
}

func TestBM25Scorer_UnknownTermScoresZeroContribution(t *testing.T) {
	docs := map[string]string{"a": "hello world"}
	scorer := NewBM25Scorer(docs)
	assert.Equal(t, 0.0, scorer.Score("a", "zzz"))
}

func TestBM25Scorer_EmptyCorpus(t *testing.T) {
	scorer := NewBM25Scorer(map[string]string{})
	assert.Equal(t, 0.0, scorer.Score("missing", "anything"))
}
