package retrieval

import (
	"testing"
	"time"

	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/stretchr/testify/assert"
)

func TestTemporalRelevance_StepFunction(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, TemporalRelevance(now.Add(-12*time.Hour), now))
	assert.Equal(t, 0.8, TemporalRelevance(now.Add(-5*24*time.Hour), now))
	assert.Equal(t, 0.6, TemporalRelevance(now.Add(-20*24*time.Hour), now))
	assert.Equal(t, 0.4, TemporalRelevance(now.Add(-60*24*time.Hour), now))
	assert.Equal(t, 0.2, TemporalRelevance(now.Add(-200*24*time.Hour), now))
}

func TestAnswerBoost_OnlyForQuestionsWithEntities(t *testing.T) {
	lex := NewLexicon(nil, nil, []string{"Alice"})
	assert.Equal(t, maxAnswerBoost, AnswerBoost(lex, "who is Alice?", "Alice is a friend from college"))
	assert.Equal(t, 0.0, AnswerBoost(lex, "Alice is a friend from college", "Alice went to the market"))
	assert.Equal(t, 0.0, AnswerBoost(lex, "who is Alice?", "I don't know anyone by that name"))
}

func TestComposite_AppliesClusterBiasAndDecay(t *testing.T) {
	lex := DefaultLexicon()
	m := &model.Memory{
		Content:         "a plain statement",
		ImportanceScore: 0.5,
		DecayFactor:     1.0,
		AccessFrequency: 0,
		CreatedAt:       time.Now(),
	}
	now := time.Now()
	withoutBias := Composite(lex, m, 0.4, "a plain statement", false, now)
	withBias := Composite(lex, m, 0.4, "a plain statement", true, now)
	assert.Greater(t, withBias, withoutBias)

	m.DecayFactor = 0
	assert.Equal(t, 0.0, Composite(lex, m, 0.4, "a plain statement", false, now))
}

func TestPassesGate(t *testing.T) {
	low := &model.Memory{ImportanceScore: 0.1}
	high := &model.Memory{ImportanceScore: 0.9}
	assert.False(t, PassesGate(0.2, low))
	assert.True(t, PassesGate(0.5, low))
	assert.True(t, PassesGate(0.1, high))
}
