package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_Importance_BracketsAndCaps(t *testing.T) {
	s := NewScorer(nil)

	short := s.Importance("too short", nil)
	long := s.Importance(strings.Repeat("a fairly long sentence about nothing in particular. ", 20), nil)
	assert.Less(t, short, long)

	withFlags := s.Importance("a plain statement", map[string]bool{"pinned": true})
	without := s.Importance("a plain statement", nil)
	assert.Greater(t, withFlags, without)

	saturated := s.Importance(strings.Repeat("why???????????????????? ", 30), map[string]bool{"a": true, "b": true, "c": true, "d": true, "e": true})
	assert.LessOrEqual(t, saturated, 1.0)
}

func TestScorer_Importance_QuestionMarksBoost(t *testing.T) {
	s := NewScorer(nil)
	withQuestion := s.Importance("why did that happen right now?", nil)
	without := s.Importance("why did that happen right now", nil)
	assert.Greater(t, withQuestion, without)
}

func TestScorer_EmotionalWeight_TonesAndCaps(t *testing.T) {
	s := NewScorer(nil)
	positive := s.EmotionalWeight("I am so happy and grateful today")
	negative := s.EmotionalWeight("I am so angry and upset today")
	neutral := s.EmotionalWeight("the train departs at noon")

	assert.Greater(t, positive, neutral)
	assert.Greater(t, negative, neutral)
	assert.GreaterOrEqual(t, negative, positive, "negative tone is weighted at least as heavily as positive")

	saturated := s.EmotionalWeight(strings.Repeat("I hate this so much!!!!!!!!!! ", 10))
	assert.LessOrEqual(t, saturated, 1.0)
}

func TestContainsPersonalPronoun(t *testing.T) {
	assert.True(t, containsPersonalPronoun("I went to the store"))
	assert.True(t, containsPersonalPronoun("we should talk about this"))
	assert.False(t, containsPersonalPronoun("the weather today is nice"))
}
