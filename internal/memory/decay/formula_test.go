package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecompute_MatchesHalfLifeFormula(t *testing.T) {
	halfLife := 30 * 24 * time.Hour
	age := 120 * 24 * time.Hour
	got := recompute(age, halfLife, 0.1, 0, 0.4)
	assert.LessOrEqual(t, got, 0.125)
	assert.InDelta(t, 0.0459, got, 0.01)
}

func TestRecompute_NoAgeYieldsImportanceBoostOnly(t *testing.T) {
	got := recompute(0, 30*24*time.Hour, 0, 0, 0.5)
	assert.InDelta(t, 0.75, got, 0.01)
}

func TestRecompute_HigherAccessFrequencySlowsDecay(t *testing.T) {
	age := 60 * 24 * time.Hour
	halfLife := 30 * 24 * time.Hour
	low := recompute(age, halfLife, 0, 0, 0.5)
	high := recompute(age, halfLife, 0, 100, 0.5)
	assert.Greater(t, high, low)
}

func TestRecompute_ClampsToUnitRange(t *testing.T) {
	got := recompute(0, 30*24*time.Hour, 1.0, 1000, 1.0)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}
