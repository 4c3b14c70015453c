package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForBoundaries(t *testing.T) {
	testCases := []struct {
		score int
		label string
	}{
		{score: -50, label: "Rookie"},
		{score: 0, label: "Rookie"},
		{score: 20, label: "Rookie"},
		{score: 21, label: "Active"},
		{score: 50, label: "Active"},
		{score: 51, label: "Trusted"},
		{score: 100, label: "Trusted"},
		{score: 101, label: "Elite"},
		{score: 250, label: "Elite"},
		{score: 251, label: "Legend"},
		{score: 1_000_001, label: "Legend"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.label, TierFor(testCase.score).Label, "score %d", testCase.score)
	}
}

func TestTierForIsMonotonic(t *testing.T) {
	previous := TierFor(-1000)
	for score := -999; score <= 1000; score++ {
		current := TierFor(score)
		assert.GreaterOrEqual(t, current.Rank, previous.Rank, "tier regressed at score %d", score)
		previous = current
	}
}

func TestTierEmojiTags(t *testing.T) {
	assert.Equal(t, "🐣", TierFor(0).Emoji)
	assert.Equal(t, "🔥", TierFor(21).Emoji)
	assert.Equal(t, "⭐", TierFor(51).Emoji)
	assert.Equal(t, "💎", TierFor(101).Emoji)
	assert.Equal(t, "👑", TierFor(251).Emoji)
}

func TestProgress(t *testing.T) {
	progress := Progress(36)
	assert.Equal(t, "Active", progress.Tier.Label)
	assert.Equal(t, "Trusted", progress.NextLabel)
	assert.Equal(t, 51, progress.NextFloor)
	assert.InDelta(t, 50.0, progress.Percent, 1e-9)

	assert.InDelta(t, 0.0, Progress(-40).Percent, 1e-9)
	assert.InDelta(t, 0.0, Progress(0).Percent, 1e-9)

	legend := Progress(300)
	assert.Equal(t, 100.0, legend.Percent)
	assert.Equal(t, MaxTierLabel, legend.NextLabel)

	for score := -100; score <= 400; score++ {
		percent := Progress(score).Percent
		assert.True(t, percent >= 0 && percent <= 100, "percent %f out of range for %d", percent, score)
	}
}
