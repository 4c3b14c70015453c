package moderation

import (
	"context"
	"errors"
	"strings"
)

// ErrScorerUnconfigured signals that no scoring credentials exist. It is distinct
// from a scorer that is configured but unreachable.
var ErrScorerUnconfigured = errors.New("moderation: scorer not configured")

// Scores maps classifier attributes (toxic, insult, threat, ...) to probabilities.
type Scores map[string]float64

// Max returns the highest attribute probability, ignoring negated labels such as "non-toxic".
func (s Scores) Max() float64 {
	highest := 0.0
	for label, score := range s {
		if isNegatedLabel(label) {
			continue
		}
		score = clampProbability(score)
		if score > highest {
			highest = score
		}
	}
	return highest
}

func isNegatedLabel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.HasPrefix(label, "non-") || strings.HasPrefix(label, "non_")
}

// Scorer is the external toxicity classifier.
type Scorer interface {
	Score(ctx context.Context, text string) (Scores, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, text string) (Scores, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, text string) (Scores, error) {
	return f(ctx, text)
}
