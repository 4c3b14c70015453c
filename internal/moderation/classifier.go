package moderation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const defaultScorerTimeout = 5 * time.Second

// ClassifierConfig wires a scorer to a policy.
type ClassifierConfig struct {
	Scorer  Scorer
	Policy  Policy
	Timeout time.Duration
	Logger  *zap.Logger
}

// Classifier turns text into a Verdict. Scorer failures never escape it.
type Classifier struct {
	scorer  Scorer
	policy  Policy
	timeout time.Duration
	logger  *zap.Logger
}

// NewClassifier validates the policy and returns a Classifier. A nil scorer is
// allowed and is treated as an unconfigured backend.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultScorerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		scorer:  cfg.Scorer,
		policy:  cfg.Policy,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Policy exposes the active thresholds.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify scores text and applies the policy.
func (c *Classifier) Classify(ctx context.Context, text string) Verdict {
	verdict := c.classify(ctx, NormalizeText(text))
	verdictCount.WithLabelValues(verdictLabel(verdict)).Inc()
	return verdict
}

func (c *Classifier) classify(ctx context.Context, text string) Verdict {
	if c.scorer == nil {
		return c.policy.UnconfiguredVerdict()
	}

	scoreCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	scores, err := c.scorer.Score(scoreCtx, text)
	if errors.Is(err, ErrScorerUnconfigured) {
		c.logger.Warn("moderation scorer not configured", zap.String("mode", string(c.policy.Unconfigured)))
		return c.policy.UnconfiguredVerdict()
	}
	if err != nil {
		c.logger.Warn("moderation scorer unavailable, failing open", zap.Error(err))
		return c.policy.Unavailable()
	}
	return c.policy.Decide(scores.Max())
}

// NormalizeText trims and NFC-normalizes text before scoring.
func NormalizeText(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

func verdictLabel(v Verdict) string {
	switch {
	case v.Hide:
		return "hide"
	case v.Blur:
		return "blur"
	case v.ReasonText() == ReasonUnavailable:
		return "unavailable"
	default:
		return "allow"
	}
}
