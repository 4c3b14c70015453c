package moderation

import (
	"errors"
	"fmt"
)

const (
	DefaultBlurThreshold = 0.60
	DefaultHideThreshold = 0.90

	ReasonSevere       = "Severe toxicity detected"
	ReasonOffensive    = "Offensive content detected"
	ReasonUnavailable  = "Moderation service unavailable"
	ReasonUnconfigured = "Moderation service unconfigured"
)

// UnconfiguredMode selects the verdict used when no scorer credentials exist.
type UnconfiguredMode string

const (
	UnconfiguredFailOpen   UnconfiguredMode = "fail_open"
	UnconfiguredFailClosed UnconfiguredMode = "fail_closed"
)

// ErrInvalidPolicy indicates inconsistent thresholds or an unknown mode.
var ErrInvalidPolicy = errors.New("moderation: invalid policy")

// Policy maps a toxicity probability onto a verdict. It holds no state.
type Policy struct {
	BlurThreshold float64
	HideThreshold float64
	Unconfigured  UnconfiguredMode
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		BlurThreshold: DefaultBlurThreshold,
		HideThreshold: DefaultHideThreshold,
		Unconfigured:  UnconfiguredFailOpen,
	}
}

// ParseUnconfiguredMode validates a configured mode string.
func ParseUnconfiguredMode(value string) (UnconfiguredMode, error) {
	switch UnconfiguredMode(value) {
	case UnconfiguredFailOpen, "":
		return UnconfiguredFailOpen, nil
	case UnconfiguredFailClosed:
		return UnconfiguredFailClosed, nil
	default:
		return "", fmt.Errorf("%w: unknown unconfigured mode %q", ErrInvalidPolicy, value)
	}
}

// Validate checks 0 <= blur < hide <= 1.
func (p Policy) Validate() error {
	if p.BlurThreshold < 0 || p.HideThreshold > 1 {
		return fmt.Errorf("%w: thresholds must lie in [0,1]", ErrInvalidPolicy)
	}
	if p.BlurThreshold >= p.HideThreshold {
		return fmt.Errorf("%w: blur threshold %.2f must be below hide threshold %.2f", ErrInvalidPolicy, p.BlurThreshold, p.HideThreshold)
	}
	if _, err := ParseUnconfiguredMode(string(p.Unconfigured)); err != nil {
		return err
	}
	return nil
}

// Decide applies the thresholds to a toxicity probability.
func (p Policy) Decide(toxicity float64) Verdict {
	toxicity = clampProbability(toxicity)
	switch {
	case toxicity > p.HideThreshold:
		return Verdict{Allowed: false, Hide: true, Reason: reasonPtr(ReasonSevere), Toxicity: toxicity}
	case toxicity > p.BlurThreshold:
		return Verdict{Allowed: true, Blur: true, Reason: reasonPtr(ReasonOffensive), Toxicity: toxicity}
	default:
		return Verdict{Allowed: true, Toxicity: toxicity}
	}
}

// Unavailable is the fail-open verdict used when the scorer errors or times out.
func (p Policy) Unavailable() Verdict {
	return Verdict{Allowed: true, Toxicity: 0, Reason: reasonPtr(ReasonUnavailable)}
}

// UnconfiguredVerdict is used when no scoring capability is configured at all.
func (p Policy) UnconfiguredVerdict() Verdict {
	if p.Unconfigured == UnconfiguredFailClosed {
		return Verdict{Allowed: false, Hide: true, Toxicity: 0, Reason: reasonPtr(ReasonUnconfigured)}
	}
	return p.Unavailable()
}

func clampProbability(value float64) float64 {
	if value != value || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
