package moderation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Severity ranks a verdict for strike accounting.
type Severity string

const (
	SeverityNone Severity = "none"
	SeverityBlur Severity = "blur"
	SeverityHide Severity = "hide"
)

// Verdict is the normalized outcome of classifying a piece of text.
// Its fields are copied onto the post or comment it governs.
type Verdict struct {
	Allowed  bool    `json:"allowed"`
	Blur     bool    `json:"blur"`
	Hide     bool    `json:"hide"`
	Reason   *string `json:"reason"`
	Toxicity float64 `json:"toxicity"`
}

// Violation reports whether the verdict obscures the content in any way.
func (v Verdict) Violation() bool {
	return v.Blur || v.Hide
}

// Severity returns the strongest restriction carried by the verdict.
func (v Verdict) Severity() Severity {
	switch {
	case v.Hide:
		return SeverityHide
	case v.Blur:
		return SeverityBlur
	default:
		return SeverityNone
	}
}

// ReasonText returns the reason or an empty string.
func (v Verdict) ReasonText() string {
	if v.Reason == nil {
		return ""
	}
	return *v.Reason
}

// Fingerprint is a stable digest of the visibility decision.
func (v Verdict) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("blur=%t;hide=%t;reason=%s", v.Blur, v.Hide, v.ReasonText())))
	return hex.EncodeToString(sum[:8])
}

func reasonPtr(reason string) *string {
	return &reason
}
