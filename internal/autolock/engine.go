// Package autolock decides when a thread stops accepting comments. A thread
// moves from open to locked at most once and never back.
package autolock

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrPostNotFound is returned by a Store when the thread does not exist.
	ErrPostNotFound = errors.New("autolock: post not found")
	// ErrInvalidRule indicates a rule that could never or would always trigger.
	ErrInvalidRule = errors.New("autolock: invalid rule")
)

var errMissingStore = errors.New("autolock: store is required")

var lockTransitionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safeyak_autolock_transition_count",
	Help: "Number of threads locked, by trigger",
}, []string{"trigger"})

// Tally is the moderation summary of a thread's comments.
type Tally struct {
	Violations int64
	Severe     int64
}

// Store is the storage capability the engine needs.
type Store interface {
	// IsLocked reports the current lock state or ErrPostNotFound.
	IsLocked(ctx context.Context, postID string) (bool, error)
	// Tally counts violating (blurred or hidden) and severe (hidden) comments.
	Tally(ctx context.Context, postID string) (Tally, error)
	// Lock performs the conditional open to locked transition and reports whether
	// this call changed the row.
	Lock(ctx context.Context, postID string) (bool, error)
}

// Rule is the aggregate trigger evaluated after every comment write.
type Rule struct {
	ViolationThreshold int
	LockOnSevere       bool
}

// DefaultRule locks on the first hidden comment or the third violating one.
func DefaultRule() Rule {
	return Rule{ViolationThreshold: 3, LockOnSevere: true}
}

// Validate rejects thresholds below one.
func (r Rule) Validate() error {
	if r.ViolationThreshold < 1 {
		return fmt.Errorf("%w: violation threshold must be at least 1", ErrInvalidRule)
	}
	return nil
}

// Trigger names the condition that fires, or "" when the thread stays open.
func (r Rule) Trigger(tally Tally) string {
	switch {
	case r.LockOnSevere && tally.Severe >= 1:
		return "severe"
	case tally.Violations >= int64(r.ViolationThreshold):
		return "threshold"
	default:
		return ""
	}
}

// Config wires the engine.
type Config struct {
	Store  Store
	Rule   Rule
	Logger *zap.Logger
}

// Engine evaluates Rule against a thread and applies the lock.
type Engine struct {
	store  Store
	rule   Rule
	logger *zap.Logger
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if err := cfg.Rule.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: cfg.Store, rule: cfg.Rule, logger: logger}, nil
}

// Rule exposes the active trigger.
func (e *Engine) Rule() Rule {
	return e.rule
}

// EvaluateLock returns whether the thread is locked after evaluation. It is safe
// to call after every comment write and never unlocks.
func (e *Engine) EvaluateLock(ctx context.Context, postID string) (bool, error) {
	locked, err := e.store.IsLocked(ctx, postID)
	if err != nil {
		return false, err
	}
	if locked {
		return true, nil
	}

	tally, err := e.store.Tally(ctx, postID)
	if err != nil {
		return false, err
	}
	trigger := e.rule.Trigger(tally)
	if trigger == "" {
		return false, nil
	}

	changed, err := e.store.Lock(ctx, postID)
	if err != nil {
		return false, err
	}
	if changed {
		lockTransitionCount.WithLabelValues(trigger).Inc()
		e.logger.Info("thread locked",
			zap.String("post_id", postID),
			zap.String("trigger", trigger),
			zap.Int64("violations", tally.Violations),
			zap.Int64("severe", tally.Severe))
	}
	return true, nil
}
