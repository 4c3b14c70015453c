package autolock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	locked    map[string]bool
	tallies   map[string]Tally
	lockCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{locked: map[string]bool{}, tallies: map[string]Tally{}}
}

func (s *memoryStore) IsLocked(_ context.Context, postID string) (bool, error) {
	locked, ok := s.locked[postID]
	if !ok {
		return false, ErrPostNotFound
	}
	return locked, nil
}

func (s *memoryStore) Tally(_ context.Context, postID string) (Tally, error) {
	return s.tallies[postID], nil
}

func (s *memoryStore) Lock(_ context.Context, postID string) (bool, error) {
	s.lockCalls++
	if s.locked[postID] {
		return false, nil
	}
	s.locked[postID] = true
	return true, nil
}

func TestRuleTrigger(t *testing.T) {
	rule := DefaultRule()
	testCases := []struct {
		name  string
		tally Tally
		want  string
	}{
		{name: "clean", tally: Tally{}, want: ""},
		{name: "below-threshold", tally: Tally{Violations: 2}, want: ""},
		{name: "at-threshold", tally: Tally{Violations: 3}, want: "threshold"},
		{name: "single-severe", tally: Tally{Violations: 1, Severe: 1}, want: "severe"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.want, rule.Trigger(testCase.tally))
		})
	}

	countOnly := Rule{ViolationThreshold: 2}
	assert.Equal(t, "", countOnly.Trigger(Tally{Violations: 1, Severe: 1}))
	assert.Equal(t, "threshold", countOnly.Trigger(Tally{Violations: 2, Severe: 1}))
}

func TestRuleValidate(t *testing.T) {
	require.NoError(t, DefaultRule().Validate())
	require.ErrorIs(t, Rule{ViolationThreshold: 0}.Validate(), ErrInvalidRule)
}

func TestEvaluateLockTransitionsOnce(t *testing.T) {
	store := newMemoryStore()
	store.locked["post-1"] = false
	engine, err := NewEngine(Config{Store: store, Rule: DefaultRule()})
	require.NoError(t, err)
	ctx := context.Background()

	locked, err := engine.EvaluateLock(ctx, "post-1")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, 0, store.lockCalls)

	store.tallies["post-1"] = Tally{Violations: 3}
	locked, err = engine.EvaluateLock(ctx, "post-1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 1, store.lockCalls)

	// a later clean state cannot reopen the thread and issues no writes.
	store.tallies["post-1"] = Tally{}
	locked, err = engine.EvaluateLock(ctx, "post-1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 1, store.lockCalls)
}

func TestEvaluateLockMissingPost(t *testing.T) {
	engine, err := NewEngine(Config{Store: newMemoryStore(), Rule: DefaultRule()})
	require.NoError(t, err)
	_, err = engine.EvaluateLock(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrPostNotFound))
}
