package content

import (
	"context"
	"errors"
	"testing"
)

func TestCastVoteCountersAndSignals(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	post := fixture.mustCreatePost(t, "author-a", "vote on me")

	voted, err := fixture.service.CastVote(ctx, post.ID, "voter-1", 1)
	if err != nil {
		t.Fatalf("upvote failed: %v", err)
	}
	if voted.Upvotes != 1 || voted.Downvotes != 0 || voted.Score != 1 {
		t.Fatalf("unexpected counters after upvote: %+v", voted)
	}

	repeated, err := fixture.service.CastVote(ctx, post.ID, "voter-1", 1)
	if err != nil {
		t.Fatalf("repeat upvote failed: %v", err)
	}
	if repeated.Upvotes != 1 || repeated.Score != 1 {
		t.Fatalf("expected repeat vote to be a no-op, got %+v", repeated)
	}

	switched, err := fixture.service.CastVote(ctx, post.ID, "voter-1", -1)
	if err != nil {
		t.Fatalf("downvote failed: %v", err)
	}
	if switched.Upvotes != 0 || switched.Downvotes != 1 || switched.Score != -1 {
		t.Fatalf("unexpected counters after switching: %+v", switched)
	}

	// switching back must not grant the upvote signal a second time.
	if _, err := fixture.service.CastVote(ctx, post.ID, "voter-1", 1); err != nil {
		t.Fatalf("switch back failed: %v", err)
	}
	if got := fixture.reputationOf(t, "author-a"); got != 1 {
		t.Fatalf("expected reputation 1, got %d", got)
	}

	if _, err := fixture.service.CastVote(ctx, post.ID, "author-a", 1); err != nil {
		t.Fatalf("self vote failed: %v", err)
	}
	if got := fixture.reputationOf(t, "author-a"); got != 1 {
		t.Fatalf("expected self vote to carry no reputation, got %d", got)
	}
}

func TestCastVoteValidation(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	post := fixture.mustCreatePost(t, "author-a", "vote on me")

	if _, err := fixture.service.CastVote(ctx, post.ID, "voter-1", 2); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := fixture.service.CastVote(ctx, post.ID, "", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing voter, got %v", err)
	}
	if _, err := fixture.service.CastVote(ctx, "missing", "voter-1", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleBookmarkCannotFarmReputation(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	post := fixture.mustCreatePost(t, "author-a", "save me")

	added, err := fixture.service.ToggleBookmark(ctx, post.ID, "reader-1")
	if err != nil {
		t.Fatalf("bookmark failed: %v", err)
	}
	if !added.Bookmarked || added.Post.BookmarksCount != 1 {
		t.Fatalf("expected bookmark to be added, got %+v", added)
	}

	removed, err := fixture.service.ToggleBookmark(ctx, post.ID, "reader-1")
	if err != nil {
		t.Fatalf("unbookmark failed: %v", err)
	}
	if removed.Bookmarked || removed.Post.BookmarksCount != 0 {
		t.Fatalf("expected bookmark to be removed, got %+v", removed)
	}

	if _, err := fixture.service.ToggleBookmark(ctx, post.ID, "reader-1"); err != nil {
		t.Fatalf("re-bookmark failed: %v", err)
	}
	if got := fixture.reputationOf(t, "author-a"); got != 2 {
		t.Fatalf("expected a single bookmark reward of 2, got %d", got)
	}
}
