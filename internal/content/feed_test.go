package content

import (
	"context"
	"errors"
	"testing"
)

type stubReader struct {
	scores map[string]int
	fail   map[string]bool
}

func (r stubReader) GetReputation(_ context.Context, authorHash string) (int, error) {
	if r.fail[authorHash] {
		return 0, errors.New("lookup failed")
	}
	return r.scores[authorHash], nil
}

func TestEnrichPostsCompleteness(t *testing.T) {
	posts := []Post{
		{ID: "p1", AuthorHash: "author-a"},
		{ID: "p2", AuthorHash: ""},
		{ID: "p3", AuthorHash: "author-broken"},
		{ID: "p4", AuthorHash: "author-a"},
	}
	reader := stubReader{
		scores: map[string]int{"author-a": 120},
		fail:   map[string]bool{"author-broken": true},
	}

	items := EnrichPosts(context.Background(), reader, posts, nil)
	if len(items) != len(posts) {
		t.Fatalf("expected %d items, got %d", len(posts), len(items))
	}
	expected := map[string]int{"p1": 120, "p2": 0, "p3": 0, "p4": 120}
	for _, item := range items {
		if item.Reputation != expected[item.ID] {
			t.Fatalf("post %s: expected reputation %d, got %d", item.ID, expected[item.ID], item.Reputation)
		}
	}
	if items[0].Tier.Label != "Elite" {
		t.Fatalf("expected Elite tier, got %s", items[0].Tier.Label)
	}

	if nilReader := EnrichPosts(context.Background(), nil, posts, nil); nilReader[0].Reputation != 0 {
		t.Fatalf("expected nil reader to yield 0")
	}
}

func TestApplyReputationUpdate(t *testing.T) {
	items := []FeedItem{
		{Post: Post{ID: "p1", AuthorHash: "A"}, Reputation: 50},
		{Post: Post{ID: "p2", AuthorHash: "B"}, Reputation: 75},
	}

	updated := ApplyReputationUpdate(items, "A", 150)
	if updated[0].Reputation != 150 || updated[0].Tier.Label != "Elite" {
		t.Fatalf("expected author A to be updated, got %+v", updated[0])
	}
	if updated[1].Reputation != 75 {
		t.Fatalf("expected author B untouched, got %d", updated[1].Reputation)
	}
	if items[0].Reputation != 50 {
		t.Fatal("expected input slice to be left unchanged")
	}
}

func TestRedactChangeRow(t *testing.T) {
	hiddenPost := map[string]any{"body": "extremely vile", "is_hidden": true}
	RedactChangeRow("posts", hiddenPost)
	if hiddenPost["body"] != "" {
		t.Fatalf("expected hidden post body to be cleared, got %v", hiddenPost["body"])
	}

	hiddenComment := map[string]any{"body": "extremely vile", "is_hidden": true}
	RedactChangeRow("comments", hiddenComment)
	if hiddenComment["body"] != "" {
		t.Fatalf("expected hidden comment body to be cleared, got %v", hiddenComment["body"])
	}

	blurred := map[string]any{"body": "mildly rude", "is_hidden": false, "is_blurred": true}
	RedactChangeRow("posts", blurred)
	if blurred["body"] != "mildly rude" {
		t.Fatalf("expected blurred body to be kept, got %v", blurred["body"])
	}

	other := map[string]any{"body": "x", "is_hidden": true}
	RedactChangeRow("reputation", other)
	if other["body"] != "x" {
		t.Fatal("expected other tables to be left alone")
	}
}

func TestListPostsRedactsHiddenBodies(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	hidden := fixture.mustCreatePost(t, "author-a", "extremely vile")
	fixture.mustCreatePost(t, "author-b", "hello campus")

	items, err := fixture.service.ListPosts(ctx, ListPostsInput{Zone: "Campus", Viewer: "author-b"})
	if err != nil {
		t.Fatalf("list posts failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(items))
	}
	if items[0].Body != "hello campus" {
		t.Fatalf("expected newest post first, got %q", items[0].Body)
	}
	if items[1].ID != hidden.ID || items[1].Body != "" {
		t.Fatalf("expected hidden body to be redacted, got %+v", items[1])
	}
	if items[1].Reputation != -10 {
		t.Fatalf("expected author reputation -10, got %d", items[1].Reputation)
	}

	own, err := fixture.service.GetPost(ctx, hidden.ID, "author-a")
	if err != nil {
		t.Fatalf("get post failed: %v", err)
	}
	if own.Body != "extremely vile" {
		t.Fatalf("expected author to see own hidden body, got %q", own.Body)
	}

	if _, err := fixture.service.ListPosts(ctx, ListPostsInput{Zone: "Nowhere"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown zone, got %v", err)
	}
	if _, err := fixture.service.GetPost(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListCommentsOrdersAndRedacts(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	post := fixture.mustCreatePost(t, "author-a", "root")
	fixture.mustCreateComment(t, post.ID, "author-b", "first reply")
	fixture.mustCreateComment(t, post.ID, "author-c", "second reply")

	comments, err := fixture.service.ListComments(ctx, post.ID, "")
	if err != nil {
		t.Fatalf("list comments failed: %v", err)
	}
	if len(comments) != 2 || comments[0].Body != "first reply" || comments[1].Body != "second reply" {
		t.Fatalf("unexpected comments %+v", comments)
	}
	if _, err := fixture.service.ListComments(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
