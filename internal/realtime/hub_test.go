package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receiveEvent(testContext *testing.T, stream <-chan ChangeEvent) ChangeEvent {
	testContext.Helper()
	select {
	case event := <-stream:
		return event
	case <-time.After(500 * time.Millisecond):
		testContext.Fatal("expected change event within deadline")
		return ChangeEvent{}
	}
}

func expectNoEvent(testContext *testing.T, stream <-chan ChangeEvent) {
	testContext.Helper()
	select {
	case event := <-stream:
		testContext.Fatalf("did not expect change event, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDeliversMatchingEvents(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := hub.Subscribe(ctx, Filter{Table: "reputation", Event: EventUpdate, Column: "author_hash", Value: "author-a"})
	defer cleanup()

	hub.Publish(ChangeEvent{Table: "reputation", Type: EventUpdate, New: map[string]any{"author_hash": "author-b", "reputation": 75}})
	hub.Publish(ChangeEvent{Table: "posts", Type: EventUpdate, New: map[string]any{"author_hash": "author-a"}})
	hub.Publish(ChangeEvent{Table: "reputation", Type: EventUpdate, New: map[string]any{"author_hash": "author-a", "reputation": 150}})

	event := receiveEvent(t, stream)
	if event.New["reputation"] != 150 {
		t.Fatalf("expected reputation 150, got %v", event.New["reputation"])
	}
	expectNoEvent(t, stream)
}

func TestHubCleanupStopsDelivery(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stream, _ := hub.Subscribe(ctx, Filter{Table: "posts", Event: EventAny})
	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", hub.SubscriberCount())
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscription to end with its context")
		}
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(ChangeEvent{Table: "posts", Type: EventInsert, New: map[string]any{"id": "p1"}})
	expectNoEvent(t, stream)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := hub.Subscribe(ctx, Filter{Table: "posts", Event: EventInsert})
	defer cleanup()

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*4; i++ {
			hub.Publish(ChangeEvent{Table: "posts", Type: EventInsert, New: map[string]any{"id": i}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(stream) != defaultBufferSize {
		t.Fatalf("expected buffered events to be capped at %d, got %d", defaultBufferSize, len(stream))
	}
}

func TestParseFilter(t *testing.T) {
	filter, err := ParseFilter(" posts ", "insert", "zone", "Campus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.Table != "posts" || filter.Event != EventInsert || filter.Column != "zone" {
		t.Fatalf("unexpected filter %+v", filter)
	}

	filter, err = ParseFilter("posts", "", "", "")
	if err != nil || filter.Event != EventAny {
		t.Fatalf("expected wildcard event, got %+v (%v)", filter, err)
	}

	if _, err := ParseFilter("", "INSERT", "", ""); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter for empty table, got %v", err)
	}
	if _, err := ParseFilter("posts", "TRUNCATE", "", ""); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter for unknown event, got %v", err)
	}
}

func TestFilterMatchesDeleteAgainstOldRow(t *testing.T) {
	filter := Filter{Table: "comments", Event: EventDelete, Column: "post_id", Value: "p1"}
	if !filter.Matches(ChangeEvent{Table: "comments", Type: EventDelete, Old: map[string]any{"post_id": "p1"}}) {
		t.Fatal("expected delete to match on old row")
	}
	if filter.Matches(ChangeEvent{Table: "comments", Type: EventDelete, Old: map[string]any{"post_id": "p2"}}) {
		t.Fatal("did not expect delete for another post to match")
	}
}
