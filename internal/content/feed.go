package content

import (
	"context"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const enrichConcurrency = 8

// FeedItem is a post as shown in a feed, with its author's reputation.
type FeedItem struct {
	Post
	Reputation int             `json:"reputation"`
	Tier       reputation.Tier `json:"tier"`
}

// ListPostsInput selects a zone feed.
type ListPostsInput struct {
	Zone   string
	Limit  int
	Viewer string
}

// ListPosts returns the newest posts of a zone, redacted for viewer and enriched
// with author reputation.
func (s *Service) ListPosts(ctx context.Context, input ListPostsInput) ([]FeedItem, error) {
	zone := strings.TrimSpace(input.Zone)
	if _, ok := s.zones[zone]; !ok {
		return nil, newServiceError(opListPosts, "invalid_zone", validationError("unknown zone %q", input.Zone))
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	var posts []Post
	if err := s.db.WithContext(ctx).
		Where("zone = ?", zone).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		s.logError(opListPosts, "query_failed", err, zap.String("zone", zone))
		return nil, newServiceError(opListPosts, "query_failed", storageError(err))
	}
	for index := range posts {
		posts[index] = posts[index].RedactedFor(input.Viewer)
	}
	return EnrichPosts(ctx, s.reputation, posts, s.logger), nil
}

// GetPost returns a single post, redacted for viewer and enriched.
func (s *Service) GetPost(ctx context.Context, postID, viewer string) (FeedItem, error) {
	post, err := s.findPost(ctx, strings.TrimSpace(postID))
	if err != nil {
		return FeedItem{}, s.lookupError(opGetPost, "query_failed", err)
	}
	items := EnrichPosts(ctx, s.reputation, []Post{post.RedactedFor(viewer)}, s.logger)
	return items[0], nil
}

// ListComments returns a thread's replies in posting order, redacted for viewer.
func (s *Service) ListComments(ctx context.Context, postID, viewer string) ([]Comment, error) {
	post, err := s.findPost(ctx, strings.TrimSpace(postID))
	if err != nil {
		return nil, s.lookupError(opListComments, "post_lookup_failed", err)
	}
	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", post.ID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("post_id", post.ID))
		return nil, newServiceError(opListComments, "query_failed", storageError(err))
	}
	for index := range comments {
		comments[index] = comments[index].RedactedFor(viewer)
	}
	return comments, nil
}

// EnrichPosts attaches author reputation to every post. Each distinct author is
// looked up once; an empty hash, a nil reader or a failed lookup yields 0.
func EnrichPosts(ctx context.Context, reader reputation.Reader, posts []Post, logger *zap.Logger) []FeedItem {
	if logger == nil {
		logger = noOpLogger
	}
	scores := make(map[string]int)
	if reader != nil {
		var mu sync.Mutex
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(enrichConcurrency)
		seen := make(map[string]struct{})
		for _, post := range posts {
			authorHash := post.AuthorHash
			if authorHash == "" {
				continue
			}
			if _, ok := seen[authorHash]; ok {
				continue
			}
			seen[authorHash] = struct{}{}
			group.Go(func() error {
				value, err := reader.GetReputation(groupCtx, authorHash)
				if err != nil {
					logger.Warn("reputation lookup failed", zap.String("author_hash", authorHash), zap.Error(err))
					return nil
				}
				mu.Lock()
				scores[authorHash] = value
				mu.Unlock()
				return nil
			})
		}
		_ = group.Wait()
	}

	items := make([]FeedItem, len(posts))
	for index, post := range posts {
		score := scores[post.AuthorHash]
		items[index] = FeedItem{Post: post, Reputation: score, Tier: reputation.TierFor(score)}
	}
	return items
}

// ApplyReputationUpdate returns a copy of items in which every item by
// authorHash carries the new score. Items by other authors are unchanged.
func ApplyReputationUpdate(items []FeedItem, authorHash string, score int) []FeedItem {
	updated := make([]FeedItem, len(items))
	for index, item := range items {
		if authorHash != "" && item.AuthorHash == authorHash {
			item.Reputation = score
			item.Tier = reputation.TierFor(score)
		}
		updated[index] = item
	}
	return updated
}
