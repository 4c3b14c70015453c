package content

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingClassifier = errors.New("classifier is required")
	errMissingAuthors    = errors.New("author directory is required")
	errMissingLedger     = errors.New("reputation ledger is required")
	errMissingLockEngine = errors.New("lock engine is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew    = "content.service.new"
	opCreatePost    = "content.create_post"
	opEditPost      = "content.edit_post"
	opDeletePost    = "content.delete_post"
	opCreateComment = "content.create_comment"
	opEditComment   = "content.edit_comment"
	opDeleteComment = "content.delete_comment"
	opCastVote      = "content.cast_vote"
	opToggleMark    = "content.toggle_bookmark"
	opListPosts     = "content.list_posts"
	opGetPost       = "content.get_post"
	opListComments  = "content.list_comments"
)

// DefaultZones are the zones a post may be filed under.
var DefaultZones = []string{"Campus", "Dorm", "Confessions", "Events", "Advice"}

const (
	DefaultCooldown      = 15 * time.Second
	DefaultMaxBodyLength = 500
	DefaultFeedLimit     = 50
	MaxFeedLimit         = 100
)

// Classifier produces a moderation verdict for text.
type Classifier interface {
	Classify(ctx context.Context, text string) moderation.Verdict
}

// AuthorDirectory persists author hashes and their posting clock.
type AuthorDirectory interface {
	Ensure(ctx context.Context, hash string) error
	LastPostAt(ctx context.Context, hash string) (time.Time, error)
	TouchLastPost(ctx context.Context, hash string, at time.Time) error
}

// ReputationRecorder receives strike, signal and contribution events.
type ReputationRecorder interface {
	RecordStrike(ctx context.Context, authorHash string, ref reputation.ContentRef, verdict moderation.Verdict) (bool, error)
	RecordPositiveSignal(ctx context.Context, authorHash string, kind reputation.EventKind, sourceKey string) (bool, error)
	RecordContribution(ctx context.Context, authorHash string, contribution reputation.Contribution) error
}

// LockEvaluator decides whether a thread locks after a comment write.
type LockEvaluator interface {
	EvaluateLock(ctx context.Context, postID string) (bool, error)
}

// Limits are the tunable content rules.
type Limits struct {
	Cooldown      time.Duration
	MaxBodyLength int
	Zones         []string
}

// DefaultLimits returns the production content rules.
func DefaultLimits() Limits {
	return Limits{
		Cooldown:      DefaultCooldown,
		MaxBodyLength: DefaultMaxBodyLength,
		Zones:         append([]string(nil), DefaultZones...),
	}
}

// ServiceConfig describes the collaborators of the content lifecycle.
type ServiceConfig struct {
	Database   *gorm.DB
	Classifier Classifier
	Authors    AuthorDirectory
	Ledger     ReputationRecorder
	LockEngine LockEvaluator
	Reputation reputation.Reader
	IDProvider IDProvider
	Limits     Limits
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service orchestrates the post and comment lifecycle.
type Service struct {
	db         *gorm.DB
	classifier Classifier
	authors    AuthorDirectory
	ledger     ReputationRecorder
	locks      LockEvaluator
	reputation reputation.Reader
	idProvider IDProvider
	limits     Limits
	zones      map[string]struct{}
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Database == nil:
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	case cfg.IDProvider == nil:
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	case cfg.Classifier == nil:
		return nil, newServiceError(opServiceNew, "missing_classifier", errMissingClassifier)
	case cfg.Authors == nil:
		return nil, newServiceError(opServiceNew, "missing_authors", errMissingAuthors)
	case cfg.Ledger == nil:
		return nil, newServiceError(opServiceNew, "missing_ledger", errMissingLedger)
	case cfg.LockEngine == nil:
		return nil, newServiceError(opServiceNew, "missing_lock_engine", errMissingLockEngine)
	}

	limits := cfg.Limits
	defaults := DefaultLimits()
	if limits.MaxBodyLength <= 0 {
		limits.MaxBodyLength = defaults.MaxBodyLength
	}
	if limits.Cooldown < 0 {
		limits.Cooldown = 0
	}
	if len(limits.Zones) == 0 {
		limits.Zones = defaults.Zones
	}
	zones := make(map[string]struct{}, len(limits.Zones))
	for _, zone := range limits.Zones {
		zones[zone] = struct{}{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		classifier: cfg.Classifier,
		authors:    cfg.Authors,
		ledger:     cfg.Ledger,
		locks:      cfg.LockEngine,
		reputation: cfg.Reputation,
		idProvider: cfg.IDProvider,
		limits:     limits,
		zones:      zones,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Zones lists the configured zones in display order.
func (s *Service) Zones() []string {
	return append([]string(nil), s.limits.Zones...)
}

// CreatePostInput is a new post submission.
type CreatePostInput struct {
	AuthorHash string
	Body       string
	Zone       string
}

// CreatePost validates, rate limits, moderates and persists a post, then
// records the strike and contribution.
func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (Post, error) {
	authorHash, body, err := s.validateSubmission(input.AuthorHash, input.Body)
	if err != nil {
		return Post{}, newServiceError(opCreatePost, "invalid_input", err)
	}
	zone := strings.TrimSpace(input.Zone)
	if _, ok := s.zones[zone]; !ok {
		return Post{}, newServiceError(opCreatePost, "invalid_zone", validationError("unknown zone %q", input.Zone))
	}
	if err := s.enforceCooldown(ctx, opCreatePost, authorHash); err != nil {
		return Post{}, err
	}

	verdict := s.classifier.Classify(ctx, body)
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePost, "id_generation_failed", err)
		return Post{}, newServiceError(opCreatePost, "id_generation_failed", storageError(err))
	}
	if err := s.authors.Ensure(ctx, authorHash); err != nil {
		s.logError(opCreatePost, "author_ensure_failed", err, zap.String("author_hash", authorHash))
		return Post{}, newServiceError(opCreatePost, "author_ensure_failed", storageError(err))
	}

	now := s.clock().UTC()
	post := Post{
		ID:               id,
		Body:             body,
		Zone:             zone,
		AuthorHash:       authorHash,
		CreatedAt:        now,
		UpdatedAt:        now,
		IsBlurred:        verdict.Blur,
		IsHidden:         verdict.Hide,
		ModerationReason: verdict.Reason,
		Toxicity:         verdict.Toxicity,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		s.logError(opCreatePost, "insert_failed", err, zap.String("author_hash", authorHash))
		return Post{}, newServiceError(opCreatePost, "insert_failed", storageError(err))
	}

	s.recordStrike(ctx, opCreatePost, authorHash, reputation.ContentRef{Kind: reputation.ContributionPost, ID: post.ID, Body: body}, verdict)
	s.finishContribution(ctx, opCreatePost, authorHash, reputation.ContributionPost, now)
	return post, nil
}

// EditInput replaces the body of an existing post or comment.
type EditInput struct {
	ID         string
	AuthorHash string
	Body       string
}

// EditPost re-moderates and overwrites a post body. The lock state is never touched.
func (s *Service) EditPost(ctx context.Context, input EditInput) (Post, error) {
	authorHash, body, err := s.validateSubmission(input.AuthorHash, input.Body)
	if err != nil {
		return Post{}, newServiceError(opEditPost, "invalid_input", err)
	}
	post, err := s.loadOwnedPost(ctx, opEditPost, input.ID, authorHash)
	if err != nil {
		return Post{}, err
	}

	verdict := s.classifier.Classify(ctx, body)
	updates := verdictColumns(verdict, s.clock().UTC())
	updates["body"] = body
	if err := s.db.WithContext(ctx).Model(&Post{ID: post.ID}).Updates(updates).Error; err != nil {
		s.logError(opEditPost, "update_failed", err, zap.String("post_id", post.ID))
		return Post{}, newServiceError(opEditPost, "update_failed", storageError(err))
	}

	s.recordStrike(ctx, opEditPost, authorHash, reputation.ContentRef{Kind: reputation.ContributionPost, ID: post.ID, Body: body}, verdict)

	updated, err := s.findPost(ctx, post.ID)
	if err != nil {
		s.logError(opEditPost, "reload_failed", err, zap.String("post_id", post.ID))
		return Post{}, newServiceError(opEditPost, "reload_failed", err)
	}
	return updated, nil
}

// DeletePost removes a post together with its comments, votes and bookmarks.
func (s *Service) DeletePost(ctx context.Context, postID, authorHash string) error {
	authorHash, err := identity.ValidateHash(authorHash)
	if err != nil {
		return newServiceError(opDeletePost, "invalid_input", validationError("%v", err))
	}
	post, err := s.loadOwnedPost(ctx, opDeletePost, postID, authorHash)
	if err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&Bookmark{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if txErr != nil {
		s.logError(opDeletePost, "delete_failed", txErr, zap.String("post_id", post.ID))
		return newServiceError(opDeletePost, "delete_failed", storageError(txErr))
	}
	return nil
}

// CreateCommentInput is a new reply submission.
type CreateCommentInput struct {
	PostID     string
	AuthorHash string
	Body       string
}

// CommentResult is a written comment with the thread lock state after the write.
type CommentResult struct {
	Comment Comment `json:"comment"`
	Locked  bool    `json:"locked"`
}

// CreateComment persists a reply and evaluates the thread lock. Replies to a
// locked thread are rejected with ErrThreadLocked.
func (s *Service) CreateComment(ctx context.Context, input CreateCommentInput) (CommentResult, error) {
	authorHash, body, err := s.validateSubmission(input.AuthorHash, input.Body)
	if err != nil {
		return CommentResult{}, newServiceError(opCreateComment, "invalid_input", err)
	}
	post, err := s.findPost(ctx, strings.TrimSpace(input.PostID))
	if err != nil {
		return CommentResult{}, s.lookupError(opCreateComment, "post_lookup_failed", err)
	}
	if post.Locked {
		return CommentResult{}, newServiceError(opCreateComment, "thread_locked", ErrThreadLocked)
	}
	if err := s.enforceCooldown(ctx, opCreateComment, authorHash); err != nil {
		return CommentResult{}, err
	}

	verdict := s.classifier.Classify(ctx, body)
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateComment, "id_generation_failed", err)
		return CommentResult{}, newServiceError(opCreateComment, "id_generation_failed", storageError(err))
	}
	if err := s.authors.Ensure(ctx, authorHash); err != nil {
		s.logError(opCreateComment, "author_ensure_failed", err, zap.String("author_hash", authorHash))
		return CommentResult{}, newServiceError(opCreateComment, "author_ensure_failed", storageError(err))
	}

	now := s.clock().UTC()
	comment := Comment{
		ID:               id,
		PostID:           post.ID,
		Body:             body,
		AuthorHash:       authorHash,
		CreatedAt:        now,
		UpdatedAt:        now,
		IsBlurred:        verdict.Blur,
		IsHidden:         verdict.Hide,
		ModerationReason: verdict.Reason,
		Toxicity:         verdict.Toxicity,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opCreateComment, "insert_failed", err, zap.String("post_id", post.ID))
		return CommentResult{}, newServiceError(opCreateComment, "insert_failed", storageError(err))
	}

	s.recordStrike(ctx, opCreateComment, authorHash, reputation.ContentRef{Kind: reputation.ContributionComment, ID: comment.ID, Body: body}, verdict)
	locked := s.evaluateLock(ctx, opCreateComment, post.ID)
	s.finishContribution(ctx, opCreateComment, authorHash, reputation.ContributionComment, now)
	return CommentResult{Comment: comment, Locked: locked}, nil
}

// EditComment re-moderates a reply and re-evaluates the thread lock.
func (s *Service) EditComment(ctx context.Context, input EditInput) (CommentResult, error) {
	authorHash, body, err := s.validateSubmission(input.AuthorHash, input.Body)
	if err != nil {
		return CommentResult{}, newServiceError(opEditComment, "invalid_input", err)
	}
	comment, err := s.loadOwnedComment(ctx, opEditComment, input.ID, authorHash)
	if err != nil {
		return CommentResult{}, err
	}

	verdict := s.classifier.Classify(ctx, body)
	updates := verdictColumns(verdict, s.clock().UTC())
	updates["body"] = body
	if err := s.db.WithContext(ctx).Model(&Comment{ID: comment.ID}).Updates(updates).Error; err != nil {
		s.logError(opEditComment, "update_failed", err, zap.String("comment_id", comment.ID))
		return CommentResult{}, newServiceError(opEditComment, "update_failed", storageError(err))
	}

	s.recordStrike(ctx, opEditComment, authorHash, reputation.ContentRef{Kind: reputation.ContributionComment, ID: comment.ID, Body: body}, verdict)
	locked := s.evaluateLock(ctx, opEditComment, comment.PostID)

	var updated Comment
	if err := s.db.WithContext(ctx).Where("id = ?", comment.ID).Take(&updated).Error; err != nil {
		s.logError(opEditComment, "reload_failed", err, zap.String("comment_id", comment.ID))
		return CommentResult{}, newServiceError(opEditComment, "reload_failed", storageError(err))
	}
	return CommentResult{Comment: updated, Locked: locked}, nil
}

// DeleteComment hard-deletes a reply owned by authorHash.
func (s *Service) DeleteComment(ctx context.Context, commentID, authorHash string) error {
	authorHash, err := identity.ValidateHash(authorHash)
	if err != nil {
		return newServiceError(opDeleteComment, "invalid_input", validationError("%v", err))
	}
	comment, err := s.loadOwnedComment(ctx, opDeleteComment, commentID, authorHash)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&comment).Error; err != nil {
		s.logError(opDeleteComment, "delete_failed", err, zap.String("comment_id", comment.ID))
		return newServiceError(opDeleteComment, "delete_failed", storageError(err))
	}
	return nil
}

func (s *Service) validateSubmission(rawHash, rawBody string) (string, string, error) {
	authorHash, err := identity.ValidateHash(rawHash)
	if err != nil {
		return "", "", validationError("missing required fields")
	}
	body := strings.TrimSpace(rawBody)
	if body == "" {
		return "", "", validationError("missing required fields")
	}
	if length := utf8.RuneCountInString(body); length > s.limits.MaxBodyLength {
		return "", "", validationError("body exceeds %d characters", s.limits.MaxBodyLength)
	}
	return authorHash, body, nil
}

func (s *Service) enforceCooldown(ctx context.Context, operation, authorHash string) error {
	if s.limits.Cooldown <= 0 {
		return nil
	}
	lastPostAt, err := s.authors.LastPostAt(ctx, authorHash)
	if err != nil {
		s.logError(operation, "cooldown_lookup_failed", err, zap.String("author_hash", authorHash))
		return newServiceError(operation, "cooldown_lookup_failed", storageError(err))
	}
	if lastPostAt.IsZero() {
		return nil
	}
	elapsed := s.clock().Sub(lastPostAt)
	if elapsed < s.limits.Cooldown {
		return newServiceError(operation, "rate_limited", &RateLimitError{RetryAfter: s.limits.Cooldown - elapsed})
	}
	return nil
}

func (s *Service) recordStrike(ctx context.Context, operation, authorHash string, ref reputation.ContentRef, verdict moderation.Verdict) {
	if !verdict.Violation() {
		return
	}
	if _, err := s.ledger.RecordStrike(ctx, authorHash, ref, verdict); err != nil {
		s.logError(operation, "strike_failed", err, zap.String("author_hash", authorHash), zap.String("content_id", ref.ID))
	}
}

func (s *Service) evaluateLock(ctx context.Context, operation, postID string) bool {
	locked, err := s.locks.EvaluateLock(ctx, postID)
	if err != nil {
		s.logError(operation, "lock_evaluation_failed", err, zap.String("post_id", postID))
		return false
	}
	return locked
}

func (s *Service) finishContribution(ctx context.Context, operation, authorHash string, contribution reputation.Contribution, at time.Time) {
	if err := s.ledger.RecordContribution(ctx, authorHash, contribution); err != nil {
		s.logError(operation, "contribution_failed", err, zap.String("author_hash", authorHash))
	}
	if err := s.authors.TouchLastPost(ctx, authorHash, at); err != nil {
		s.logError(operation, "touch_last_post_failed", err, zap.String("author_hash", authorHash))
	}
}

func (s *Service) findPost(ctx context.Context, postID string) (Post, error) {
	if postID == "" {
		return Post{}, ErrNotFound
	}
	var post Post
	err := s.db.WithContext(ctx).Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, storageError(err)
	}
	return post, nil
}

func (s *Service) loadOwnedPost(ctx context.Context, operation, postID, authorHash string) (Post, error) {
	post, err := s.findPost(ctx, strings.TrimSpace(postID))
	if err != nil {
		return Post{}, s.lookupError(operation, "post_lookup_failed", err)
	}
	if post.AuthorHash != authorHash {
		return Post{}, newServiceError(operation, "forbidden", ErrForbidden)
	}
	return post, nil
}

func (s *Service) loadOwnedComment(ctx context.Context, operation, commentID, authorHash string) (Comment, error) {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return Comment{}, newServiceError(operation, "not_found", ErrNotFound)
	}
	var comment Comment
	err := s.db.WithContext(ctx).Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, newServiceError(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "comment_lookup_failed", err, zap.String("comment_id", commentID))
		return Comment{}, newServiceError(operation, "comment_lookup_failed", storageError(err))
	}
	if comment.AuthorHash != authorHash {
		return Comment{}, newServiceError(operation, "forbidden", ErrForbidden)
	}
	return comment, nil
}

// lookupError maps a findPost failure onto a ServiceError, logging storage failures only.
func (s *Service) lookupError(operation, reason string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return newServiceError(operation, "not_found", ErrNotFound)
	}
	s.logError(operation, reason, err)
	return newServiceError(operation, reason, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("content service error", attrs...)
}
