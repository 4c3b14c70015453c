package reputation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("reputation: database handle is required")
	// ErrInvalidAuthor indicates an empty author hash was supplied.
	ErrInvalidAuthor = errors.New("reputation: author hash is required")
	// ErrInvalidSignal indicates an unknown positive signal kind or empty source key.
	ErrInvalidSignal = errors.New("reputation: invalid positive signal")
)

const (
	opRecordStrike       = "reputation.record_strike"
	opRecordSignal       = "reputation.record_signal"
	opRecordContribution = "reputation.record_contribution"
	opGetReputation      = "reputation.get_reputation"
	opProfileStats       = "reputation.profile_stats"
)

// Deltas are the reputation adjustments per event kind. Penalties are positive magnitudes.
type Deltas struct {
	BlurPenalty int
	HidePenalty int
	Upvote      int
	Bookmark    int
}

// DefaultDeltas returns the production reputation deltas.
func DefaultDeltas() Deltas {
	return Deltas{BlurPenalty: 5, HidePenalty: 10, Upvote: 1, Bookmark: 2}
}

// Contribution identifies what an author contributed.
type Contribution string

const (
	ContributionPost    Contribution = "post"
	ContributionComment Contribution = "comment"
)

// ContentRef identifies the content a strike is recorded against.
type ContentRef struct {
	Kind Contribution
	ID   string
	Body string
}

// LedgerConfig describes the ledger dependencies.
type LedgerConfig struct {
	Database *gorm.DB
	Deltas   Deltas
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Ledger maintains per-author reputation aggregates.
type Ledger struct {
	db     *gorm.DB
	deltas Deltas
	now    func() time.Time
	logger *zap.Logger
}

// NewLedger constructs a Ledger. Zero deltas fall back to DefaultDeltas.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	deltas := cfg.Deltas
	if deltas == (Deltas{}) {
		deltas = DefaultDeltas()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: cfg.Database, deltas: deltas, now: clock, logger: logger}, nil
}

// Deltas exposes the configured adjustments.
func (l *Ledger) Deltas() Deltas {
	return l.deltas
}

// StrikeKey derives the idempotency key for a strike against ref under verdict.
func StrikeKey(ref ContentRef, verdict moderation.Verdict) string {
	bodySum := sha256.Sum256([]byte(moderation.NormalizeText(ref.Body)))
	return fmt.Sprintf("strike:%s:%s:%s%s", ref.Kind, ref.ID, verdict.Fingerprint(), hex.EncodeToString(bodySum[:8]))
}

// SignalKey derives the idempotency key for a positive signal. The source key is
// digested so that long author hashes still fit the event_key column.
func SignalKey(kind EventKind, sourceKey string) string {
	sourceSum := sha256.Sum256([]byte(sourceKey))
	return fmt.Sprintf("signal:%s:%s", kind, hex.EncodeToString(sourceSum[:]))
}

// RecordStrike penalizes the author for a violating verdict. It reports whether a
// penalty was applied; a non-violating verdict or a repeated key applies nothing.
func (l *Ledger) RecordStrike(ctx context.Context, authorHash string, ref ContentRef, verdict moderation.Verdict) (bool, error) {
	if authorHash == "" {
		return false, ErrInvalidAuthor
	}
	var kind EventKind
	var penalty int
	switch verdict.Severity() {
	case moderation.SeverityHide:
		kind, penalty = EventStrikeHide, l.deltas.HidePenalty
	case moderation.SeverityBlur:
		kind, penalty = EventStrikeBlur, l.deltas.BlurPenalty
	default:
		return false, nil
	}

	applied, err := l.apply(ctx, authorHash, StrikeKey(ref, verdict), kind, -penalty, map[string]interface{}{
		"strike_count": gorm.Expr("strike_count + ?", 1),
	})
	if err != nil {
		l.logError(opRecordStrike, "apply_failed", err, zap.String("author_hash", authorHash), zap.String("content_id", ref.ID))
		return false, err
	}
	return applied, nil
}

// RecordPositiveSignal rewards the author once per (kind, sourceKey).
func (l *Ledger) RecordPositiveSignal(ctx context.Context, authorHash string, kind EventKind, sourceKey string) (bool, error) {
	if authorHash == "" {
		return false, ErrInvalidAuthor
	}
	if sourceKey == "" {
		return false, ErrInvalidSignal
	}
	var delta int
	var counter string
	switch kind {
	case EventUpvote:
		delta, counter = l.deltas.Upvote, "upvotes_received"
	case EventBookmark:
		delta, counter = l.deltas.Bookmark, "bookmarks_received"
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidSignal, kind)
	}

	applied, err := l.apply(ctx, authorHash, SignalKey(kind, sourceKey), kind, delta, map[string]interface{}{
		counter: gorm.Expr(counter+" + ?", 1),
	})
	if err != nil {
		l.logError(opRecordSignal, "apply_failed", err, zap.String("author_hash", authorHash), zap.String("kind", string(kind)))
		return false, err
	}
	return applied, nil
}

// RecordContribution counts a post or comment by the author. It creates the
// reputation record on first contribution.
func (l *Ledger) RecordContribution(ctx context.Context, authorHash string, contribution Contribution) error {
	if authorHash == "" {
		return ErrInvalidAuthor
	}
	var counter string
	switch contribution {
	case ContributionPost:
		counter = "post_count"
	case ContributionComment:
		counter = "comment_count"
	default:
		return fmt.Errorf("reputation: unknown contribution %q", contribution)
	}

	txCtx, release := realtime.DeferEvents(ctx)
	err := l.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := l.ensureRecord(tx, authorHash); err != nil {
			return err
		}
		return tx.Model(&Record{AuthorHash: authorHash}).
			Updates(map[string]interface{}{counter: gorm.Expr(counter+" + ?", 1)}).
			Error
	})
	release(err == nil)
	if err != nil {
		l.logError(opRecordContribution, "update_failed", err, zap.String("author_hash", authorHash))
		return err
	}
	return nil
}

// GetReputation returns the author's score. Unknown authors score 0.
func (l *Ledger) GetReputation(ctx context.Context, authorHash string) (int, error) {
	record, found, err := l.load(ctx, authorHash)
	if err != nil {
		l.logError(opGetReputation, "query_failed", err, zap.String("author_hash", authorHash))
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return record.Reputation, nil
}

// Profile is the public aggregate for an author.
type Profile struct {
	AuthorHash        string       `json:"author_hash"`
	Reputation        int          `json:"reputation"`
	StrikeCount       int          `json:"strike_count"`
	PostCount         int          `json:"post_count"`
	CommentCount      int          `json:"comment_count"`
	UpvotesReceived   int          `json:"upvotes_received"`
	BookmarksReceived int          `json:"bookmarks_received"`
	JoinedAt          *time.Time   `json:"joined_at"`
	Progress          TierProgress `json:"progress"`
}

// ProfileStats returns the author's aggregate with tier progress.
func (l *Ledger) ProfileStats(ctx context.Context, authorHash string) (Profile, error) {
	record, found, err := l.load(ctx, authorHash)
	if err != nil {
		l.logError(opProfileStats, "query_failed", err, zap.String("author_hash", authorHash))
		return Profile{}, err
	}
	profile := Profile{AuthorHash: authorHash}
	if found {
		joinedAt := record.JoinedAt
		profile.Reputation = record.Reputation
		profile.StrikeCount = record.StrikeCount
		profile.PostCount = record.PostCount
		profile.CommentCount = record.CommentCount
		profile.UpvotesReceived = record.UpvotesReceived
		profile.BookmarksReceived = record.BookmarksReceived
		profile.JoinedAt = &joinedAt
	}
	profile.Progress = Progress(profile.Reputation)
	return profile, nil
}

func (l *Ledger) load(ctx context.Context, authorHash string) (Record, bool, error) {
	if authorHash == "" {
		return Record{}, false, ErrInvalidAuthor
	}
	var record Record
	err := l.db.WithContext(ctx).Where("author_hash = ?", authorHash).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

// apply inserts the ledger event and, only when the key is new, applies the delta
// and counter increments in the same transaction. Change events for the record
// are published after the commit.
func (l *Ledger) apply(ctx context.Context, authorHash, eventKey string, kind EventKind, delta int, counters map[string]interface{}) (bool, error) {
	applied := false
	txCtx, release := realtime.DeferEvents(ctx)
	err := l.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		event := Event{
			EventKey:   eventKey,
			AuthorHash: authorHash,
			Kind:       kind,
			Delta:      delta,
			CreatedAt:  l.now().UTC(),
		}
		result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_key"}}, DoNothing: true}).Create(&event)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := l.ensureRecord(tx, authorHash); err != nil {
			return err
		}
		updates := map[string]interface{}{"reputation": gorm.Expr("reputation + ?", delta)}
		for column, expr := range counters {
			updates[column] = expr
		}
		if err := tx.Model(&Record{AuthorHash: authorHash}).Updates(updates).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	release(err == nil)
	if err != nil {
		return false, err
	}
	outcome := "duplicate"
	if applied {
		outcome = "applied"
	}
	ledgerEventCount.WithLabelValues(string(kind), outcome).Inc()
	return applied, nil
}

func (l *Ledger) ensureRecord(tx *gorm.DB, authorHash string) error {
	now := l.now().UTC()
	record := Record{AuthorHash: authorHash, JoinedAt: now, UpdatedAt: now}
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "author_hash"}}, DoNothing: true}).
		Create(&record).
		Error
}

func (l *Ledger) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.logger.Error("reputation ledger error", attrs...)
}
