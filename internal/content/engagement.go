package content

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CastVote records a +1 or -1 vote by voterHash. A repeated vote is a no-op and
// switching direction moves the vote between counters.
func (s *Service) CastVote(ctx context.Context, postID, voterHash string, value int) (Post, error) {
	voterHash, err := identity.ValidateHash(voterHash)
	if err != nil {
		return Post{}, newServiceError(opCastVote, "invalid_input", validationError("missing required fields"))
	}
	if value != 1 && value != -1 {
		return Post{}, newServiceError(opCastVote, "invalid_value", validationError("vote must be 1 or -1"))
	}
	postID = strings.TrimSpace(postID)

	var post Post
	changed := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", postID).Take(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return storageError(err)
		}

		now := s.clock().UTC()
		var existing Vote
		err := tx.Where("post_id = ? AND voter_hash = ?", postID, voterHash).Take(&existing).Error
		counters := map[string]interface{}{}
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote := Vote{PostID: postID, VoterHash: voterHash, Value: value, CreatedAt: now, UpdatedAt: now}
			if err := tx.Create(&vote).Error; err != nil {
				return storageError(err)
			}
			counters["score"] = gorm.Expr("score + ?", value)
			counters[voteColumn(value)] = gorm.Expr(voteColumn(value) + " + 1")
		case err != nil:
			return storageError(err)
		case existing.Value == value:
			return nil
		default:
			if err := tx.Model(&existing).Updates(map[string]interface{}{"value": value, "updated_at": now}).Error; err != nil {
				return storageError(err)
			}
			counters["score"] = gorm.Expr("score + ?", 2*value)
			counters[voteColumn(value)] = gorm.Expr(voteColumn(value) + " + 1")
			counters[voteColumn(-value)] = gorm.Expr(voteColumn(-value) + " - 1")
		}

		if err := tx.Model(&Post{ID: postID}).Updates(counters).Error; err != nil {
			return storageError(err)
		}
		changed = true
		return tx.Where("id = ?", postID).Take(&post).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrNotFound) {
			return Post{}, newServiceError(opCastVote, "not_found", ErrNotFound)
		}
		s.logError(opCastVote, "vote_failed", txErr, zap.String("post_id", postID))
		return Post{}, newServiceError(opCastVote, "vote_failed", storageError(txErr))
	}

	if changed && value == 1 && voterHash != post.AuthorHash {
		if _, err := s.ledger.RecordPositiveSignal(ctx, post.AuthorHash, reputation.EventUpvote, postID+":"+voterHash); err != nil {
			s.logError(opCastVote, "signal_failed", err, zap.String("post_id", postID))
		}
	}
	return post, nil
}

func voteColumn(value int) string {
	if value > 0 {
		return "upvotes"
	}
	return "downvotes"
}

// BookmarkResult reports the bookmark state after a toggle.
type BookmarkResult struct {
	Bookmarked bool `json:"bookmarked"`
	Post       Post `json:"post"`
}

// ToggleBookmark adds or removes authorHash's bookmark on a post. Removing a
// bookmark does not retract the reputation already granted for it.
func (s *Service) ToggleBookmark(ctx context.Context, postID, authorHash string) (BookmarkResult, error) {
	authorHash, err := identity.ValidateHash(authorHash)
	if err != nil {
		return BookmarkResult{}, newServiceError(opToggleMark, "invalid_input", validationError("missing required fields"))
	}
	postID = strings.TrimSpace(postID)

	var result BookmarkResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", postID).Take(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return storageError(err)
		}

		var existing Bookmark
		err := tx.Where("post_id = ? AND author_hash = ?", postID, authorHash).Take(&existing).Error
		delta := 1
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			bookmark := Bookmark{PostID: postID, AuthorHash: authorHash, CreatedAt: s.clock().UTC()}
			if err := tx.Create(&bookmark).Error; err != nil {
				return storageError(err)
			}
			result.Bookmarked = true
		case err != nil:
			return storageError(err)
		default:
			if err := tx.Delete(&existing).Error; err != nil {
				return storageError(err)
			}
			delta = -1
		}

		if err := tx.Model(&Post{ID: postID}).Update("bookmarks_count", gorm.Expr("bookmarks_count + ?", delta)).Error; err != nil {
			return storageError(err)
		}
		return tx.Where("id = ?", postID).Take(&result.Post).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrNotFound) {
			return BookmarkResult{}, newServiceError(opToggleMark, "not_found", ErrNotFound)
		}
		s.logError(opToggleMark, "toggle_failed", txErr, zap.String("post_id", postID))
		return BookmarkResult{}, newServiceError(opToggleMark, "toggle_failed", storageError(txErr))
	}

	if result.Bookmarked && authorHash != result.Post.AuthorHash {
		if _, err := s.ledger.RecordPositiveSignal(ctx, result.Post.AuthorHash, reputation.EventBookmark, postID+":"+authorHash); err != nil {
			s.logError(opToggleMark, "signal_failed", err, zap.String("post_id", postID))
		}
	}
	return result, nil
}
