package content

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/autolock"
	"gorm.io/gorm"
)

type lockStore struct {
	db *gorm.DB
}

// NewLockStore exposes the posts and comments tables to the lock engine.
func NewLockStore(db *gorm.DB) autolock.Store {
	return &lockStore{db: db}
}

func (s *lockStore) IsLocked(ctx context.Context, postID string) (bool, error) {
	var post Post
	err := s.db.WithContext(ctx).Select("id", "locked").Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, autolock.ErrPostNotFound
	}
	if err != nil {
		return false, err
	}
	return post.Locked, nil
}

func (s *lockStore) Tally(ctx context.Context, postID string) (autolock.Tally, error) {
	var tally autolock.Tally
	base := s.db.WithContext(ctx).Model(&Comment{}).Where("post_id = ?", postID)
	if err := base.Session(&gorm.Session{}).Where("(is_blurred = ? OR is_hidden = ?)", true, true).Count(&tally.Violations).Error; err != nil {
		return autolock.Tally{}, err
	}
	if err := base.Session(&gorm.Session{}).Where("is_hidden = ?", true).Count(&tally.Severe).Error; err != nil {
		return autolock.Tally{}, err
	}
	return tally, nil
}

// Lock is the only writer of posts.locked and it only ever sets it.
func (s *lockStore) Lock(ctx context.Context, postID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&Post{ID: postID}).
		Where("locked = ?", false).
		Update("locked", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
