package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxHashLength = 190

// ErrInvalidHash indicates the author hash is empty, too long, or carries disallowed characters.
var ErrInvalidHash = errors.New("identity: invalid author hash")

// ServiceConfig describes the dependencies required for author identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages anonymous author hashes and the per-author posting clock.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	known sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("identity: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// NewAuthorHash mints a fresh opaque author token.
func NewAuthorHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateHash trims and checks an author hash supplied by a client.
func ValidateHash(raw string) (string, error) {
	hash := normalize(raw)
	if hash == "" || len(hash) > maxHashLength {
		return "", ErrInvalidHash
	}
	for _, r := range hash {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", ErrInvalidHash
		}
	}
	return hash, nil
}

// Ensure creates the author row the first time a hash is seen.
func (s *Service) Ensure(ctx context.Context, hash string) error {
	hash, err := ValidateHash(hash)
	if err != nil {
		return err
	}
	if _, ok := s.known.Load(hash); ok {
		return nil
	}
	author := Author{Hash: hash, CreatedAt: s.now().UTC()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "hash"}}, DoNothing: true}).
		Create(&author).
		Error
	if err != nil {
		return err
	}
	s.known.Store(hash, struct{}{})
	return nil
}

// LastPostAt returns when the author last posted or commented. A zero time means never.
func (s *Service) LastPostAt(ctx context.Context, hash string) (time.Time, error) {
	var author Author
	err := s.db.WithContext(ctx).
		Where("hash = ?", hash).
		Take(&author).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if author.LastPostAt == nil {
		return time.Time{}, nil
	}
	return *author.LastPostAt, nil
}

// TouchLastPost records a successful post or comment by the author.
func (s *Service) TouchLastPost(ctx context.Context, hash string, at time.Time) error {
	if err := s.Ensure(ctx, hash); err != nil {
		return err
	}
	at = at.UTC()
	return s.db.WithContext(ctx).
		Model(&Author{}).
		Where("hash = ?", hash).
		Update("last_post_at", &at).
		Error
}
