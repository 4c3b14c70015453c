package content

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/autolock"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Bodies with a fixed toxicity score; anything else scores 0.
var scriptedScores = map[string]float64{
	"mildly rude":    0.70,
	"quite rude":     0.80,
	"rather rude":    0.85,
	"extremely vile": 0.97,
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

type serviceFixture struct {
	service *Service
	db      *gorm.DB
	ledger  *reputation.Ledger
	authors *identity.Service
	clock   *testClock
}

func newServiceFixture(testContext *testing.T) serviceFixture {
	testContext.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(testContext.TempDir(), "content.db")), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&identity.Author{}, &reputation.Record{}, &reputation.Event{}, &Post{}, &Comment{}, &Vote{}, &Bookmark{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	clock := &testClock{now: time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)}
	classifier, err := moderation.NewClassifier(moderation.ClassifierConfig{
		Scorer: moderation.ScorerFunc(func(_ context.Context, text string) (moderation.Scores, error) {
			return moderation.Scores{"toxic": scriptedScores[text]}, nil
		}),
		Policy: moderation.DefaultPolicy(),
	})
	if err != nil {
		testContext.Fatalf("failed to create classifier: %v", err)
	}
	authors, err := identity.NewService(identity.ServiceConfig{Database: db, Clock: clock.Now})
	if err != nil {
		testContext.Fatalf("failed to create identity service: %v", err)
	}
	ledger, err := reputation.NewLedger(reputation.LedgerConfig{Database: db, Clock: clock.Now})
	if err != nil {
		testContext.Fatalf("failed to create ledger: %v", err)
	}
	engine, err := autolock.NewEngine(autolock.Config{Store: NewLockStore(db), Rule: autolock.DefaultRule()})
	if err != nil {
		testContext.Fatalf("failed to create lock engine: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Classifier: classifier,
		Authors:    authors,
		Ledger:     ledger,
		LockEngine: engine,
		Reputation: ledger,
		IDProvider: NewUUIDProvider(),
		Limits:     DefaultLimits(),
		Clock:      clock.Now,
	})
	if err != nil {
		testContext.Fatalf("failed to create content service: %v", err)
	}
	return serviceFixture{service: service, db: db, ledger: ledger, authors: authors, clock: clock}
}

func (f serviceFixture) mustCreatePost(testContext *testing.T, author, body string) Post {
	testContext.Helper()
	post, err := f.service.CreatePost(context.Background(), CreatePostInput{AuthorHash: author, Body: body, Zone: "Campus"})
	if err != nil {
		testContext.Fatalf("create post failed: %v", err)
	}
	f.clock.Advance(DefaultCooldown)
	return post
}

func (f serviceFixture) mustCreateComment(testContext *testing.T, postID, author, body string) CommentResult {
	testContext.Helper()
	result, err := f.service.CreateComment(context.Background(), CreateCommentInput{PostID: postID, AuthorHash: author, Body: body})
	if err != nil {
		testContext.Fatalf("create comment failed: %v", err)
	}
	f.clock.Advance(DefaultCooldown)
	return result
}

func (f serviceFixture) reputationOf(testContext *testing.T, author string) int {
	testContext.Helper()
	value, err := f.ledger.GetReputation(context.Background(), author)
	if err != nil {
		testContext.Fatalf("get reputation failed: %v", err)
	}
	return value
}

func (f serviceFixture) reloadPost(testContext *testing.T, postID string) Post {
	testContext.Helper()
	var post Post
	if err := f.db.Where("id = ?", postID).Take(&post).Error; err != nil {
		testContext.Fatalf("reload post failed: %v", err)
	}
	return post
}
