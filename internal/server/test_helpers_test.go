package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/autolock"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/content"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/database"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Bodies with a fixed toxicity score; anything else scores 0.
var scriptedScores = map[string]float64{
	"mildly rude":    0.70,
	"extremely vile": 0.97,
}

type apiFixture struct {
	handler http.Handler
	hub     *realtime.Hub
	ledger  *reputation.Ledger
}

type fixtureOptions struct {
	cooldown   bool
	reputation reputation.Reader
}

func newAPIFixture(testContext *testing.T, options fixtureOptions) apiFixture {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	notifier := realtime.NewNotifier(realtime.NotifierConfig{
		Publisher: hub,
		Tables:    []string{"posts", "comments", "reputation"},
		Redact:    content.RedactChangeRow,
	})
	db, err := database.Open(database.Options{
		Driver:  database.DriverSQLite,
		Path:    filepath.Join(testContext.TempDir(), "api.db"),
		Plugins: []gorm.Plugin{notifier},
	}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	classifier, err := moderation.NewClassifier(moderation.ClassifierConfig{
		Scorer: moderation.ScorerFunc(func(_ context.Context, text string) (moderation.Scores, error) {
			return moderation.Scores{"toxic": scriptedScores[text]}, nil
		}),
		Policy: moderation.DefaultPolicy(),
	})
	if err != nil {
		testContext.Fatalf("failed to create classifier: %v", err)
	}
	authors, err := identity.NewService(identity.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to create identity service: %v", err)
	}
	ledger, err := reputation.NewLedger(reputation.LedgerConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to create ledger: %v", err)
	}
	engine, err := autolock.NewEngine(autolock.Config{Store: content.NewLockStore(db), Rule: autolock.DefaultRule()})
	if err != nil {
		testContext.Fatalf("failed to create lock engine: %v", err)
	}
	limits := content.DefaultLimits()
	if !options.cooldown {
		limits.Cooldown = 0
	}
	contentService, err := content.NewService(content.ServiceConfig{
		Database:   db,
		Classifier: classifier,
		Authors:    authors,
		Ledger:     ledger,
		LockEngine: engine,
		Reputation: ledger,
		IDProvider: content.NewUUIDProvider(),
		Limits:     limits,
	})
	if err != nil {
		testContext.Fatalf("failed to create content service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		ContentService: contentService,
		Classifier:     classifier,
		Identity:       authors,
		Reputation:     options.reputation,
		Profiles:       ledger,
		Hub:            hub,
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}
	return apiFixture{handler: handler, hub: hub, ledger: ledger}
}

func (f apiFixture) do(method, path, author string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	request := httptest.NewRequest(method, path, &body)
	request.Header.Set("Content-Type", "application/json")
	if author != "" {
		request.Header.Set(AuthorHashHeader, author)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f apiFixture) mustCreatePost(testContext *testing.T, author, body string) content.Post {
	testContext.Helper()
	recorder := f.do(http.MethodPost, "/posts", author, gin.H{"body": body, "zone": "Campus"})
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("create post: unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var post content.Post
	decodeBody(testContext, recorder, &post)
	return post
}

func decodeBody(testContext *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	testContext.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorCode(testContext *testing.T, recorder *httptest.ResponseRecorder) string {
	testContext.Helper()
	var payload errorResponsePayload
	decodeBody(testContext, recorder, &payload)
	return payload.Error
}
