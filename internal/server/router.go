package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/content"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AuthorHashHeader carries the caller's anonymous author hash.
const AuthorHashHeader = "X-Author-Hash"

var (
	errMissingContentService = errors.New("content service dependency required")
	errMissingClassifier     = errors.New("classifier dependency required")
	errMissingIdentity       = errors.New("identity dependency required")
	errMissingProfiles       = errors.New("profile reader dependency required")
	errMissingHub            = errors.New("realtime hub dependency required")
)

// Classifier scores free text for the moderation endpoint.
type Classifier interface {
	Classify(ctx context.Context, text string) moderation.Verdict
}

// AuthorRegistry records freshly minted author hashes.
type AuthorRegistry interface {
	Ensure(ctx context.Context, hash string) error
}

// ProfileReader loads an author's public aggregate.
type ProfileReader interface {
	ProfileStats(ctx context.Context, authorHash string) (reputation.Profile, error)
}

type Dependencies struct {
	ContentService *content.Service
	Classifier     Classifier
	Identity       AuthorRegistry
	// Reputation serves single-author lookups; Profiles is used when nil.
	Reputation        reputation.Reader
	Profiles          ProfileReader
	Hub               *realtime.Hub
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ContentService == nil {
		return nil, errMissingContentService
	}
	if deps.Classifier == nil {
		return nil, errMissingClassifier
	}
	if deps.Identity == nil {
		return nil, errMissingIdentity
	}
	if deps.Profiles == nil {
		return nil, errMissingProfiles
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reputationReader := deps.Reputation
	if reputationReader == nil {
		reputationReader = profileScoreReader{profiles: deps.Profiles}
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		contentService: deps.ContentService,
		classifier:     deps.Classifier,
		identity:       deps.Identity,
		reputation:     reputationReader,
		profiles:       deps.Profiles,
		hub:            deps.Hub,
		heartbeat:      heartbeat,
		logger:         logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/identity", handler.handleMintIdentity)
	router.GET("/zones", handler.handleListZones)
	router.POST("/moderate", handler.handleModerate)
	router.GET("/reputation", handler.handleGetReputation)
	router.GET("/profiles/:hash", handler.handleGetProfile)

	router.GET("/posts", handler.handleListPosts)
	router.POST("/posts", handler.handleCreatePost)
	router.GET("/posts/:id", handler.handleGetPost)
	router.PATCH("/posts/:id", handler.handleEditPost)
	router.DELETE("/posts/:id", handler.handleDeletePost)
	router.GET("/posts/:id/comments", handler.handleListComments)
	router.POST("/posts/:id/comments", handler.handleCreateComment)
	router.POST("/posts/:id/vote", handler.handleCastVote)
	router.POST("/posts/:id/bookmark", handler.handleToggleBookmark)
	router.PATCH("/comments/:id", handler.handleEditComment)
	router.DELETE("/comments/:id", handler.handleDeleteComment)

	router.GET("/realtime/stream", handler.handleRealtimeStream)
	router.GET("/realtime/feed", handler.handleRealtimeFeed)
	router.GET("/realtime/ws", handler.handleRealtimeWebsocket)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", AuthorHashHeader},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			config.AllowAllOrigins = true
			origins = nil
			break
		}
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	contentService *content.Service
	classifier     Classifier
	identity       AuthorRegistry
	reputation     reputation.Reader
	profiles       ProfileReader
	hub            *realtime.Hub
	heartbeat      time.Duration
	logger         *zap.Logger
}

type profileScoreReader struct {
	profiles ProfileReader
}

func (r profileScoreReader) GetReputation(ctx context.Context, authorHash string) (int, error) {
	profile, err := r.profiles.ProfileStats(ctx, authorHash)
	if err != nil {
		return 0, err
	}
	return profile.Reputation, nil
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type identityResponsePayload struct {
	AuthorHash string `json:"author_hash"`
}

func (h *httpHandler) handleMintIdentity(c *gin.Context) {
	hash := identity.NewAuthorHash()
	if err := h.identity.Ensure(c.Request.Context(), hash); err != nil {
		h.logger.Error("failed to register author hash", zap.Error(err))
		respondWithCode(c, http.StatusInternalServerError, "identity.storage_failed", "could not register identity")
		return
	}
	c.JSON(http.StatusCreated, identityResponsePayload{AuthorHash: hash})
}

func (h *httpHandler) handleListZones(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"zones": h.contentService.Zones()})
}

type moderateRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleModerate(c *gin.Context) {
	var request moderateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Text) == "" {
		respondWithCode(c, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	c.JSON(http.StatusOK, h.classifier.Classify(c.Request.Context(), request.Text))
}

type reputationResponsePayload struct {
	AuthorHash string          `json:"author_hash"`
	Reputation int             `json:"reputation"`
	Tier       reputation.Tier `json:"tier"`
}

// handleGetReputation never fails on lookup errors; the score degrades to 0.
func (h *httpHandler) handleGetReputation(c *gin.Context) {
	hash, err := identity.ValidateHash(c.Query("hash"))
	if err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_author_hash", err.Error())
		return
	}
	score, err := h.reputation.GetReputation(c.Request.Context(), hash)
	if err != nil {
		h.logger.Warn("reputation lookup failed", zap.String("author_hash", hash), zap.Error(err))
		score = 0
	}
	c.JSON(http.StatusOK, reputationResponsePayload{
		AuthorHash: hash,
		Reputation: score,
		Tier:       reputation.TierFor(score),
	})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	hash, err := identity.ValidateHash(c.Param("hash"))
	if err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_author_hash", err.Error())
		return
	}
	profile, err := h.profiles.ProfileStats(c.Request.Context(), hash)
	if err != nil {
		h.logger.Error("profile lookup failed", zap.String("author_hash", hash), zap.Error(err))
		respondWithCode(c, http.StatusInternalServerError, "profile.storage_failed", "could not load profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

func authorHash(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(AuthorHashHeader))
}
