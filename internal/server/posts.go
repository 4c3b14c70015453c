package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/content"
	"github.com/gin-gonic/gin"
)

type createPostRequestPayload struct {
	Body string `json:"body"`
	Zone string `json:"zone"`
}

type editRequestPayload struct {
	Body string `json:"body"`
}

type voteRequestPayload struct {
	Value int `json:"value"`
}

type feedResponsePayload struct {
	Zone  string             `json:"zone"`
	Posts []content.FeedItem `json:"posts"`
}

type commentsResponsePayload struct {
	PostID   string            `json:"post_id"`
	Comments []content.Comment `json:"comments"`
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithCode(c, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	zone := c.Query("zone")
	items, err := h.contentService.ListPosts(c.Request.Context(), content.ListPostsInput{
		Zone:   zone,
		Limit:  limit,
		Viewer: authorHash(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feedResponsePayload{Zone: strings.TrimSpace(zone), Posts: items})
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	item, err := h.contentService.GetPost(c.Request.Context(), c.Param("id"), authorHash(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request createPostRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	post, err := h.contentService.CreatePost(c.Request.Context(), content.CreatePostInput{
		AuthorHash: authorHash(c),
		Body:       request.Body,
		Zone:       request.Zone,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *httpHandler) handleEditPost(c *gin.Context) {
	var request editRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	post, err := h.contentService.EditPost(c.Request.Context(), content.EditInput{
		ID:         c.Param("id"),
		AuthorHash: authorHash(c),
		Body:       request.Body,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	if err := h.contentService.DeletePost(c.Request.Context(), c.Param("id"), authorHash(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	postID := c.Param("id")
	comments, err := h.contentService.ListComments(c.Request.Context(), postID, authorHash(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commentsResponsePayload{PostID: postID, Comments: comments})
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request editRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	result, err := h.contentService.CreateComment(c.Request.Context(), content.CreateCommentInput{
		PostID:     c.Param("id"),
		AuthorHash: authorHash(c),
		Body:       request.Body,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *httpHandler) handleEditComment(c *gin.Context) {
	var request editRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	result, err := h.contentService.EditComment(c.Request.Context(), content.EditInput{
		ID:         c.Param("id"),
		AuthorHash: authorHash(c),
		Body:       request.Body,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	if err := h.contentService.DeleteComment(c.Request.Context(), c.Param("id"), authorHash(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondWithCode(c, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	post, err := h.contentService.CastVote(c.Request.Context(), c.Param("id"), authorHash(c), request.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *httpHandler) handleToggleBookmark(c *gin.Context) {
	result, err := h.contentService.ToggleBookmark(c.Request.Context(), c.Param("id"), authorHash(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
