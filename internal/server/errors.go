package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/content"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponsePayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondWithCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponsePayload{Error: code, Message: message})
}

// statusForError maps content error kinds onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, content.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, content.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, content.ErrThreadLocked):
		return http.StatusConflict
	case errors.Is(err, content.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := statusForError(err)
	code := "internal_error"
	var serviceErr *content.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	var rateErr *content.RateLimitError
	if errors.As(err, &rateErr) {
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
		message = "internal error"
	}
	respondWithCode(c, status, code, message)
}
