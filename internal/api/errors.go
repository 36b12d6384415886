package api

import (
	"errors"
	"net/http"

	"auditorium/internal/auth"
	"auditorium/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(kind domain.Kind, authenticated bool) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidState:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthorization:
		if !authenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		abortWith(c, http.StatusUnauthorized, "authentication", err.Error())
		return
	}

	kind := domain.KindOf(err)
	status := statusFor(kind, actorFrom(c).Authenticated())
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		abortWith(c, status, "internal", "Server Error")
		return
	}
	abortWith(c, status, string(kind), err.Error())
}

func abortWith(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   errorBody{Kind: kind, Message: message},
	})
}
