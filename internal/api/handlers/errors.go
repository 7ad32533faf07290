package handlers

import (
	"errors"
	"net/http"

	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
)

// respondError maps engine errors onto HTTP codes. State-conflict errors
// come back as 409 so the client refetches the flow before retrying.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, services.ErrInvalidFlowDefinition),
		errors.Is(err, services.ErrReasonRequired):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotCurrentSigner),
		errors.Is(err, services.ErrFlowNotActive),
		errors.Is(err, services.ErrAlreadySigned),
		errors.Is(err, services.ErrTokenConsumed):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNoActiveSignatures),
		errors.Is(err, services.ErrVersionHasSignatures):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrDocumentNotFound),
		errors.Is(err, services.ErrFlowNotFound),
		errors.Is(err, services.ErrVersionNotFound),
		errors.Is(err, services.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrTokenInvalid),
		errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
