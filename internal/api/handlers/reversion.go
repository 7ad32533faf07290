package handlers

import (
	"net/http"

	"github.com/JoseLuisQL/SAD-sub003/internal/api/middleware"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReversionHandler struct {
	reversions *services.ReversionService
	logger     *zap.Logger
}

func NewReversionHandler(reversions *services.ReversionService, logger *zap.Logger) *ReversionHandler {
	return &ReversionHandler{
		reversions: reversions,
		logger:     logger.With(zap.String("handler", "reversion")),
	}
}

type revertSignaturesRequest struct {
	Reason        string `json:"reason"`
	NotifySigners bool   `json:"notify_signers"`
}

func (h *ReversionHandler) RevertSignatures(c *gin.Context) {
	callerID := middleware.CallerID(c)
	docID := c.Param("id")

	var req revertSignaturesRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.reversions.RevertSignaturesOnly(c.Request.Context(), docID, callerID, req.Reason, req.NotifySigners); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signatures reverted"})
}

type revertVersionRequest struct {
	VersionID string `json:"version_id" binding:"required"`
	Reason    string `json:"reason"`
}

func (h *ReversionHandler) RevertToVersion(c *gin.Context) {
	callerID := middleware.CallerID(c)
	docID := c.Param("id")

	var req revertVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version_id is required"})
		return
	}

	if err := h.reversions.RevertToVersion(c.Request.Context(), docID, req.VersionID, callerID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "document reverted"})
}

// RevertTargets lists the versions eligible as revert targets so the
// operator can choose one instead of receiving a bare rejection.
func (h *ReversionHandler) RevertTargets(c *gin.Context) {
	targets, err := h.reversions.EligibleRevertTargets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}
