package handlers

import (
	"net/http"

	"github.com/JoseLuisQL/SAD-sub003/internal/api/middleware"
	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FlowHandler struct {
	flows  *services.FlowService
	logger *zap.Logger
}

func NewFlowHandler(flows *services.FlowService, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{
		flows:  flows,
		logger: logger.With(zap.String("handler", "flow")),
	}
}

type createFlowRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Signers    []uint `json:"signers" binding:"required"`
}

func (h *FlowHandler) CreateFlow(c *gin.Context) {
	callerID := middleware.CallerID(c)

	var req createFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id, name and signers are required"})
		return
	}

	flow, err := h.flows.Create(c.Request.Context(), req.DocumentID, req.Name, req.Signers, callerID)
	if err != nil {
		h.logger.Warn("create flow failed", zap.Error(err), zap.String("doc_id", req.DocumentID))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flowResponse(flow))
}

func (h *FlowHandler) GetFlow(c *gin.Context) {
	flow, err := h.flows.GetFlow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowResponse(flow))
}

func (h *FlowHandler) PendingFlows(c *gin.Context) {
	callerID := middleware.CallerID(c)

	flows, err := h.flows.GetPendingFlowsForUser(c.Request.Context(), callerID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(flows))
	for i := range flows {
		out = append(out, flowResponse(&flows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"flows": out})
}

type cancelFlowRequest struct {
	Reason string `json:"reason"`
}

func (h *FlowHandler) CancelFlow(c *gin.Context) {
	callerID := middleware.CallerID(c)

	var req cancelFlowRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.flows.Cancel(c.Request.Context(), c.Param("id"), callerID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func flowResponse(flow *models.SignatureFlow) gin.H {
	steps := make([]gin.H, 0, len(flow.Steps))
	for _, s := range flow.Steps {
		steps = append(steps, gin.H{
			"signer_id": s.SignerID,
			"order":     s.Order,
			"status":    s.Status,
			"signed_at": s.SignedAt,
		})
	}
	return gin.H{
		"id":           flow.ID,
		"name":         flow.Name,
		"document_id":  flow.DocumentID,
		"status":       flow.Status,
		"current_step": flow.CurrentStep,
		"creator_id":   flow.CreatorID,
		"created_at":   flow.CreatedAt,
		"steps":        steps,
	}
}
