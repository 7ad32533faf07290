package handlers

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/api/middleware"
	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SigningHandler is the external signing gateway boundary: it issues
// one-time tokens for the native signing client and accepts the callback
// carrying the signed result. Cryptographic verification happens in the
// external component; this handler performs structural validation only and
// persists the validity it is handed.
type SigningHandler struct {
	tokens       *services.TokenService
	flows        *services.FlowService
	callbackSkew time.Duration
	logger       *zap.Logger
}

func NewSigningHandler(tokens *services.TokenService, flows *services.FlowService, callbackSkew time.Duration, logger *zap.Logger) *SigningHandler {
	return &SigningHandler{
		tokens:       tokens,
		flows:        flows,
		callbackSkew: callbackSkew,
		logger:       logger.With(zap.String("handler", "signing")),
	}
}

type issueTokenRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	FlowID     string `json:"flow_id"`
	Reason     string `json:"reason"`
}

// IssueToken mints a single-use signing token bound to the caller. The
// caller must be the current signer of the flow when a flow id is given.
func (h *SigningHandler) IssueToken(c *gin.Context) {
	callerID := middleware.CallerID(c)

	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id is required"})
		return
	}

	if req.FlowID != "" {
		flow, err := h.flows.GetFlow(c.Request.Context(), req.FlowID)
		if err != nil {
			respondError(c, err)
			return
		}
		if signer, ok := flow.CurrentSigner(); !ok || signer != callerID {
			respondError(c, services.ErrNotCurrentSigner)
			return
		}
	}

	token, err := h.tokens.IssueSigningToken(req.DocumentID, callerID, req.Reason, req.FlowID)
	if err != nil {
		h.logger.Error("token issuance failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

type signedResultRequest struct {
	Token       string `json:"token" binding:"required"`
	Payload     string `json:"payload" binding:"required"` // base64 signed bytes
	Certificate struct {
		Subject string `json:"subject"`
		Issuer  string `json:"issuer"`
		Serial  string `json:"serial"`
		PEM     string `json:"pem"`
	} `json:"certificate"`
	SignedAt time.Time `json:"signed_at"`
	Validity string    `json:"validity"` // VALID | INVALID | INDETERMINATE
}

// Callback redeems the token and hands the verified signature material to
// the flow engine. The token is consumed on this first redemption whether
// or not the submission succeeds.
func (h *SigningHandler) Callback(c *gin.Context) {
	var req signedResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and payload are required"})
		return
	}

	signingCtx, err := h.tokens.RedeemToken(req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be non-empty base64"})
		return
	}
	if req.Certificate.Subject == "" || req.Certificate.Issuer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "certificate subject and issuer are required"})
		return
	}
	if req.SignedAt.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signed_at is required"})
		return
	}
	if skew := time.Since(req.SignedAt); skew < -h.callbackSkew || skew > h.callbackSkew {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signing timestamp outside acceptable skew"})
		return
	}

	validity := models.SignatureStatus(req.Validity)
	switch validity {
	case models.SignatureValid, models.SignatureInvalid, models.SignatureIndeterminate:
	case "":
		validity = models.SignatureIndeterminate
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown validity value"})
		return
	}

	signature, err := h.flows.SubmitSignature(
		c.Request.Context(),
		signingCtx.FlowID,
		signingCtx.SignerID,
		payload,
		req.Certificate.PEM,
		validity,
	)
	if err != nil {
		h.logger.Warn("signature submission rejected",
			zap.Error(err),
			zap.String("flow_id", signingCtx.FlowID),
			zap.Uint("signer_id", signingCtx.SignerID))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"signature_id": signature.ID,
		"document_id":  signature.DocumentID,
		"version_id":   signature.VersionID,
		"status":       signature.Status,
	})
}
