package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JoseLuisQL/SAD-sub003/internal/api/middleware"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	documents *services.DocumentService
	flows     *services.FlowService
	audits    *services.AuditService
	logger    *zap.Logger
}

func NewDocumentHandler(
	documents *services.DocumentService,
	flows *services.FlowService,
	audits *services.AuditService,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		flows:     flows,
		audits:    audits,
		logger:    logger.With(zap.String("handler", "document")),
	}
}

func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	callerID := middleware.CallerID(c)

	title := c.PostForm("title")
	classification := c.PostForm("classification")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file is required"})
		return
	}
	if ext := strings.ToLower(filepath.Ext(fileHeader.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF files are allowed"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.logger.Error("read file failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}

	doc, err := h.documents.CreateDocument(c.Request.Context(), callerID, title, classification, content)
	if err != nil {
		h.logger.Error("save document failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":                 doc.ID,
		"title":              doc.Title,
		"current_version_id": doc.CurrentVersionID,
	})
}

func (h *DocumentHandler) UploadVersion(c *gin.Context) {
	callerID := middleware.CallerID(c)
	docID := c.Param("id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}

	version, err := h.documents.AddVersion(c.Request.Context(), docID, callerID, content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"version_id":     version.ID,
		"version_number": version.VersionNumber,
	})
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	callerID := middleware.CallerID(c)

	docs, err := h.documents.ListDocuments(c.Request.Context(), callerID)
	if err != nil {
		h.logger.Error("list documents failed", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetStatus recomputes the derived signature status; the stored column is
// display-only.
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	docID := c.Param("id")
	status, err := h.flows.DocumentStatus(c.Request.Context(), docID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": docID, "status": status})
}

func (h *DocumentHandler) ListVersions(c *gin.Context) {
	versions, err := h.documents.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *DocumentHandler) DownloadDocument(c *gin.Context) {
	version, err := h.documents.GetCurrentVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `inline; filename="document.pdf"`)
	c.Writer.Write(version.Content)
}

func (h *DocumentHandler) AuditTrail(c *gin.Context) {
	events, err := h.audits.ListForDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
