package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentService is the document/version store: immutable versions, a
// current-version pointer per document, and active-signature counts consumed
// by the reversion preconditions.
type DocumentService struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
}

type VersionInfo struct {
	ID                   string
	VersionNumber        int
	ActiveSignatureCount int
	CreatedAt            time.Time
}

func NewDocumentService(db *gorm.DB, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) *DocumentService {
	return &DocumentService{
		db:      db,
		logger:  logger.With(zap.String("service", "document_service")),
		metrics: metricsCollector,
	}
}

func (ds *DocumentService) CreateDocument(ctx context.Context, ownerID uint, title, classification string, content []byte) (*models.Document, error) {
	start := time.Now()
	docID := uuid.New().String()
	versionID := uuid.New().String()
	hash := sha256.Sum256(content)

	doc := &models.Document{
		ID:               docID,
		Title:            title,
		OwnerID:          ownerID,
		Classification:   classification,
		CurrentVersionID: versionID,
		Status:           models.StatusUnsigned,
	}
	version := &models.DocumentVersion{
		ID:            versionID,
		DocumentID:    docID,
		VersionNumber: 1,
		Content:       content,
		ContentHash:   hex.EncodeToString(hash[:]),
		UploadedBy:    ownerID,
	}

	err := ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return tx.Create(version).Error
	})
	if err != nil {
		return nil, err
	}

	ds.metrics.IncrementCounter("documents_created", nil)
	ds.metrics.ObserveLatency("document_create", time.Since(start))
	ds.logger.Info("Document created", zap.String("doc_id", docID), zap.Uint("owner_id", ownerID))
	return doc, nil
}

// AddVersion appends a new immutable version and moves the current-version
// pointer onto it.
func (ds *DocumentService) AddVersion(ctx context.Context, docID string, uploadedBy uint, content []byte) (*models.DocumentVersion, error) {
	doc, err := ds.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	var last models.DocumentVersion
	if err := ds.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("version_number DESC").
		First(&last).Error; err != nil {
		return nil, err
	}

	hash := sha256.Sum256(content)
	version := &models.DocumentVersion{
		ID:            uuid.New().String(),
		DocumentID:    docID,
		VersionNumber: last.VersionNumber + 1,
		Content:       content,
		ContentHash:   hex.EncodeToString(hash[:]),
		UploadedBy:    uploadedBy,
	}

	err = ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return err
		}
		return tx.Model(&models.Document{}).
			Where("id = ?", doc.ID).
			Update("current_version_id", version.ID).Error
	})
	if err != nil {
		return nil, err
	}

	ds.metrics.IncrementCounter("document_versions_added", nil)
	return version, nil
}

func (ds *DocumentService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	if err := ds.db.WithContext(ctx).First(&doc, "id = ?", docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (ds *DocumentService) GetVersion(ctx context.Context, versionID string) (*VersionInfo, error) {
	var version models.DocumentVersion
	if err := ds.db.WithContext(ctx).First(&version, "id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}

	count, err := ds.ActiveSignatureCount(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return &VersionInfo{
		ID:                   version.ID,
		VersionNumber:        version.VersionNumber,
		ActiveSignatureCount: count,
		CreatedAt:            version.CreatedAt,
	}, nil
}

func (ds *DocumentService) GetCurrentVersion(ctx context.Context, docID string) (*models.DocumentVersion, error) {
	doc, err := ds.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	var version models.DocumentVersion
	if err := ds.db.WithContext(ctx).First(&version, "id = ?", doc.CurrentVersionID).Error; err != nil {
		return nil, err
	}
	return &version, nil
}

// PromoteVersion points the document at an existing version. The version
// must belong to the document.
func (ds *DocumentService) PromoteVersion(ctx context.Context, docID, versionID string) error {
	var version models.DocumentVersion
	if err := ds.db.WithContext(ctx).
		First(&version, "id = ? AND document_id = ?", versionID, docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		return err
	}

	if err := ds.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", docID).
		Update("current_version_id", versionID).Error; err != nil {
		return err
	}

	ds.logger.Info("Version promoted to current",
		zap.String("doc_id", docID),
		zap.String("version_id", versionID),
		zap.Int("version_number", version.VersionNumber))
	return nil
}

// ActiveSignatureCount counts non-reverted ledger rows on one version.
func (ds *DocumentService) ActiveSignatureCount(ctx context.Context, versionID string) (int, error) {
	var count int64
	if err := ds.db.WithContext(ctx).Model(&models.Signature{}).
		Where("version_id = ? AND reverted = ?", versionID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (ds *DocumentService) ListVersions(ctx context.Context, docID string) ([]VersionInfo, error) {
	var versions []models.DocumentVersion
	if err := ds.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("version_number ASC").
		Find(&versions).Error; err != nil {
		return nil, err
	}

	infos := make([]VersionInfo, 0, len(versions))
	for _, v := range versions {
		count, err := ds.ActiveSignatureCount(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, VersionInfo{
			ID:                   v.ID,
			VersionNumber:        v.VersionNumber,
			ActiveSignatureCount: count,
			CreatedAt:            v.CreatedAt,
		})
	}
	return infos, nil
}

func (ds *DocumentService) ListDocuments(ctx context.Context, userID uint) ([]models.Document, error) {
	var docs []models.Document
	if err := ds.db.WithContext(ctx).
		Where("owner_id = ? OR classification = ?", userID, "PUBLIC").
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
