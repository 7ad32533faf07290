package services

import (
	"context"
	"errors"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditService persists the discrete audit events the engine emits. Events
// are written inside the caller's transaction when one is supplied so that a
// rolled-back command leaves no trail.
type AuditService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAuditService(db *gorm.DB, logger *zap.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger.With(zap.String("service", "audit_service")),
	}
}

func (as *AuditService) Record(ctx context.Context, tx *gorm.DB, event models.AuditEvent) error {
	if tx == nil {
		tx = as.db
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}

	as.logger.Info("Audit event",
		zap.String("event_type", string(event.EventType)),
		zap.Uint("actor_id", event.ActorID),
		zap.String("doc_id", event.DocumentID),
		zap.String("flow_id", event.FlowID),
		zap.String("reason", event.Reason))
	return nil
}

// LastReversionEvent returns the most recent reversion event recorded for
// the document, or nil when no reversion has ever happened. Status derivation
// uses it to tell a signatures-only revert apart from a version restore.
func (as *AuditService) LastReversionEvent(ctx context.Context, docID string) (*models.AuditEvent, error) {
	var event models.AuditEvent
	err := as.db.WithContext(ctx).
		Where("document_id = ? AND event_type IN ?", docID,
			[]models.AuditEventType{models.AuditSignaturesReverted, models.AuditRevertedToVersion}).
		Order("created_at DESC, id DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (as *AuditService) ListForDocument(ctx context.Context, docID string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	if err := as.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
