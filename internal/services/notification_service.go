package services

import (
	"context"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService writes outbox rows; actual delivery is out of band.
type NotificationService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewNotificationService(db *gorm.DB, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		db:     db,
		logger: logger.With(zap.String("service", "notification_service")),
	}
}

func (ns *NotificationService) notify(ctx context.Context, recipientID uint, kind models.NotificationKind, docID, flowID, message string) {
	n := models.Notification{
		RecipientID: recipientID,
		Kind:        kind,
		DocumentID:  docID,
		FlowID:      flowID,
		Message:     message,
	}
	if err := ns.db.WithContext(ctx).Create(&n).Error; err != nil {
		// Notifications are best-effort; a failed write must not fail the
		// command that triggered it.
		ns.logger.Warn("Failed to store notification",
			zap.Error(err),
			zap.Uint("recipient_id", recipientID),
			zap.String("kind", string(kind)))
	}
}

func (ns *NotificationService) NotifyTurnToSign(ctx context.Context, signerID uint, docID, flowID string) {
	ns.notify(ctx, signerID, models.NotifyTurnToSign, docID, flowID, "It is your turn to sign this document")
}

func (ns *NotificationService) NotifyFlowCompleted(ctx context.Context, signerIDs []uint, docID, flowID string) {
	for _, id := range signerIDs {
		ns.notify(ctx, id, models.NotifyFlowCompleted, docID, flowID, "The signing flow has been completed")
	}
}

func (ns *NotificationService) NotifyFlowCancelled(ctx context.Context, signerIDs []uint, docID, flowID, reason string) {
	for _, id := range signerIDs {
		ns.notify(ctx, id, models.NotifyFlowCancelled, docID, flowID, "The signing flow was cancelled: "+reason)
	}
}

func (ns *NotificationService) NotifySignaturesReverted(ctx context.Context, signerIDs []uint, docID, reason string) {
	for _, id := range signerIDs {
		ns.notify(ctx, id, models.NotifySignaturesReverted, docID, "", "Your signature was reverted: "+reason)
	}
}

func (ns *NotificationService) ListUnread(ctx context.Context, userID uint) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := ns.db.WithContext(ctx).
		Where("recipient_id = ? AND read = ?", userID, false).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (ns *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	return ns.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		Update("read", true).Error
}
