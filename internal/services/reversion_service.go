package services

import (
	"context"
	"fmt"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReversionService invalidates signing results: either by marking every
// active signature on the current version reverted, or by restoring an
// earlier unsigned version. Both paths require an administrator, a reason
// and leave an audit entry; neither can be undone at the engine level.
type ReversionService struct {
	db            *gorm.DB
	users         *UserService
	documents     *DocumentService
	flows         *FlowService
	audits        *AuditService
	notifications *NotificationService
	logger        *zap.Logger
	metrics       *metrics.MetricsCollector
}

func NewReversionService(
	db *gorm.DB,
	users *UserService,
	documents *DocumentService,
	flows *FlowService,
	audits *AuditService,
	notifications *NotificationService,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *ReversionService {
	return &ReversionService{
		db:            db,
		users:         users,
		documents:     documents,
		flows:         flows,
		audits:        audits,
		notifications: notifications,
		logger:        logger.With(zap.String("service", "reversion_service")),
		metrics:       metricsCollector,
	}
}

func (rs *ReversionService) requireAdmin(ctx context.Context, callerID uint) error {
	isAdmin, err := rs.users.IsAdministrator(ctx, callerID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// RevertSignaturesOnly marks every active signature on the document's
// current version reverted. The version content is untouched; the ledger
// rows keep their payloads and gain the reverted-* fields exactly once.
func (rs *ReversionService) RevertSignaturesOnly(ctx context.Context, docID string, callerID uint, reason string, notifySigners bool) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if err := rs.requireAdmin(ctx, callerID); err != nil {
		return err
	}

	doc, err := rs.documents.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	var active []models.Signature
	if err := rs.db.WithContext(ctx).
		Where("version_id = ? AND reverted = ?", doc.CurrentVersionID, false).
		Find(&active).Error; err != nil {
		return err
	}
	if len(active) == 0 {
		return ErrNoActiveSignatures
	}

	now := time.Now()
	err = rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Signature{}).
			Where("version_id = ? AND reverted = ?", doc.CurrentVersionID, false).
			Updates(map[string]interface{}{
				"reverted":      true,
				"reverted_at":   now,
				"reverted_by":   callerID,
				"revert_reason": reason,
			}).Error; err != nil {
			return err
		}

		return rs.audits.Record(ctx, tx, models.AuditEvent{
			EventType:  models.AuditSignaturesReverted,
			ActorID:    callerID,
			DocumentID: docID,
			Reason:     reason,
			Detail:     fmt.Sprintf("%d signatures reverted", len(active)),
		})
	})
	if err != nil {
		return err
	}

	if notifySigners {
		seen := make(map[uint]bool)
		var signers []uint
		for _, sig := range active {
			if !seen[sig.SignerID] {
				seen[sig.SignerID] = true
				signers = append(signers, sig.SignerID)
			}
		}
		rs.notifications.NotifySignaturesReverted(ctx, signers, docID, reason)
	}

	rs.flows.refreshDocumentStatus(ctx, docID)
	rs.metrics.IncrementCounter("signatures_reverted", nil)
	rs.logger.Info("Signatures reverted",
		zap.String("doc_id", docID),
		zap.Uint("caller_id", callerID),
		zap.Int("count", len(active)),
		zap.String("reason", reason))
	return nil
}

// RevertToVersion promotes an earlier version of the document to current.
// The target must carry zero active signatures; any flow still running on
// the document is force-cancelled, because it would otherwise reference a
// version that no longer carries the signatures it expects.
func (rs *ReversionService) RevertToVersion(ctx context.Context, docID, targetVersionID string, callerID uint, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if err := rs.requireAdmin(ctx, callerID); err != nil {
		return err
	}

	doc, err := rs.documents.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	var target models.DocumentVersion
	if err := rs.db.WithContext(ctx).
		First(&target, "id = ? AND document_id = ?", targetVersionID, docID).Error; err != nil {
		return ErrVersionNotFound
	}

	count, err := rs.documents.ActiveSignatureCount(ctx, targetVersionID)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrVersionHasSignatures
	}

	// Flow cancellation and the version promotion commit together: a failed
	// promotion must not leave flows cancelled against the old version.
	activeFlows, release, err := rs.flows.lockActiveFlows(ctx, docID)
	if err != nil {
		return err
	}
	defer release()

	cancelReason := "document reverted to version " + targetVersionID
	err = rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, flow := range activeFlows {
			if err := rs.flows.cancelFlowTx(ctx, tx, flow, callerID, cancelReason); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Document{}).
			Where("id = ?", docID).
			Update("current_version_id", targetVersionID).Error; err != nil {
			return err
		}

		return rs.audits.Record(ctx, tx, models.AuditEvent{
			EventType:  models.AuditRevertedToVersion,
			ActorID:    callerID,
			DocumentID: docID,
			Reason:     reason,
			Detail:     fmt.Sprintf("version %d promoted from %s", target.VersionNumber, doc.CurrentVersionID),
		})
	})
	if err != nil {
		return err
	}

	for _, flow := range activeFlows {
		rs.flows.announceCancelled(ctx, flow, cancelReason)
	}
	rs.flows.refreshDocumentStatus(ctx, docID)
	rs.metrics.IncrementCounter("documents_reverted_to_version", nil)
	rs.logger.Info("Document reverted to version",
		zap.String("doc_id", docID),
		zap.String("version_id", targetVersionID),
		zap.Uint("caller_id", callerID),
		zap.String("reason", reason))
	return nil
}

// EligibleRevertTargets lists the versions an operator may revert to:
// versions of the document with zero active signatures.
func (rs *ReversionService) EligibleRevertTargets(ctx context.Context, docID string) ([]VersionInfo, error) {
	versions, err := rs.documents.ListVersions(ctx, docID)
	if err != nil {
		return nil, err
	}

	eligible := make([]VersionInfo, 0, len(versions))
	for _, v := range versions {
		if v.ActiveSignatureCount == 0 {
			eligible = append(eligible, v)
		}
	}
	return eligible, nil
}
