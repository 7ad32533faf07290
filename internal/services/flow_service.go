package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// flowLockRegistry hands out one mutex per flow id. SubmitSignature and
// Cancel on the same flow are serialized through it: the loser of a race
// re-reads the committed state and fails the state check instead of
// corrupting the step sequence.
type flowLockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFlowLockRegistry() *flowLockRegistry {
	return &flowLockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *flowLockRegistry) lockFor(flowID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, exists := r.locks[flowID]
	if !exists {
		lock = &sync.Mutex{}
		r.locks[flowID] = lock
	}
	return lock
}

// FlowService owns the lifecycle of signing workflows: creation, ordered
// step advancement, completion, cancellation and the per-document status
// derivation that the rest of the system reads.
type FlowService struct {
	db            *gorm.DB
	users         *UserService
	documents     *DocumentService
	audits        *AuditService
	notifications *NotificationService
	logger        *zap.Logger
	metrics       *metrics.MetricsCollector
	locks         *flowLockRegistry
}

func NewFlowService(
	db *gorm.DB,
	users *UserService,
	documents *DocumentService,
	audits *AuditService,
	notifications *NotificationService,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
) *FlowService {
	return &FlowService{
		db:            db,
		users:         users,
		documents:     documents,
		audits:        audits,
		notifications: notifications,
		logger:        logger.With(zap.String("service", "flow_service")),
		metrics:       metricsCollector,
		locks:         newFlowLockRegistry(),
	}
}

// Create opens a new flow over the document with the given ordered signer
// list. The list is fixed at creation: non-empty, no duplicate signers, and
// every signer must hold signing permission on the document.
func (fs *FlowService) Create(ctx context.Context, docID, name string, signerIDs []uint, creatorID uint) (*models.SignatureFlow, error) {
	if len(signerIDs) == 0 {
		return nil, fmt.Errorf("%w: signer list is empty", ErrInvalidFlowDefinition)
	}

	seen := make(map[uint]bool, len(signerIDs))
	for _, id := range signerIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate signer %d", ErrInvalidFlowDefinition, id)
		}
		seen[id] = true
	}

	if _, err := fs.documents.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	for _, id := range signerIDs {
		ok, err := fs.users.CanSign(ctx, id, docID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: signer %d cannot sign this document", ErrInvalidFlowDefinition, id)
		}
	}

	flow := &models.SignatureFlow{
		ID:          uuid.New().String(),
		Name:        name,
		DocumentID:  docID,
		Status:      models.FlowPending,
		CurrentStep: 0,
		CreatorID:   creatorID,
	}
	for i, id := range signerIDs {
		flow.Steps = append(flow.Steps, models.SignerStep{
			FlowID:   flow.ID,
			SignerID: id,
			Order:    i,
			Status:   models.StepPending,
		})
	}

	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(flow).Error; err != nil {
			return err
		}
		return fs.audits.Record(ctx, tx, models.AuditEvent{
			EventType:  models.AuditFlowCreated,
			ActorID:    creatorID,
			DocumentID: docID,
			FlowID:     flow.ID,
			Detail:     fmt.Sprintf("flow %q with %d signers", name, len(signerIDs)),
		})
	})
	if err != nil {
		return nil, err
	}

	fs.notifications.NotifyTurnToSign(ctx, signerIDs[0], docID, flow.ID)
	fs.refreshDocumentStatus(ctx, docID)
	fs.metrics.IncrementCounter("flows_created", nil)
	fs.logger.Info("Flow created",
		zap.String("flow_id", flow.ID),
		zap.String("doc_id", docID),
		zap.Int("signers", len(signerIDs)),
		zap.Uint("creator_id", creatorID))
	return flow, nil
}

// SubmitSignature records the current signer's signature, appends the ledger
// entry and advances the step index; crossing the last step completes the
// flow. The signature payload arrives already validated by the external
// signing gateway; the engine persists the validity it is given.
func (fs *FlowService) SubmitSignature(ctx context.Context, flowID string, signerID uint, payload []byte, certificate string, validity models.SignatureStatus) (*models.Signature, error) {
	start := time.Now()
	lock := fs.locks.lockFor(flowID)
	lock.Lock()
	defer lock.Unlock()

	flow, err := fs.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if !flow.Status.Active() || flow.CurrentStep < 0 || flow.CurrentStep >= len(flow.Steps) {
		return nil, ErrFlowNotActive
	}

	// A signer whose step is already SIGNED is replaying a submission that
	// succeeded once; reject it explicitly rather than silently no-op so the
	// signer is never credited twice.
	for i := range flow.Steps {
		if flow.Steps[i].SignerID == signerID && flow.Steps[i].Status == models.StepSigned {
			return nil, ErrAlreadySigned
		}
	}

	current := &flow.Steps[flow.CurrentStep]
	if current.SignerID != signerID {
		return nil, ErrNotCurrentSigner
	}
	if current.Status == models.StepSigned {
		return nil, ErrAlreadySigned
	}

	version, err := fs.documents.GetCurrentVersion(ctx, flow.DocumentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	signature := &models.Signature{
		ID:          uuid.New().String(),
		DocumentID:  flow.DocumentID,
		VersionID:   version.ID,
		FlowID:      flow.ID,
		SignerID:    signerID,
		Payload:     payload,
		Certificate: certificate,
		Status:      validity,
		Timestamp:   now,
	}

	nextStep := flow.CurrentStep + 1
	completed := nextStep >= len(flow.Steps)

	err = fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(signature).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.SignerStep{}).
			Where("id = ?", current.ID).
			Updates(map[string]interface{}{
				"status":    models.StepSigned,
				"signed_at": now,
			}).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"current_step": nextStep,
			"status":       models.FlowInProgress,
		}
		if completed {
			updates["status"] = models.FlowCompleted
			updates["completed_at"] = now
		}
		if err := tx.Model(&models.SignatureFlow{}).
			Where("id = ?", flow.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		if err := fs.audits.Record(ctx, tx, models.AuditEvent{
			EventType:  models.AuditFlowStepSigned,
			ActorID:    signerID,
			DocumentID: flow.DocumentID,
			FlowID:     flow.ID,
			Detail:     fmt.Sprintf("step %d of %d", flow.CurrentStep+1, len(flow.Steps)),
		}); err != nil {
			return err
		}

		if completed {
			return fs.audits.Record(ctx, tx, models.AuditEvent{
				EventType:  models.AuditFlowCompleted,
				ActorID:    signerID,
				DocumentID: flow.DocumentID,
				FlowID:     flow.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		fs.notifications.NotifyFlowCompleted(ctx, signerIDsOf(flow.Steps), flow.DocumentID, flow.ID)
		fs.metrics.IncrementCounter("flows_completed", nil)
	} else {
		fs.notifications.NotifyTurnToSign(ctx, flow.Steps[nextStep].SignerID, flow.DocumentID, flow.ID)
	}
	fs.refreshDocumentStatus(ctx, flow.DocumentID)
	fs.metrics.IncrementCounter("flow_steps_signed", nil)
	fs.metrics.ObserveLatency("flow_submit_signature", time.Since(start))

	fs.logger.Info("Flow step signed",
		zap.String("flow_id", flow.ID),
		zap.Uint("signer_id", signerID),
		zap.Int("step", flow.CurrentStep),
		zap.Bool("completed", completed))
	return signature, nil
}

// Cancel terminally stops a non-terminal flow. Only the creator may cancel.
// Signatures already captured stay in the ledger non-reverted; cancellation
// only stops the flow.
func (fs *FlowService) Cancel(ctx context.Context, flowID string, callerID uint, reason string) error {
	lock := fs.locks.lockFor(flowID)
	lock.Lock()
	defer lock.Unlock()

	flow, err := fs.loadFlow(ctx, flowID)
	if err != nil {
		return err
	}

	if flow.CreatorID != callerID {
		return ErrNotAuthorized
	}

	return fs.cancelLoaded(ctx, flow, callerID, reason)
}

// lockActiveFlows locks every active flow on the document and returns them
// loaded under their locks. The reversion subsystem uses it to cancel flows
// and promote a version in one transaction: a flow cannot keep referencing a
// version that no longer carries the signatures it expects. The caller must
// invoke release when its writes have committed (or failed).
func (fs *FlowService) lockActiveFlows(ctx context.Context, docID string) ([]*models.SignatureFlow, func(), error) {
	var candidates []models.SignatureFlow
	if err := fs.db.WithContext(ctx).
		Where("document_id = ? AND status IN ?", docID, []models.FlowStatus{models.FlowPending, models.FlowInProgress}).
		Find(&candidates).Error; err != nil {
		return nil, nil, err
	}

	var locked []*sync.Mutex
	release := func() {
		for _, l := range locked {
			l.Unlock()
		}
	}

	flows := make([]*models.SignatureFlow, 0, len(candidates))
	for i := range candidates {
		lock := fs.locks.lockFor(candidates[i].ID)
		lock.Lock()
		flow, err := fs.loadFlow(ctx, candidates[i].ID)
		if err != nil {
			lock.Unlock()
			release()
			return nil, nil, err
		}
		// A racing Submit may have completed the flow between the listing
		// and the lock; re-check under the lock.
		if !flow.Status.Active() {
			lock.Unlock()
			continue
		}
		locked = append(locked, lock)
		flows = append(flows, flow)
	}
	return flows, release, nil
}

// cancelFlowTx writes the cancellation of an active flow inside the caller's
// transaction. The caller holds the flow's lock and runs the post-commit
// side effects through announceCancelled once the transaction commits.
func (fs *FlowService) cancelFlowTx(ctx context.Context, tx *gorm.DB, flow *models.SignatureFlow, callerID uint, reason string) error {
	now := time.Now()
	if err := tx.Model(&models.SignerStep{}).
		Where("flow_id = ? AND status = ?", flow.ID, models.StepPending).
		Update("status", models.StepRejected).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.SignatureFlow{}).
		Where("id = ?", flow.ID).
		Updates(map[string]interface{}{
			"status":        models.FlowCancelled,
			"cancel_reason": reason,
			"cancelled_at":  now,
		}).Error; err != nil {
		return err
	}

	return fs.audits.Record(ctx, tx, models.AuditEvent{
		EventType:  models.AuditFlowCancelled,
		ActorID:    callerID,
		DocumentID: flow.DocumentID,
		FlowID:     flow.ID,
		Reason:     reason,
	})
}

// announceCancelled notifies the signers who had already committed a
// signature to the flow. Committed cancellations only.
func (fs *FlowService) announceCancelled(ctx context.Context, flow *models.SignatureFlow, reason string) {
	var committed []uint
	for _, step := range flow.Steps {
		if step.Status == models.StepSigned {
			committed = append(committed, step.SignerID)
		}
	}
	fs.notifications.NotifyFlowCancelled(ctx, committed, flow.DocumentID, flow.ID, reason)
	fs.metrics.IncrementCounter("flows_cancelled", nil)
}

func (fs *FlowService) cancelLoaded(ctx context.Context, flow *models.SignatureFlow, callerID uint, reason string) error {
	if !flow.Status.Active() {
		return ErrFlowNotActive
	}

	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fs.cancelFlowTx(ctx, tx, flow, callerID, reason)
	})
	if err != nil {
		return err
	}

	fs.announceCancelled(ctx, flow, reason)
	fs.refreshDocumentStatus(ctx, flow.DocumentID)

	fs.logger.Info("Flow cancelled",
		zap.String("flow_id", flow.ID),
		zap.Uint("caller_id", callerID),
		zap.String("reason", reason))
	return nil
}

// GetPendingFlowsForUser lists flows where the user is the signer at the
// current step. Pure read, restartable.
func (fs *FlowService) GetPendingFlowsForUser(ctx context.Context, userID uint) ([]models.SignatureFlow, error) {
	var flows []models.SignatureFlow
	if err := fs.db.WithContext(ctx).
		Preload("Steps", stepOrder).
		Where("status IN ?", []models.FlowStatus{models.FlowPending, models.FlowInProgress}).
		Order("created_at ASC").
		Find(&flows).Error; err != nil {
		return nil, err
	}

	pending := make([]models.SignatureFlow, 0)
	for i := range flows {
		if signer, ok := flows[i].CurrentSigner(); ok && signer == userID {
			pending = append(pending, flows[i])
		}
	}
	return pending, nil
}

func (fs *FlowService) GetFlow(ctx context.Context, flowID string) (*models.SignatureFlow, error) {
	return fs.loadFlow(ctx, flowID)
}

// DocumentStatus recomputes the derived signature status from flow and
// ledger state.
func (fs *FlowService) DocumentStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := fs.documents.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}

	var flows []models.SignatureFlow
	if err := fs.db.WithContext(ctx).
		Preload("Steps", stepOrder).
		Where("document_id = ?", docID).
		Find(&flows).Error; err != nil {
		return "", err
	}

	var signatures []models.Signature
	if err := fs.db.WithContext(ctx).
		Where("version_id = ?", doc.CurrentVersionID).
		Find(&signatures).Error; err != nil {
		return "", err
	}

	lastRevert, err := fs.audits.LastReversionEvent(ctx, docID)
	if err != nil {
		return "", err
	}

	return DeriveDocumentStatus(flows, signatures, lastRevert), nil
}

// refreshDocumentStatus recomputes the derived status and stores it on the
// document row for display. The column is a cache; every decision point in
// the engine recomputes instead of reading it.
func (fs *FlowService) refreshDocumentStatus(ctx context.Context, docID string) {
	status, err := fs.DocumentStatus(ctx, docID)
	if err != nil {
		fs.logger.Warn("Failed to recompute document status", zap.Error(err), zap.String("doc_id", docID))
		return
	}
	if err := fs.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", docID).
		Update("status", status).Error; err != nil {
		fs.logger.Warn("Failed to store document status", zap.Error(err), zap.String("doc_id", docID))
	}
}

func (fs *FlowService) loadFlow(ctx context.Context, flowID string) (*models.SignatureFlow, error) {
	var flow models.SignatureFlow
	err := fs.db.WithContext(ctx).
		Preload("Steps", stepOrder).
		First(&flow, "id = ?", flowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}
	return &flow, nil
}

func stepOrder(db *gorm.DB) *gorm.DB {
	return db.Order("step_order ASC")
}

func signerIDsOf(steps []models.SignerStep) []uint {
	ids := make([]uint, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.SignerID)
	}
	return ids
}
