package services

import (
	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
)

// DeriveDocumentStatus computes the document-level signature status from the
// document's flows, the ledger entries on its current version, and the most
// recent reversion audit event (nil when none). It is a pure function:
// callers load state and recompute on every mutation rather than trusting a
// stored value, because a reversion can retroactively change the outcome.
//
// Precedence: IN_FLOW, then REVERTED, then UNSIGNED, then SIGNED, then
// PARTIALLY_SIGNED. REVERTED applies only when the last reversion action was
// a signatures-only revert; restoring an earlier version leaves the document
// UNSIGNED even if that version carries previously-reverted rows.
func DeriveDocumentStatus(flows []models.SignatureFlow, signatures []models.Signature, lastRevert *models.AuditEvent) models.DocumentStatus {
	for i := range flows {
		if flows[i].Status.Active() {
			return models.StatusInFlow
		}
	}

	cancelled := make(map[string]bool)
	for i := range flows {
		if flows[i].Status == models.FlowCancelled {
			cancelled[flows[i].ID] = true
		}
	}

	// A ledger row counts toward the document status only if it has not been
	// reverted and its flow was not cancelled. Cancellation stops the flow
	// without reverting captured signatures, so those rows remain in the
	// ledger but no longer carry signing weight.
	active := make(map[uint]bool)
	for i := range signatures {
		sig := &signatures[i]
		if sig.Reverted {
			continue
		}
		if sig.FlowID != "" && cancelled[sig.FlowID] {
			continue
		}
		active[sig.SignerID] = true
	}

	if len(active) == 0 {
		if lastRevert != nil && lastRevert.EventType == models.AuditSignaturesReverted {
			return models.StatusReverted
		}
		return models.StatusUnsigned
	}

	required := requiredSigners(flows)
	if len(required) == 0 {
		// Signatures exist outside any flow record; nothing more is required.
		return models.StatusSigned
	}
	for signer := range required {
		if !active[signer] {
			return models.StatusPartiallySigned
		}
	}
	return models.StatusSigned
}

// requiredSigners returns the signer set of the flow that governs the
// document: the most recently completed flow, falling back to the most
// recent flow of any terminal status.
func requiredSigners(flows []models.SignatureFlow) map[uint]bool {
	var relevant *models.SignatureFlow
	for i := range flows {
		f := &flows[i]
		if f.Status != models.FlowCompleted {
			continue
		}
		if relevant == nil || f.CreatedAt.After(relevant.CreatedAt) {
			relevant = f
		}
	}
	if relevant == nil {
		for i := range flows {
			f := &flows[i]
			if relevant == nil || f.CreatedAt.After(relevant.CreatedAt) {
				relevant = f
			}
		}
	}
	if relevant == nil {
		return nil
	}

	required := make(map[uint]bool, len(relevant.Steps))
	for _, step := range relevant.Steps {
		required[step.SignerID] = true
	}
	return required
}
