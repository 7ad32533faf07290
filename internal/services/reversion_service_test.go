package services

import (
	"context"
	"errors"
	"testing"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// completeFlow runs a two-signer flow to completion on the document.
func completeFlow(t *testing.T, f *fixture, docID string, creator, a, b uint) *models.SignatureFlow {
	t.Helper()
	ctx := context.Background()

	flow, err := f.flows.Create(ctx, docID, "para revertir", []uint{a, b}, creator)
	require.NoError(t, err)
	_, err = submit(t, f, flow.ID, a)
	require.NoError(t, err)
	_, err = submit(t, f, flow.ID, b)
	require.NoError(t, err)
	return flow
}

func TestRevertSignaturesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	a := f.createUser(t, "signer-a", models.RoleAgent)
	b := f.createUser(t, "signer-b", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)
	completeFlow(t, f, doc.ID, admin.ID, a.ID, b.ID)

	err := f.reversions.RevertSignaturesOnly(ctx, doc.ID, admin.ID, "destinatario equivocado", true)
	require.NoError(t, err)

	var sigs []models.Signature
	require.NoError(t, f.db.Where("document_id = ?", doc.ID).Find(&sigs).Error)
	require.Len(t, sigs, 2)
	for _, s := range sigs {
		assert.True(t, s.Reverted)
		require.NotNil(t, s.RevertedAt)
		require.NotNil(t, s.RevertedBy)
		assert.Equal(t, admin.ID, *s.RevertedBy)
		assert.Equal(t, "destinatario equivocado", s.RevertReason)
	}

	status, err := f.flows.DocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReverted, status)

	// Both original signers were notified.
	for _, signer := range []uint{a.ID, b.ID} {
		unread, err := f.notifications.ListUnread(ctx, signer)
		require.NoError(t, err)
		var kinds []models.NotificationKind
		for _, n := range unread {
			kinds = append(kinds, n.Kind)
		}
		assert.Contains(t, kinds, models.NotifySignaturesReverted)
	}

	// A second revert finds nothing active.
	err = f.reversions.RevertSignaturesOnly(ctx, doc.ID, admin.ID, "de nuevo", false)
	assert.ErrorIs(t, err, ErrNoActiveSignatures)
}

func TestRevertSignaturesPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	agent := f.createUser(t, "agent", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)

	err := f.reversions.RevertSignaturesOnly(ctx, doc.ID, admin.ID, "", false)
	assert.ErrorIs(t, err, ErrReasonRequired)

	err = f.reversions.RevertSignaturesOnly(ctx, doc.ID, agent.ID, "motivo", false)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	err = f.reversions.RevertSignaturesOnly(ctx, doc.ID, admin.ID, "motivo", false)
	assert.ErrorIs(t, err, ErrNoActiveSignatures)
}

func TestRevertToVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	a := f.createUser(t, "signer-a", models.RoleAgent)
	b := f.createUser(t, "signer-b", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)
	firstVersion := doc.CurrentVersionID

	second, err := f.documents.AddVersion(ctx, doc.ID, admin.ID, []byte("%PDF-1.4 v2"))
	require.NoError(t, err)
	completeFlow(t, f, doc.ID, admin.ID, a.ID, b.ID)

	// Signed current version cannot be a revert target.
	err = f.reversions.RevertToVersion(ctx, doc.ID, second.ID, admin.ID, "volver")
	assert.ErrorIs(t, err, ErrVersionHasSignatures)

	// Failed precondition mutates nothing.
	current, err := f.documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.CurrentVersionID)

	err = f.reversions.RevertToVersion(ctx, doc.ID, "no-such-version", admin.ID, "volver")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	require.NoError(t, f.reversions.RevertToVersion(ctx, doc.ID, firstVersion, admin.ID, "volver a la versión limpia"))

	current, err = f.documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, firstVersion, current.CurrentVersionID)

	status, err := f.flows.DocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnsigned, status)
}

func TestRevertToVersionCancelsActiveFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	a := f.createUser(t, "signer-a", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)
	firstVersion := doc.CurrentVersionID

	_, err := f.documents.AddVersion(ctx, doc.ID, admin.ID, []byte("%PDF-1.4 v2"))
	require.NoError(t, err)

	flow, err := f.flows.Create(ctx, doc.ID, "en curso", []uint{a.ID}, admin.ID)
	require.NoError(t, err)

	require.NoError(t, f.reversions.RevertToVersion(ctx, doc.ID, firstVersion, admin.ID, "rollback"))

	loaded, err := f.flows.GetFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowCancelled, loaded.Status)
}

func TestRevertToVersionIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	a := f.createUser(t, "signer-a", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)
	firstVersion := doc.CurrentVersionID

	second, err := f.documents.AddVersion(ctx, doc.ID, admin.ID, []byte("%PDF-1.4 v2"))
	require.NoError(t, err)

	flow, err := f.flows.Create(ctx, doc.ID, "en curso", []uint{a.ID}, admin.ID)
	require.NoError(t, err)

	// Make the version-pointer update fail mid-transaction: the flow
	// cancellation written in the same transaction must roll back with it.
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("refuse_document_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "documents" {
			tx.AddError(errors.New("storage offline"))
		}
	}))
	defer f.db.Callback().Update().Remove("refuse_document_update")

	err = f.reversions.RevertToVersion(ctx, doc.ID, firstVersion, admin.ID, "rollback")
	require.Error(t, err)

	loaded, err := f.flows.GetFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowPending, loaded.Status)

	current, err := f.documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.CurrentVersionID)
}

func TestRevertToVersionAfterSignaturesRevert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	a := f.createUser(t, "signer-a", models.RoleAgent)
	b := f.createUser(t, "signer-b", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)
	firstVersion := doc.CurrentVersionID

	completeFlow(t, f, doc.ID, admin.ID, a.ID, b.ID)
	require.NoError(t, f.reversions.RevertSignaturesOnly(ctx, doc.ID, admin.ID, "firmas inválidas", false))

	status, err := f.flows.DocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReverted, status)

	_, err = f.documents.AddVersion(ctx, doc.ID, admin.ID, []byte("%PDF-1.4 v2"))
	require.NoError(t, err)

	// The restored version still carries the reverted rows, but the last
	// reversion action is the restore itself: the document reads UNSIGNED.
	require.NoError(t, f.reversions.RevertToVersion(ctx, doc.ID, firstVersion, admin.ID, "restaurar original"))

	status, err = f.flows.DocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnsigned, status)
}

func TestEligibleRevertTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin", models.RoleAdmin)
	a := f.createUser(t, "signer-a", models.RoleAgent)
	b := f.createUser(t, "signer-b", models.RoleAgent)
	doc := f.createDocument(t, admin.ID)
	firstVersion := doc.CurrentVersionID

	_, err := f.documents.AddVersion(ctx, doc.ID, admin.ID, []byte("%PDF-1.4 v2"))
	require.NoError(t, err)
	completeFlow(t, f, doc.ID, admin.ID, a.ID, b.ID)

	targets, err := f.reversions.EligibleRevertTargets(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, firstVersion, targets[0].ID)
	assert.Zero(t, targets[0].ActiveSignatureCount)
}
