package models

import (
	"time"

	"gorm.io/gorm"
)

type FlowStatus string

const (
	FlowPending    FlowStatus = "PENDING"
	FlowInProgress FlowStatus = "IN_PROGRESS"
	FlowCompleted  FlowStatus = "COMPLETED"
	FlowCancelled  FlowStatus = "CANCELLED"
)

func (s FlowStatus) Active() bool {
	return s == FlowPending || s == FlowInProgress
}

type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepSigned   StepStatus = "SIGNED"
	StepRejected StepStatus = "REJECTED"
)

// SignatureFlow is one ordered multi-signer workflow over a single document.
// CurrentStep always indexes into Steps while the flow is active; once the
// flow is COMPLETED or CANCELLED no field may change again.
type SignatureFlow struct {
	gorm.Model
	ID           string     `gorm:"primaryKey"`
	Name         string     `gorm:"not null"`
	DocumentID   string     `gorm:"index;not null"`
	Status       FlowStatus `gorm:"not null;default:'PENDING'"`
	CurrentStep  int        `gorm:"not null;default:0"`
	CreatorID    uint       `gorm:"index;not null"`
	CancelReason string
	CancelledAt  *time.Time
	CompletedAt  *time.Time
	Steps        []SignerStep `gorm:"foreignKey:FlowID"`
}

// CurrentSigner returns the signer whose turn it is, valid only while the
// flow is active.
func (f *SignatureFlow) CurrentSigner() (uint, bool) {
	if !f.Status.Active() || f.CurrentStep < 0 || f.CurrentStep >= len(f.Steps) {
		return 0, false
	}
	return f.Steps[f.CurrentStep].SignerID, true
}

// SignerStep is one signer's position within a flow. Order is 0-based,
// unique and contiguous within the flow; it flips PENDING -> SIGNED exactly
// once, or to REJECTED in bulk when the flow is cancelled.
type SignerStep struct {
	gorm.Model
	FlowID   string     `gorm:"index;not null"`
	SignerID uint       `gorm:"index;not null"`
	Order    int        `gorm:"column:step_order;not null"`
	Status   StepStatus `gorm:"not null;default:'PENDING'"`
	SignedAt *time.Time
}
