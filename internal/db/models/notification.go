package models

import (
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotifyTurnToSign         NotificationKind = "TURN_TO_SIGN"
	NotifyFlowCompleted      NotificationKind = "FLOW_COMPLETED"
	NotifyFlowCancelled      NotificationKind = "FLOW_CANCELLED"
	NotifySignaturesReverted NotificationKind = "SIGNATURES_REVERTED"
)

// Notification is an outbox row; delivery to signers happens out of band.
type Notification struct {
	gorm.Model
	RecipientID uint             `gorm:"index;not null"`
	Kind        NotificationKind `gorm:"not null"`
	DocumentID  string           `gorm:"index"`
	FlowID      string
	Message     string
	Read        bool `gorm:"not null;default:false"`
}
