package models

import (
	"time"

	"gorm.io/gorm"
)

type AuditEventType string

const (
	AuditFlowCreated        AuditEventType = "FLOW_CREATED"
	AuditFlowStepSigned     AuditEventType = "FLOW_STEP_SIGNED"
	AuditFlowCompleted      AuditEventType = "FLOW_COMPLETED"
	AuditFlowCancelled      AuditEventType = "FLOW_CANCELLED"
	AuditSignaturesReverted AuditEventType = "SIGNATURES_REVERTED"
	AuditRevertedToVersion  AuditEventType = "DOCUMENT_REVERTED_TO_VERSION"
)

type AuditEvent struct {
	gorm.Model
	EventType  AuditEventType `gorm:"index;not null"`
	ActorID    uint           `gorm:"index;not null"`
	DocumentID string         `gorm:"index"`
	FlowID     string         `gorm:"index"`
	Reason     string
	Detail     string
	Timestamp  time.Time `gorm:"autoCreateTime"`
}
