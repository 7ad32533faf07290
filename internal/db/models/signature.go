package models

import (
	"time"

	"gorm.io/gorm"
)

type SignatureStatus string

const (
	SignaturePending       SignatureStatus = "PENDING"
	SignatureValid         SignatureStatus = "VALID"
	SignatureInvalid       SignatureStatus = "INVALID"
	SignatureIndeterminate SignatureStatus = "INDETERMINATE"
)

// Signature is one ledger entry recording a single signing attempt. Rows are
// append-only: after creation the only permitted mutation is setting the
// reverted-* fields, exactly once.
type Signature struct {
	gorm.Model
	ID           string `gorm:"primaryKey"`
	DocumentID   string `gorm:"index;not null"`
	VersionID    string `gorm:"index;not null"`
	FlowID       string `gorm:"index"`
	SignerID     uint   `gorm:"index;not null"`
	Payload      []byte `gorm:"type:bytea;not null"`
	Certificate  string
	Status       SignatureStatus `gorm:"not null;default:'PENDING'"`
	Timestamp    time.Time       `gorm:"autoCreateTime"`
	Reverted     bool            `gorm:"not null;default:false"`
	RevertedAt   *time.Time
	RevertedBy   *uint
	RevertReason string
}
