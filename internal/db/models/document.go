package models

import (
	"time"

	"gorm.io/gorm"
)

// DocumentStatus is the derived, document-level signature status. It is
// recomputed from flow and ledger state on every read and never stored as
// ground truth; the column on Document is a display cache only.
type DocumentStatus string

const (
	StatusUnsigned        DocumentStatus = "UNSIGNED"
	StatusPartiallySigned DocumentStatus = "PARTIALLY_SIGNED"
	StatusSigned          DocumentStatus = "SIGNED"
	StatusInFlow          DocumentStatus = "IN_FLOW"
	StatusReverted        DocumentStatus = "REVERTED"
)

type Document struct {
	gorm.Model
	ID               string            `gorm:"primaryKey"`
	Title            string            `gorm:"not null"`
	OwnerID          uint              `gorm:"index"`
	Classification   string            // "PUBLIC", "INTERNAL", "CONFIDENTIAL", "SECRET"
	CurrentVersionID string            `gorm:"index"`
	Status           DocumentStatus    `gorm:"not null;default:'UNSIGNED'"`
	Versions         []DocumentVersion `gorm:"foreignKey:DocumentID"`
}

type DocumentVersion struct {
	gorm.Model
	ID            string `gorm:"primaryKey"`
	DocumentID    string `gorm:"index;not null"`
	VersionNumber int    `gorm:"not null"`
	Content       []byte `gorm:"type:bytea"`
	ContentHash   string `gorm:"not null"`
	UploadedBy    uint
	Timestamp     time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
