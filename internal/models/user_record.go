package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserRecord persists one user record. The full serialized record lives in
// Content so unknown fields survive storage unchanged; the remaining
// columns mirror the handful of fields the API filters on.
type UserRecord struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`       // Primary key, exposed as the record id.
	Name string `gorm:"type:text;not null;uniqueIndex"` // Unique login/display identifier.

	Content datatypes.JSON `gorm:"type:jsonb;not null"` // Serialized record, open schema included.

	EMailAddress string `gorm:"type:text"`       // Extracted for search.
	APIToken     string `gorm:"type:text;index"` // Extracted for token lookup.

	ReadOnly bool `gorm:"not null;default:false"` // Mutation attempts are rejected.
	External bool `gorm:"not null;default:false"` // Externally federated account.
	Enabled  bool `gorm:"not null;default:true"`  // Account may sign in.

	RegistrationDate *time.Time `gorm:"type:timestamptz"` // Fixed at creation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
