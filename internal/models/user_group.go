package models

import "time"

// UserGroup is a group entity referenced by user records through the
// comma-separated userGroupIds field.
type UserGroup struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name      string `gorm:"type:text;not null;uniqueIndex"` // Display name.
	Comments  string `gorm:"type:text"`                      // Free-text comments.
	IsDefault bool   `gorm:"not null;default:false"`         // Marks the default group.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
