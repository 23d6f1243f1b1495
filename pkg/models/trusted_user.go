package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TrustedUser is a directed trust edge from an author to a recipient.
//
// At most one non-tombstoned edge exists per (author, recipient), enforced
// by a partial unique index. Removing trust tombstones the edge; re-trusting
// inserts a new row with a fresh created_at. The 24-hour creation quota
// counts every row created in the window, tombstoned or not.
type TrustedUser struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	AuthorDID    string         `gorm:"column:author_did;not null;size:255;index:idx_trusted_users_author;uniqueIndex:idx_trusted_users_active,where:deleted_at IS NULL" json:"author_did"`
	RecipientDID string         `gorm:"column:recipient_did;not null;size:255;uniqueIndex:idx_trusted_users_active,where:deleted_at IS NULL" json:"recipient_did"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index:idx_trusted_users_window" json:"created_at"`
	DeletedAt    gorm.DeletedAt `json:"-"`
}

// TableName returns the table name for TrustedUser.
func (TrustedUser) TableName() string {
	return "trusted_users"
}

// Validate checks if the trust edge has valid configuration.
func (t *TrustedUser) Validate() error {
	if err := ValidateDID(t.AuthorDID); err != nil {
		return fmt.Errorf("author: %w", err)
	}
	if err := ValidateDID(t.RecipientDID); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	return nil
}
