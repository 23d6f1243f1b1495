package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserKeyPair is a user's ML-KEM-768 keypair.
//
// Exactly one non-tombstoned pair exists per author DID, enforced by a
// partial unique index. Rotation tombstones the current pair and inserts a
// fresh one; tombstoned pairs are retained because session keys written
// before the rotation still reference them for recryption.
type UserKeyPair struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	AuthorDID  string         `gorm:"column:author_did;not null;size:255;uniqueIndex:idx_user_key_pairs_current,where:deleted_at IS NULL" json:"author_did"`
	PublicKey  []byte         `gorm:"column:public_key;not null" json:"public_key"`
	PrivateKey []byte         `gorm:"column:private_key;not null" json:"-"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for UserKeyPair.
func (UserKeyPair) TableName() string {
	return "user_key_pairs"
}

// Validate checks if the keypair has valid configuration.
func (k *UserKeyPair) Validate() error {
	if err := ValidateDID(k.AuthorDID); err != nil {
		return err
	}
	if len(k.PublicKey) == 0 {
		return fmt.Errorf("public key is required")
	}
	if len(k.PrivateKey) == 0 {
		return fmt.Errorf("private key is required")
	}
	return nil
}

// Age returns how long ago the pair was created.
func (k *UserKeyPair) Age(now time.Time) time.Duration {
	return now.Sub(k.CreatedAt)
}

// ValidateDID checks that a string is a plausible DID.
// DIDs are treated as opaque beyond the scheme prefix.
func ValidateDID(did string) error {
	if did == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDID)
	}
	if !strings.HasPrefix(did, "did:") {
		return fmt.Errorf("%w: %q", ErrInvalidDID, did)
	}
	return nil
}
