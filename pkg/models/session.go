package models

import (
	"fmt"
	"time"
)

// Session is one encryption epoch of an author's private content.
//
// A session is active while it is neither revoked nor expired. Revocation is
// terminal; new content goes into a fresh session. Every active session has
// an author-addressed SessionKey so the author can always read their own
// content and the propagation engine always has an envelope to recrypt from.
type Session struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	AuthorDID string     `gorm:"column:author_did;not null;size:255;index:idx_sessions_author" json:"author_did"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index:idx_sessions_window" json:"created_at"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Validate checks if the session has valid configuration.
func (s *Session) Validate() error {
	if err := ValidateDID(s.AuthorDID); err != nil {
		return fmt.Errorf("author: %w", err)
	}
	if s.ExpiresAt.IsZero() {
		return fmt.Errorf("expires_at is required")
	}
	return nil
}

// SessionKey is a per-recipient encrypted copy of a session's DEK.
//
// The composite primary key (session_id, recipient_did) serialises concurrent
// writers per row. EncryptedDEK and UserKeyPairID always change together:
// the ciphertext is only readable with the private key of the pair it names.
type SessionKey struct {
	SessionID     string    `gorm:"column:session_id;primaryKey;size:36" json:"session_id"`
	RecipientDID  string    `gorm:"column:recipient_did;primaryKey;size:255" json:"recipient_did"`
	EncryptedDEK  []byte    `gorm:"column:encrypted_dek;not null" json:"encrypted_dek"`
	UserKeyPairID string    `gorm:"column:user_key_pair_id;not null;size:36;index:idx_session_keys_pair" json:"user_key_pair_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SessionKey.
func (SessionKey) TableName() string {
	return "session_keys"
}

// Validate checks if the session key has valid configuration.
func (k *SessionKey) Validate() error {
	if k.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if err := ValidateDID(k.RecipientDID); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if len(k.EncryptedDEK) == 0 {
		return fmt.Errorf("encrypted_dek is required")
	}
	if k.UserKeyPairID == "" {
		return fmt.Errorf("user_key_pair_id is required")
	}
	return nil
}
