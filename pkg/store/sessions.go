package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/pkg/models"
)

// Session defaults.
const (
	// DefaultSessionTTL is how long a session accepts new content before
	// it expires implicitly.
	DefaultSessionTTL = 168 * time.Hour

	// DefaultRotationBatch is how many session keys a rotation pass swaps
	// per query.
	DefaultRotationBatch = 100
)

// SessionRecipient is one recipient grant supplied at session creation: the
// DEK encrypted to the recipient's public key and the keypair it was
// encrypted against.
type SessionRecipient struct {
	RecipientDID  string
	EncryptedDEK  []byte
	UserKeyPairID string
}

// SessionStore manages encryption sessions and their per-recipient keys.
// Both session services (private posts, private profiles) run one instance
// each over their own database.
type SessionStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSessionStore creates a session store on db. Sessions expire ttl after
// creation.
func NewSessionStore(db *gorm.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl}
}

// CreateSession atomically inserts a new session and one key per recipient.
// The author's own grant must be among the recipients: without it the author
// could not read their own content and rotation would have no envelope to
// recrypt from. Its absence fails with models.ErrAuthorKeyMissing.
func (s *SessionStore) CreateSession(ctx context.Context, author string, recipients []SessionRecipient) (*models.Session, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	authorPresent := false
	seen := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if err := models.ValidateDID(r.RecipientDID); err != nil {
			return nil, err
		}
		if len(r.EncryptedDEK) == 0 {
			return nil, fmt.Errorf("encrypted dek is required for %s", r.RecipientDID)
		}
		if r.UserKeyPairID == "" {
			return nil, fmt.Errorf("user key pair id is required for %s", r.RecipientDID)
		}
		if seen[r.RecipientDID] {
			return nil, fmt.Errorf("duplicate recipient %s", r.RecipientDID)
		}
		seen[r.RecipientDID] = true
		if r.RecipientDID == author {
			authorPresent = true
		}
	}
	if !authorPresent {
		return nil, models.ErrAuthorKeyMissing
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.New().String(),
		AuthorDID: author,
		ExpiresAt: now.Add(s.ttl),
	}
	keys := make([]*models.SessionKey, 0, len(recipients))
	for _, r := range recipients {
		keys = append(keys, &models.SessionKey{
			SessionID:     session.ID,
			RecipientDID:  r.RecipientDID,
			EncryptedDEK:  r.EncryptedDEK,
			UserKeyPairID: r.UserKeyPairID,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		return tx.Create(keys).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Created session", logger.SessionID(session.ID),
		logger.Author(author), logger.Recipients(len(recipients)))
	return session, nil
}

// GetSession fetches a session by id.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return getByField[models.Session](s.db, ctx, "id", id, models.ErrSessionNotFound)
}

// GetSessionForRecipient returns the author's newest active session that
// carries a key for recipient, along with that key. Revoked and expired
// sessions never qualify; models.ErrSessionNotFound when nothing grants
// access.
func (s *SessionStore) GetSessionForRecipient(ctx context.Context, author, recipient string) (*models.Session, *models.SessionKey, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, nil, err
	}
	if err := models.ValidateDID(recipient); err != nil {
		return nil, nil, err
	}

	var key models.SessionKey
	err := s.db.WithContext(ctx).Model(&models.SessionKey{}).
		Joins("JOIN sessions ON sessions.id = session_keys.session_id").
		Where("sessions.author_did = ? AND sessions.revoked_at IS NULL AND sessions.expires_at > ?", author, time.Now().UTC()).
		Where("session_keys.recipient_did = ?", recipient).
		Order("sessions.created_at DESC").
		First(&key).Error
	if err != nil {
		return nil, nil, convertNotFoundError(err, models.ErrSessionNotFound)
	}

	session, err := s.GetSession(ctx, key.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, &key, nil
}

// RevokeAllActive marks every active session of the author revoked.
// Idempotent: already revoked or expired sessions are untouched, and zero
// affected rows is success.
func (s *SessionStore) RevokeAllActive(ctx context.Context, author string) (int64, error) {
	if err := models.ValidateDID(author); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("author_did = ? AND revoked_at IS NULL AND expires_at > ?", author, now).
		Update("revoked_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.Info("Revoked sessions", logger.Author(author), logger.Count(int(result.RowsAffected)))
	}
	return result.RowsAffected, nil
}

// AddSessionKey inserts one recipient grant, ignoring the insert if the
// (session, recipient) row already exists. Propagation workers race on this:
// whoever wins, the row is there.
func (s *SessionStore) AddSessionKey(ctx context.Context, key *models.SessionKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(key).Error
}

// AddSessionKeys batch-inserts recipient grants, ignoring rows that already
// exist.
func (s *SessionStore) AddSessionKeys(ctx context.Context, keys []*models.SessionKey) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(keys).Error
}

// DeleteKeys removes the recipient's grants across all of the author's
// sessions and returns how many rows went away.
func (s *SessionStore) DeleteKeys(ctx context.Context, recipient, author string) (int64, error) {
	if err := models.ValidateDID(recipient); err != nil {
		return 0, err
	}
	if err := models.ValidateDID(author); err != nil {
		return 0, err
	}

	sessions := s.db.Model(&models.Session{}).Select("id").Where("author_did = ?", author)
	result := s.db.WithContext(ctx).
		Where("recipient_did = ? AND session_id IN (?)", recipient, sessions).
		Delete(&models.SessionKey{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.Info("Deleted session keys", logger.Author(author),
			logger.Recipient(recipient), logger.Count(int(result.RowsAffected)))
	}
	return result.RowsAffected, nil
}

// ListByKeyPair returns up to limit session keys still encrypted against the
// given keypair. Rotation drains this query until it comes back empty; the
// stable order keeps concurrent drains from thrashing.
func (s *SessionStore) ListByKeyPair(ctx context.Context, keyPairID string, limit int) ([]*models.SessionKey, error) {
	if limit <= 0 {
		limit = DefaultRotationBatch
	}
	var keys []*models.SessionKey
	err := s.db.WithContext(ctx).
		Where("user_key_pair_id = ?", keyPairID).
		Order("session_id, recipient_did").
		Limit(limit).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// UpdateKeyEnvelope swaps one session key's envelope and keypair reference
// in a single conditional statement. The prevKeyPairID guard serialises
// concurrent rotations per row: losing the race affects zero rows, which is
// benign because the winner already moved the row off the old pair.
func (s *SessionStore) UpdateKeyEnvelope(ctx context.Context, sessionID, recipient, prevKeyPairID string, encryptedDEK []byte, newKeyPairID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.SessionKey{}).
		Where("session_id = ? AND recipient_did = ? AND user_key_pair_id = ?",
			sessionID, recipient, prevKeyPairID).
		Updates(map[string]any{
			"encrypted_dek":    encryptedDEK,
			"user_key_pair_id": newKeyPairID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListRecentWithAuthorKey returns the author's sessions created inside the
// window that still carry an author-addressed key. These are the sessions a
// newly trusted recipient can be granted access to; anything without an
// author key has no envelope to recrypt from. Revoked sessions qualify, the
// content encrypted under them remains readable.
func (s *SessionStore) ListRecentWithAuthorKey(ctx context.Context, author string, window time.Duration) ([]*models.Session, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-window)
	authorKeys := s.db.Model(&models.SessionKey{}).Select("session_id").Where("recipient_did = ?", author)

	var sessions []*models.Session
	err := s.db.WithContext(ctx).
		Where("author_did = ? AND created_at > ? AND id IN (?)", author, since, authorKeys).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListSessionKeys returns the recipient's keys for the given sessions.
func (s *SessionStore) ListSessionKeys(ctx context.Context, sessionIDs []string, recipient string) ([]*models.SessionKey, error) {
	if len(sessionIDs) == 0 {
		return []*models.SessionKey{}, nil
	}
	var keys []*models.SessionKey
	err := s.db.WithContext(ctx).
		Where("session_id IN ? AND recipient_did = ?", sessionIDs, recipient).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
