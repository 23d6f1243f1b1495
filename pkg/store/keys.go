package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
	"github.com/spkeasy-social/spkeasy/pkg/recrypt"
)

// DefaultRotateMinAge is the minimum age a keypair must reach before it can
// be rotated again. Throttles rotation storms that would flood the session
// services with re-encryption work.
const DefaultRotateMinAge = 5 * time.Minute

// KeyStore manages user ML-KEM-768 keypairs.
//
// Exactly one current (non-tombstoned) pair exists per author, enforced by a
// partial unique index and re-checked under transaction on rotation.
// Tombstoned pairs are kept because session keys written before a rotation
// still reference them for recryption.
type KeyStore struct {
	db              *gorm.DB
	queue           *queue.Queue
	sessionServices []string
	rotateMinAge    time.Duration
}

// NewKeyStore creates a keystore on db. Rotations enqueue one
// update-session-keys job per name in sessionServices, inside the rotation
// transaction.
func NewKeyStore(db *gorm.DB, q *queue.Queue, sessionServices []string, rotateMinAge time.Duration) *KeyStore {
	if rotateMinAge <= 0 {
		rotateMinAge = DefaultRotateMinAge
	}
	return &KeyStore{
		db:              db,
		queue:           q,
		sessionServices: sessionServices,
		rotateMinAge:    rotateMinAge,
	}
}

// GetOrCreatePublicKey returns the author's current keypair, generating one
// if none exists. Concurrent callers observe the same pair: the partial
// unique index rejects the second insert and the loser re-fetches the
// winner's row.
func (s *KeyStore) GetOrCreatePublicKey(ctx context.Context, did string) (*models.UserKeyPair, error) {
	if err := models.ValidateDID(did); err != nil {
		return nil, err
	}

	pair, err := getByField[models.UserKeyPair](s.db, ctx, "author_did", did, models.ErrKeyPairNotFound)
	if err == nil {
		return pair, nil
	}
	if err != models.ErrKeyPairNotFound {
		return nil, err
	}

	publicKey, privateKey, err := recrypt.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair for %s: %w", did, err)
	}

	fresh := &models.UserKeyPair{
		ID:         uuid.New().String(),
		AuthorDID:  did,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}
	if err := s.db.WithContext(ctx).Create(fresh).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Another caller won the race; their pair is now current.
			return getByField[models.UserKeyPair](s.db, ctx, "author_did", did, models.ErrKeyPairNotFound)
		}
		return nil, err
	}

	logger.Info("Generated keypair", logger.DID(did), logger.KeyPairID(fresh.ID))
	return fresh, nil
}

// GetPublicKeys returns the current keypair for each DID, generating pairs
// for DIDs that have none. Tombstoned pairs are never returned. The result
// preserves the input order with duplicates removed.
func (s *KeyStore) GetPublicKeys(ctx context.Context, dids []string) ([]*models.UserKeyPair, error) {
	unique := make([]string, 0, len(dids))
	seen := make(map[string]bool, len(dids))
	for _, did := range dids {
		if err := models.ValidateDID(did); err != nil {
			return nil, err
		}
		if !seen[did] {
			seen[did] = true
			unique = append(unique, did)
		}
	}
	if len(unique) == 0 {
		return []*models.UserKeyPair{}, nil
	}

	var existing []*models.UserKeyPair
	err := s.db.WithContext(ctx).Where("author_did IN ?", unique).Find(&existing).Error
	if err != nil {
		return nil, err
	}

	byDID := make(map[string]*models.UserKeyPair, len(existing))
	for _, pair := range existing {
		byDID[pair.AuthorDID] = pair
	}

	result := make([]*models.UserKeyPair, 0, len(unique))
	for _, did := range unique {
		pair, ok := byDID[did]
		if !ok {
			pair, err = s.GetOrCreatePublicKey(ctx, did)
			if err != nil {
				return nil, err
			}
		}
		result = append(result, pair)
	}
	return result, nil
}

// GetPrivateKeys returns the keypairs with the given ids, current or
// tombstoned, provided every one belongs to did. Tombstoned pairs are
// included because recryption needs the private key of whatever pair an
// existing session key was produced against.
//
// The WHERE clause already scopes to the owner; the cardinality check after
// the query is defence in depth. Tripping it means the scoping was bypassed,
// which is an internal fault, never a client error.
func (s *KeyStore) GetPrivateKeys(ctx context.Context, did string, keyPairIDs []string) ([]*models.UserKeyPair, error) {
	if err := models.ValidateDID(did); err != nil {
		return nil, err
	}
	if len(keyPairIDs) == 0 {
		return []*models.UserKeyPair{}, nil
	}

	var pairs []*models.UserKeyPair
	err := s.db.WithContext(ctx).Unscoped().
		Where("id IN ? AND author_did = ?", keyPairIDs, did).
		Find(&pairs).Error
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		if pair.AuthorDID != did {
			logger.Error("Private key ownership violation",
				logger.DID(did), logger.KeyPairID(pair.ID))
			return nil, models.ErrKeyOwnership
		}
	}
	return pairs, nil
}

// Rotate tombstones the author's current keypair and installs the supplied
// one, enqueueing an update-session-keys job per session service in the same
// transaction. The job payload carries the previous private key so workers
// can recrypt existing session keys; the queue field-encrypts it at rest.
//
// Rotating a pair younger than the minimum age fails with
// models.ErrRotationTooSoon. If the author has no current pair the new one
// is installed without enqueueing anything.
func (s *KeyStore) Rotate(ctx context.Context, did string, newPublicKey, newPrivateKey []byte) (*models.UserKeyPair, error) {
	if err := models.ValidateDID(did); err != nil {
		return nil, err
	}
	if len(newPublicKey) != recrypt.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			recrypt.ErrInvalidKey, recrypt.PublicKeySize, len(newPublicKey))
	}
	if len(newPrivateKey) != recrypt.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			recrypt.ErrInvalidKey, recrypt.PrivateKeySize, len(newPrivateKey))
	}

	var rotated *models.UserKeyPair
	run := func(tx *gorm.DB) error {
		var err error
		rotated, err = s.rotateTx(tx, did, newPublicKey, newPrivateKey)
		return err
	}
	attempt := func() error {
		// SQLite's single-writer transactions already exceed repeatable
		// read; asking its driver for one is an error.
		if IsPostgres(s.db) {
			return s.db.WithContext(ctx).Transaction(run, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
		}
		return s.db.WithContext(ctx).Transaction(run)
	}

	err := attempt()
	if isUniqueConstraintError(err) {
		// Lost the "exactly one current" race to a concurrent writer.
		// Retry once against the new current row; a young winner then
		// surfaces as ErrRotationTooSoon.
		err = attempt()
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Rotated keypair", logger.DID(did), logger.KeyPairID(rotated.ID))
	return rotated, nil
}

func (s *KeyStore) rotateTx(tx *gorm.DB, did string, newPublicKey, newPrivateKey []byte) (*models.UserKeyPair, error) {
	query := tx.Where("author_did = ?", did)
	if IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var current models.UserKeyPair
	hasCurrent := true
	if err := query.First(&current).Error; err != nil {
		if err := convertNotFoundError(err, models.ErrKeyPairNotFound); err != models.ErrKeyPairNotFound {
			return nil, err
		}
		hasCurrent = false
	}

	if hasCurrent {
		if current.Age(time.Now()) < s.rotateMinAge {
			return nil, models.ErrRotationTooSoon
		}
		if err := tx.Delete(&current).Error; err != nil {
			return nil, fmt.Errorf("failed to tombstone keypair %s: %w", current.ID, err)
		}
	}

	fresh := &models.UserKeyPair{
		ID:         uuid.New().String(),
		AuthorDID:  did,
		PublicKey:  newPublicKey,
		PrivateKey: newPrivateKey,
	}
	if err := tx.Create(fresh).Error; err != nil {
		return nil, err
	}

	if hasCurrent && s.queue != nil {
		payload := models.UpdateSessionKeysJob{
			PrevKeyID:      current.ID,
			NewKeyID:       fresh.ID,
			PrevPrivateKey: current.PrivateKey,
			NewPublicKey:   newPublicKey,
		}
		for _, svc := range s.sessionServices {
			name := models.JobName(svc, models.JobUpdateSessionKeys)
			if _, err := s.queue.PublishTx(tx, name, payload); err != nil {
				return nil, err
			}
		}
	}

	return fresh, nil
}
