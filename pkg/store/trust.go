package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
)

// Trust graph defaults.
const (
	// DefaultTrustQuota caps trust edges created per author per window.
	DefaultTrustQuota = 10

	// DefaultTrustWindow is the sliding window the quota counts over.
	DefaultTrustWindow = 24 * time.Hour

	// DefaultBulkDelay postpones propagation of bulk mutations so a user
	// who immediately undoes one sees no effect: the delayed jobs re-check
	// the edge and abort.
	DefaultBulkDelay = 2 * time.Minute
)

// TrustQuota bundles the rate limit on trust edge creation. The count
// includes tombstoned edges, so removing and re-adding burns quota.
type TrustQuota struct {
	Limit  int
	Window time.Duration
}

// TrustStore manages the directed trust graph.
//
// Every mutation enqueues its propagation jobs inside the same transaction,
// so an edge and the work it implies commit or roll back together.
type TrustStore struct {
	db              *gorm.DB
	queue           *queue.Queue
	sessionServices []string
	quota           TrustQuota
	bulkDelay       time.Duration
}

// NewTrustStore creates a trust store on db. Mutations address their jobs to
// each name in sessionServices.
func NewTrustStore(db *gorm.DB, q *queue.Queue, sessionServices []string, quota TrustQuota, bulkDelay time.Duration) *TrustStore {
	if quota.Limit <= 0 {
		quota.Limit = DefaultTrustQuota
	}
	if quota.Window <= 0 {
		quota.Window = DefaultTrustWindow
	}
	if bulkDelay <= 0 {
		bulkDelay = DefaultBulkDelay
	}
	return &TrustStore{
		db:              db,
		queue:           q,
		sessionServices: sessionServices,
		quota:           quota,
		bulkDelay:       bulkDelay,
	}
}

// ListTrusted returns the author's active trust edges, newest first.
func (s *TrustStore) ListTrusted(ctx context.Context, author string) ([]*models.TrustedUser, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}
	var edges []*models.TrustedUser
	err := s.db.WithContext(ctx).
		Where("author_did = ?", author).
		Order("created_at DESC").
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// GetTrusted returns the active edge from author to recipient, or
// models.ErrTrustNotFound.
func (s *TrustStore) GetTrusted(ctx context.Context, author, recipient string) (*models.TrustedUser, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}
	if err := models.ValidateDID(recipient); err != nil {
		return nil, err
	}
	var edge models.TrustedUser
	err := s.db.WithContext(ctx).
		Where("author_did = ? AND recipient_did = ?", author, recipient).
		First(&edge).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrTrustNotFound)
	}
	return &edge, nil
}

// AddTrusted creates a trust edge and enqueues add-recipient-to-sessions for
// each session service in the same transaction. A duplicate active edge
// fails with models.ErrDuplicateTrust; exceeding the creation quota rolls
// everything back with models.ErrTrustQuota.
func (s *TrustStore) AddTrusted(ctx context.Context, author, recipient string) (*models.TrustedUser, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}
	if err := models.ValidateDID(recipient); err != nil {
		return nil, err
	}

	edge := &models.TrustedUser{
		ID:           uuid.New().String(),
		AuthorDID:    author,
		RecipientDID: recipient,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(edge).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateTrust
			}
			return err
		}

		// Insert first, then re-check: the count includes the new edge.
		count, err := s.countWindow(tx, author)
		if err != nil {
			return err
		}
		if count > int64(s.quota.Limit) {
			return models.ErrTrustQuota
		}

		payload := models.AddRecipientJob{AuthorDID: author, RecipientDID: recipient}
		for _, svc := range s.sessionServices {
			name := models.JobName(svc, models.JobAddRecipient)
			if _, err := s.queue.PublishTx(tx, name, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Added trusted user", logger.Author(author), logger.Recipient(recipient))
	return edge, nil
}

// BulkAddTrusted creates edges for every recipient not already trusted and
// returns the newly trusted DIDs. The whole batch is atomic: if the quota
// cannot absorb all novel recipients nothing is inserted. Propagation jobs
// are delayed by the bulk delay so an immediate undo aborts them.
func (s *TrustStore) BulkAddTrusted(ctx context.Context, author string, recipients []string) ([]string, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}
	unique := make([]string, 0, len(recipients))
	seen := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if err := models.ValidateDID(r); err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			unique = append(unique, r)
		}
	}
	if len(unique) == 0 {
		return []string{}, nil
	}

	var novel []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the existing subset so concurrent bulk adds for the same
		// author serialise on the quota check.
		query := tx.Where("author_did = ? AND recipient_did IN ?", author, unique)
		if IsPostgres(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing []*models.TrustedUser
		if err := query.Find(&existing).Error; err != nil {
			return err
		}
		trusted := make(map[string]bool, len(existing))
		for _, e := range existing {
			trusted[e.RecipientDID] = true
		}

		novel = novel[:0]
		for _, r := range unique {
			if !trusted[r] {
				novel = append(novel, r)
			}
		}
		if len(novel) == 0 {
			return nil
		}

		inWindow, err := s.countWindow(tx, author)
		if err != nil {
			return err
		}
		if inWindow+int64(len(novel)) > int64(s.quota.Limit) {
			return models.ErrTrustQuota
		}

		edges := make([]*models.TrustedUser, 0, len(novel))
		for _, r := range novel {
			edges = append(edges, &models.TrustedUser{
				ID:           uuid.New().String(),
				AuthorDID:    author,
				RecipientDID: r,
			})
		}
		if err := tx.Create(edges).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateTrust
			}
			return err
		}

		delay := queue.StartAfter(time.Now().UTC().Add(s.bulkDelay))
		for _, r := range novel {
			payload := models.AddRecipientJob{AuthorDID: author, RecipientDID: r}
			for _, svc := range s.sessionServices {
				name := models.JobName(svc, models.JobAddRecipient)
				if _, err := s.queue.PublishTx(tx, name, payload, delay); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Bulk added trusted users", logger.Author(author), logger.Count(len(novel)))
	return novel, nil
}

// RemoveTrusted tombstones the edge and enqueues revoke-session plus
// delete-session-keys for each session service, delayed by the bulk delay.
// The delete handler re-checks the edge before destroying anything, so
// re-adding within the delay cancels the deletion.
func (s *TrustStore) RemoveTrusted(ctx context.Context, author, recipient string) error {
	if err := models.ValidateDID(author); err != nil {
		return err
	}
	if err := models.ValidateDID(recipient); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("author_did = ? AND recipient_did = ?", author, recipient).
			Delete(&models.TrustedUser{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrTrustNotFound
		}
		return s.enqueueRemoval(tx, author, []string{recipient})
	})
	if err != nil {
		return err
	}

	logger.Info("Removed trusted user", logger.Author(author), logger.Recipient(recipient))
	return nil
}

// BulkRemoveTrusted tombstones every existing edge to the given recipients
// and returns the DIDs actually removed. Removing zero edges fails with
// models.ErrTrustNotFound.
func (s *TrustStore) BulkRemoveTrusted(ctx context.Context, author string, recipients []string) ([]string, error) {
	if err := models.ValidateDID(author); err != nil {
		return nil, err
	}
	for _, r := range recipients {
		if err := models.ValidateDID(r); err != nil {
			return nil, err
		}
	}
	if len(recipients) == 0 {
		return nil, models.ErrTrustNotFound
	}

	var removed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("author_did = ? AND recipient_did IN ?", author, recipients)
		if IsPostgres(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing []*models.TrustedUser
		if err := query.Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) == 0 {
			return models.ErrTrustNotFound
		}

		ids := make([]string, 0, len(existing))
		removed = removed[:0]
		for _, e := range existing {
			ids = append(ids, e.ID)
			removed = append(removed, e.RecipientDID)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.TrustedUser{}).Error; err != nil {
			return err
		}
		return s.enqueueRemoval(tx, author, removed)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Bulk removed trusted users", logger.Author(author), logger.Count(len(removed)))
	return removed, nil
}

// enqueueRemoval schedules the delayed aftermath of dropping trust: one
// revoke-session per service forcing future content into a fresh session,
// and one delete-session-keys per removed recipient per service. The revoke
// payload carries no recipient; key deletion stays behind delete-session-keys
// and its trust re-check.
func (s *TrustStore) enqueueRemoval(tx *gorm.DB, author string, recipients []string) error {
	delay := queue.StartAfter(time.Now().UTC().Add(s.bulkDelay))

	revoke := models.RevokeSessionJob{AuthorDID: author}
	for _, svc := range s.sessionServices {
		name := models.JobName(svc, models.JobRevokeSession)
		if _, err := s.queue.PublishTx(tx, name, revoke, delay); err != nil {
			return err
		}
	}

	for _, r := range recipients {
		payload := models.DeleteSessionKeysJob{AuthorDID: author, RecipientDID: r}
		for _, svc := range s.sessionServices {
			name := models.JobName(svc, models.JobDeleteSessionKeys)
			if _, err := s.queue.PublishTx(tx, name, payload, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// countWindow counts edges created by author inside the quota window,
// tombstoned or not.
func (s *TrustStore) countWindow(tx *gorm.DB, author string) (int64, error) {
	var count int64
	since := time.Now().UTC().Add(-s.quota.Window)
	err := tx.Unscoped().Model(&models.TrustedUser{}).
		Where("author_did = ? AND created_at > ?", author, since).
		Count(&count).Error
	return count, err
}
