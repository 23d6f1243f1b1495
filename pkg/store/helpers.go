package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ============================================================================
// Generic GORM Helpers
// ============================================================================
//
// These helpers reduce repetitive CRUD boilerplate across store implementation
// files. They are unexported (package-internal) and operate on the raw *gorm.DB
// to avoid coupling to a specific store type. Each helper handles standard
// concerns like context propagation, not-found error conversion, and unique
// constraint detection.

// getByField retrieves a single record of type T by matching field=value.
// It converts gorm.ErrRecordNotFound to the provided notFoundErr for
// consistent domain error mapping.
//
// Example:
//
//	pair, err := getByField[models.UserKeyPair](db, ctx, "author_did", did, models.ErrKeyPairNotFound)
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// createWithID generates a UUID for the entity if it has no ID, then creates
// it in the database. The idSetter callback sets the generated ID on the
// entity. Unique constraint violations are converted to dupErr for consistent
// error handling.
//
// Example:
//
//	id, err := createWithID(db, ctx, edge, func(e *models.TrustedUser, id string) { e.ID = id }, edge.ID, models.ErrDuplicateTrust)
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, idSetter func(*T, string), currentID string, dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = uuid.New().String()
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}
