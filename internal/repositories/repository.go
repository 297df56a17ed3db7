// Package repositories holds the GORM stores of the ordering pipeline.
//
// Every method takes the handle it runs on as its first argument: the base
// *gorm.DB (scoped with WithContext) for standalone reads, or the transaction
// handed out by db.Transaction for anything in a write path.
package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/database"
)

var errStaleRow = errors.New("row changed since it was read")

// dbError classifies a driver error so callers can decide whether to retry.
func dbError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case database.IsConflict(err):
		return apperrors.Conflict(fmt.Errorf("%s: %w", op, err))
	default:
		return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
	}
}

func notFoundOr(op, entity, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(entity, id)
	}
	return dbError(op, err)
}
