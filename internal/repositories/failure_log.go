package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tokoshop/internal/models"
)

// FailureLog persists materializations that could not complete, for
// operator follow-up.
type FailureLog interface {
	Record(tx *gorm.DB, failure *models.MaterializationFailure) error
	ListUnresolved(tx *gorm.DB) ([]models.MaterializationFailure, error)
}

type GORMFailureLog struct{}

func NewGORMFailureLog() *GORMFailureLog {
	return &GORMFailureLog{}
}

func (f *GORMFailureLog) Record(tx *gorm.DB, failure *models.MaterializationFailure) error {
	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}
	if err := tx.Create(failure).Error; err != nil {
		return dbError("record materialization failure", err)
	}
	return nil
}

func (f *GORMFailureLog) ListUnresolved(tx *gorm.DB) ([]models.MaterializationFailure, error) {
	var out []models.MaterializationFailure
	if err := tx.Where("resolved = ?", false).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, dbError("list materialization failures", err)
	}
	return out, nil
}
