package repositories

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"tokoshop/internal/models"
)

// CheckoutAttemptRepository records the lifecycle of each checkout reference.
type CheckoutAttemptRepository interface {
	Create(tx *gorm.DB, attempt *models.CheckoutAttempt) error
	Get(tx *gorm.DB, reference string) (*models.CheckoutAttempt, error)
	SetStatus(tx *gorm.DB, reference string, status models.CheckoutStatus, reason string) error
	ExpireStale(tx *gorm.DB, now time.Time) (int64, error)
}

// GORMCheckoutAttemptRepository is a GORM implementation of CheckoutAttemptRepository.
type GORMCheckoutAttemptRepository struct{}

func NewGORMCheckoutAttemptRepository() *GORMCheckoutAttemptRepository {
	return &GORMCheckoutAttemptRepository{}
}

func (r *GORMCheckoutAttemptRepository) Create(tx *gorm.DB, attempt *models.CheckoutAttempt) error {
	if err := tx.Create(attempt).Error; err != nil {
		return dbError("create checkout attempt", err)
	}
	return nil
}

func (r *GORMCheckoutAttemptRepository) Get(tx *gorm.DB, reference string) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	if err := tx.First(&attempt, "reference = ?", reference).Error; err != nil {
		return nil, notFoundOr(fmt.Sprintf("get checkout attempt %s", reference), "checkout", reference, err)
	}
	return &attempt, nil
}

// SetStatus moves an attempt to status. Unknown references are ignored.
func (r *GORMCheckoutAttemptRepository) SetStatus(tx *gorm.DB, reference string, status models.CheckoutStatus, reason string) error {
	res := tx.Model(&models.CheckoutAttempt{}).
		Where("reference = ?", reference).
		Updates(map[string]any{"status": status, "failure_reason": reason})
	if res.Error != nil {
		return dbError(fmt.Sprintf("set checkout %s status", reference), res.Error)
	}
	return nil
}

// ExpireStale marks attempts still waiting for payment past their expiry.
func (r *GORMCheckoutAttemptRepository) ExpireStale(tx *gorm.DB, now time.Time) (int64, error) {
	res := tx.Model(&models.CheckoutAttempt{}).
		Where("status = ? AND expires_at <= ?", models.CheckoutAwaitingPayment, now).
		Update("status", models.CheckoutExpired)
	if res.Error != nil {
		return 0, dbError("expire checkout attempts", res.Error)
	}
	return res.RowsAffected, nil
}
