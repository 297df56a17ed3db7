package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/models"
)

// ReservationRepository is the Reservation Store: the only writer of cart
// line state. Updates are guarded by the state the caller read (held
// quantity and flags), so a line changed by a concurrent transaction is
// reported as a conflict instead of being overwritten.
type ReservationRepository interface {
	Create(tx *gorm.DB, line *models.Reservation) error
	GetByID(tx *gorm.DB, id string) (*models.Reservation, error)
	GetByIDs(tx *gorm.DB, ids []string) (map[string]models.Reservation, error)
	ListByUser(tx *gorm.DB, userID string) ([]models.Reservation, error)
	CountByUser(tx *gorm.DB, userID string) (int64, error)
	FindOpenLine(tx *gorm.DB, userID, productID, size, color string) (*models.Reservation, error)
	ListExpired(tx *gorm.DB, now time.Time, limit int) ([]models.Reservation, error)

	SetQuantity(tx *gorm.DB, line *models.Reservation, qty, held int) error
	Promote(tx *gorm.DB, line *models.Reservation, qty, held int, expiry time.Time, reference string) error
	MarkProcessed(tx *gorm.DB, line *models.Reservation) error
	RevertExpired(tx *gorm.DB, line *models.Reservation, now time.Time) (bool, error)
	Delete(tx *gorm.DB, line *models.Reservation) error
	DeleteProcessed(tx *gorm.DB, userID string, ids []string) (int64, error)
}

// GORMReservationRepository is a GORM implementation of ReservationRepository.
type GORMReservationRepository struct{}

// NewGORMReservationRepository creates a new instance of GORMReservationRepository.
func NewGORMReservationRepository() *GORMReservationRepository {
	return &GORMReservationRepository{}
}

func (r *GORMReservationRepository) Create(tx *gorm.DB, line *models.Reservation) error {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	if err := tx.Create(line).Error; err != nil {
		return dbError("create reservation", err)
	}
	return nil
}

func (r *GORMReservationRepository) GetByID(tx *gorm.DB, id string) (*models.Reservation, error) {
	var line models.Reservation
	if err := tx.First(&line, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(fmt.Sprintf("get reservation %s", id), "reservation", id, err)
	}
	return &line, nil
}

func (r *GORMReservationRepository) GetByIDs(tx *gorm.DB, ids []string) (map[string]models.Reservation, error) {
	out := make(map[string]models.Reservation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var lines []models.Reservation
	if err := tx.Where("id IN ?", ids).Find(&lines).Error; err != nil {
		return nil, dbError("get reservations", err)
	}
	for _, l := range lines {
		out[l.ID] = l
	}
	return out, nil
}

// ListByUser returns the user's cart: every line not yet turned into an order.
func (r *GORMReservationRepository) ListByUser(tx *gorm.DB, userID string) ([]models.Reservation, error) {
	var lines []models.Reservation
	err := tx.Where("user_id = ? AND processed = ?", userID, false).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, dbError("list reservations", err)
	}
	return lines, nil
}

func (r *GORMReservationRepository) CountByUser(tx *gorm.DB, userID string) (int64, error) {
	var n int64
	err := tx.Model(&models.Reservation{}).
		Where("user_id = ? AND processed = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, dbError("count reservations", err)
	}
	return n, nil
}

// FindOpenLine returns the user's unreserved line for a product variant, or
// nil when there is none.
func (r *GORMReservationRepository) FindOpenLine(tx *gorm.DB, userID, productID, size, color string) (*models.Reservation, error) {
	var lines []models.Reservation
	err := tx.Where("user_id = ? AND product_id = ? AND selected_size = ? AND selected_color = ? AND reserved = ? AND processed = ?",
		userID, productID, size, color, false, false).
		Limit(1).
		Find(&lines).Error
	if err != nil {
		return nil, dbError("find open reservation", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return &lines[0], nil
}

// ListExpired returns held lines whose expiry is at or before now, oldest first.
func (r *GORMReservationRepository) ListExpired(tx *gorm.DB, now time.Time, limit int) ([]models.Reservation, error) {
	var lines []models.Reservation
	q := tx.Where("reserved = ? AND processed = ? AND reservation_expiry <= ?", true, false, now).
		Order("reservation_expiry ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&lines).Error; err != nil {
		return nil, dbError("list expired reservations", err)
	}
	return lines, nil
}

// SetQuantity changes an unreserved line's quantity and the stock it holds.
func (r *GORMReservationRepository) SetQuantity(tx *gorm.DB, line *models.Reservation, qty, held int) error {
	res := r.guarded(tx, line).
		Where("reserved = ?", false).
		Updates(map[string]any{"quantity": qty, "held_quantity": held})
	if err := checkGuarded("set reservation quantity", line.ID, res); err != nil {
		return err
	}
	line.Quantity, line.HeldQuantity = qty, held
	return nil
}

// Promote marks a line as held for a checkout until expiry.
func (r *GORMReservationRepository) Promote(tx *gorm.DB, line *models.Reservation, qty, held int, expiry time.Time, reference string) error {
	res := r.guarded(tx, line).Updates(map[string]any{
		"quantity":           qty,
		"held_quantity":      held,
		"reserved":           true,
		"reservation_expiry": expiry,
		"checkout_reference": reference,
	})
	if err := checkGuarded("promote reservation", line.ID, res); err != nil {
		return err
	}
	line.Quantity, line.HeldQuantity = qty, held
	line.Reserved, line.ReservationExpiry, line.CheckoutReference = true, &expiry, reference
	return nil
}

// MarkProcessed moves a line to its terminal state. The hold it carried has
// been settled by the caller through the ledger.
func (r *GORMReservationRepository) MarkProcessed(tx *gorm.DB, line *models.Reservation) error {
	res := r.guarded(tx, line).Updates(map[string]any{
		"processed":     true,
		"held_quantity": 0,
	})
	if err := checkGuarded("mark reservation processed", line.ID, res); err != nil {
		return err
	}
	line.Processed, line.HeldQuantity = true, 0
	return nil
}

// RevertExpired drops an expired hold back to a plain cart line. It reports
// false when the line was confirmed, released or re-held since it was read.
func (r *GORMReservationRepository) RevertExpired(tx *gorm.DB, line *models.Reservation, now time.Time) (bool, error) {
	res := r.guarded(tx, line).
		Where("reserved = ? AND reservation_expiry <= ?", true, now).
		Updates(map[string]any{
			"reserved":           false,
			"held_quantity":      0,
			"reservation_expiry": nil,
			"checkout_reference": "",
		})
	if res.Error != nil {
		return false, dbError(fmt.Sprintf("revert reservation %s", line.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	line.Reserved, line.HeldQuantity, line.ReservationExpiry, line.CheckoutReference = false, 0, nil, ""
	return true, nil
}

// Delete removes a cart line the user dropped.
func (r *GORMReservationRepository) Delete(tx *gorm.DB, line *models.Reservation) error {
	res := tx.Where("id = ? AND processed = ? AND held_quantity = ?", line.ID, false, line.HeldQuantity).
		Delete(&models.Reservation{})
	return checkGuarded("delete reservation", line.ID, res)
}

// DeleteProcessed clears materialized lines out of the user's cart.
func (r *GORMReservationRepository) DeleteProcessed(tx *gorm.DB, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.Where("user_id = ? AND processed = ? AND id IN ?", userID, true, ids).
		Delete(&models.Reservation{})
	if res.Error != nil {
		return 0, dbError("delete processed reservations", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GORMReservationRepository) guarded(tx *gorm.DB, line *models.Reservation) *gorm.DB {
	return tx.Model(&models.Reservation{}).
		Where("id = ? AND processed = ? AND held_quantity = ?", line.ID, false, line.HeldQuantity)
}

func checkGuarded(op, id string, res *gorm.DB) error {
	if res.Error != nil {
		return dbError(fmt.Sprintf("%s %s", op, id), res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict(fmt.Errorf("%s %s: %w", op, id, errStaleRow))
	}
	return nil
}

var _ ReservationRepository = (*GORMReservationRepository)(nil)
var _ InventoryLedger = (*GORMInventoryLedger)(nil)
