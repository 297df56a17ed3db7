package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/database"
	"tokoshop/internal/models"
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(tx *gorm.DB, order *models.Order) error
	ExistsByPaymentID(tx *gorm.DB, paymentID string) (bool, error)
	GetByID(tx *gorm.DB, id string) (*models.Order, error)
	GetByPaymentID(tx *gorm.DB, paymentID string) (*models.Order, error)
	ListByUser(tx *gorm.DB, userID string) ([]models.Order, error)
	UpdateStatus(tx *gorm.DB, order *models.Order, status models.OrderStatus) error
}

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct{}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository() *GORMOrderRepository {
	return &GORMOrderRepository{}
}

// Create inserts the order with its items. A second order for the same
// payment reference fails with ErrDuplicateEvent.
func (r *GORMOrderRepository) Create(tx *gorm.DB, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.DateOrdered.IsZero() {
		order.DateOrdered = time.Now()
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
		order.Items[i].OrderID = order.ID
	}
	if err := tx.Create(order).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("%w: order for payment %s", apperrors.ErrDuplicateEvent, order.PaymentID)
		}
		return dbError("create order", err)
	}
	return nil
}

func (r *GORMOrderRepository) ExistsByPaymentID(tx *gorm.DB, paymentID string) (bool, error) {
	var n int64
	if err := tx.Model(&models.Order{}).Where("payment_id = ?", paymentID).Count(&n).Error; err != nil {
		return false, dbError("look up order by payment", err)
	}
	return n > 0, nil
}

func (r *GORMOrderRepository) GetByID(tx *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(fmt.Sprintf("get order %s", id), "order", id, err)
	}
	return &order, nil
}

func (r *GORMOrderRepository) GetByPaymentID(tx *gorm.DB, paymentID string) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Items").First(&order, "payment_id = ?", paymentID).Error; err != nil {
		return nil, notFoundOr(fmt.Sprintf("get order for payment %s", paymentID), "order", paymentID, err)
	}
	return &order, nil
}

// ListByUser returns the user's orders, newest first.
func (r *GORMOrderRepository) ListByUser(tx *gorm.DB, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := tx.Preload("Items").
		Where("user_id = ?", userID).
		Order("date_ordered DESC").
		Find(&orders).Error
	if err != nil {
		return nil, dbError("list orders", err)
	}
	return orders, nil
}

// UpdateStatus moves the order to status and appends it to the history. The update only applies if the status has not moved since the
// order was read.
func (r *GORMOrderRepository) UpdateStatus(tx *gorm.DB, order *models.Order, status models.OrderStatus) error {
	history := append(append([]models.OrderStatus{}, order.StatusHistory...), status)
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(models.Order{Status: status, StatusHistory: history})
	if err := checkGuarded("update order status", order.ID, res); err != nil {
		return err
	}
	order.Status, order.StatusHistory = status, history
	return nil
}
