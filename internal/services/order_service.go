package services

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/models"
	"tokoshop/internal/repositories"
)

// OrderService handles reads and fulfilment updates of existing orders.
// Orders are only ever created by the Materializer.
type OrderService struct {
	db     *gorm.DB
	orders repositories.OrderRepository
}

// NewOrderService creates a new OrderService.
func NewOrderService(db *gorm.DB, orders repositories.OrderRepository) *OrderService {
	return &OrderService{db: db, orders: orders}
}

// UserOrders groups a user's orders by where they are in fulfilment.
type UserOrders struct {
	Total     int            `json:"total"`
	Active    []models.Order `json:"active"`
	Completed []models.Order `json:"completed"`
	Cancelled []models.Order `json:"cancelled"`
}

// GetUserOrders returns the user's orders, newest first, grouped by status.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string) (*UserOrders, error) {
	orders, err := s.orders.ListByUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	out := &UserOrders{
		Total:     len(orders),
		Active:    []models.Order{},
		Completed: []models.Order{},
		Cancelled: []models.Order{},
	}
	for _, o := range orders {
		switch o.Status {
		case models.OrderDelivered:
			out.Completed = append(out.Completed, o)
		case models.OrderCancelled, models.OrderExpired:
			out.Cancelled = append(out.Cancelled, o)
		default:
			out.Active = append(out.Active, o)
		}
	}
	return out, nil
}

// GetOrderByID returns an order its owner or an admin may see. Other users
// get NotFound so order ids cannot be probed.
func (s *OrderService) GetOrderByID(ctx context.Context, id, userID string, isAdmin bool) (*models.Order, error) {
	order, err := s.orders.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, apperrors.NotFound("order", id)
	}
	return order, nil
}

// UpdateOrderStatus moves an order along its fulfilment path.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, apperrors.Validation("invalid order status: %s", status)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.GetByID(tx, id)
		if err != nil {
			return err
		}
		if !models.CanTransition(order.Status, status) {
			return apperrors.Validation("order %s cannot move from %s to %s", id, order.Status, status)
		}
		return s.orders.UpdateStatus(tx, order, status)
	})
	if err != nil {
		return nil, fmt.Errorf("update status of order %s: %w", id, classify(err))
	}

	log.Printf("[orders] order=%s status=%s", id, status)
	return order, nil
}
