package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/metrics"
	"tokoshop/internal/models"
	"tokoshop/internal/payment"
	"tokoshop/internal/repositories"
)

// MaterializeInput is a confirmed payment and the lines it paid for.
type MaterializeInput struct {
	PaymentID   string
	UserID      string
	TotalAmount decimal.Decimal
	Items       []payment.LineItem
}

// Materializer turns a confirmed payment into an Order. It is the only
// writer of orders and the only component that marks cart lines processed.
type Materializer struct {
	db           *gorm.DB
	ledger       repositories.InventoryLedger
	reservations repositories.ReservationRepository
	products     repositories.ProductRepository
	users        repositories.UserRepository
	orders       repositories.OrderRepository
	failures     repositories.FailureLog
	maxRetries   int
	backoff      time.Duration
	metrics      *metrics.Metrics
}

// NewMaterializer creates a Materializer that retries a conflicting
// transaction up to maxRetries times, sleeping backoff between attempts.
func NewMaterializer(
	db *gorm.DB,
	ledger repositories.InventoryLedger,
	reservations repositories.ReservationRepository,
	products repositories.ProductRepository,
	users repositories.UserRepository,
	orders repositories.OrderRepository,
	failures repositories.FailureLog,
	maxRetries int,
	backoff time.Duration,
	m *metrics.Metrics,
) *Materializer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Materializer{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		products:     products,
		users:        users,
		orders:       orders,
		failures:     failures,
		maxRetries:   maxRetries,
		backoff:      backoff,
		metrics:      m,
	}
}

// Materialize creates the order for in.PaymentID. It returns
// ErrDuplicateEvent when that payment already has an order.
//
// Write conflicts retry the whole transaction. Other failures, and conflicts
// that outlast the retries, are recorded in the failure log, except internal
// errors, which the caller may retry and must record itself via
// RecordFailure.
func (m *Materializer) Materialize(ctx context.Context, in MaterializeInput) (*models.Order, error) {
	if in.PaymentID == "" || in.UserID == "" || len(in.Items) == 0 {
		return nil, apperrors.Validation("payment %q carries no order lines", in.PaymentID)
	}

	attempts := 0
	var lastErr error
retry:
	for attempts <= m.maxRetries {
		attempts++
		order, err := m.attempt(ctx, in)
		if err == nil {
			m.metrics.Materialization("success", attempts)
			log.Printf("[materializer] order=%s payment=%s attempts=%d", order.ID, in.PaymentID, attempts)
			return order, nil
		}
		lastErr = err

		if errors.Is(err, apperrors.ErrDuplicateEvent) {
			m.metrics.Materialization("duplicate", attempts)
			return nil, err
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			break
		}
		if attempts > m.maxRetries {
			lastErr = fmt.Errorf("gave up after %d attempts: %w", attempts, err)
			break
		}

		log.Printf("[materializer] conflict payment=%s attempt=%d: %v", in.PaymentID, attempts, err)
		select {
		case <-ctx.Done():
			lastErr = apperrors.Internal(ctx.Err())
			break retry
		case <-time.After(m.backoff):
		}
	}

	m.metrics.Materialization("failed", attempts)
	if !apperrors.IsTransient(lastErr) {
		m.RecordFailure(ctx, in, attempts, lastErr)
	}
	return nil, fmt.Errorf("materialize payment %s: %w", in.PaymentID, classify(lastErr))
}

// attempt runs one materialization transaction. Writes go product first,
// then reservation, then order.
func (m *Materializer) attempt(ctx context.Context, in MaterializeInput) (*models.Order, error) {
	var order *models.Order
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := m.orders.ExistsByPaymentID(tx, in.PaymentID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: payment %s", apperrors.ErrDuplicateEvent, in.PaymentID)
		}

		user, err := m.users.GetByID(tx, in.UserID)
		if err != nil {
			return err
		}

		lineIDs := make([]string, 0, len(in.Items))
		productIDs := make([]string, 0, len(in.Items))
		for _, it := range in.Items {
			if it.ReservationID != "" {
				lineIDs = append(lineIDs, it.ReservationID)
			}
			productIDs = append(productIDs, it.ProductID)
		}
		lines, err := m.reservations.GetByIDs(tx, lineIDs)
		if err != nil {
			return err
		}
		products, err := m.products.GetByIDs(tx, productIDs)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(in.Items))
		held := make([]*models.Reservation, 0, len(in.Items))
		items := make([]models.OrderItem, 0, len(in.Items))
		total := decimal.Zero
		for _, it := range in.Items {
			if it.Quantity <= 0 {
				return apperrors.Validation("line for %s has quantity %d", it.ProductID, it.Quantity)
			}
			if it.ReservationID != "" {
				if seen[it.ReservationID] {
					return apperrors.Validation("cart line %s appears twice", it.ReservationID)
				}
				seen[it.ReservationID] = true
			}
			product, ok := products[it.ProductID]
			if !ok {
				return apperrors.NotFound("product", it.ProductID)
			}

			line, err := m.settleStock(tx, in.UserID, it, lines)
			if err != nil {
				return err
			}
			if line != nil {
				held = append(held, line)
			}

			price := it.Price
			if price.IsZero() {
				price = product.Price
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			items = append(items, models.OrderItem{
				ProductID:     it.ProductID,
				Quantity:      it.Quantity,
				SelectedSize:  it.SelectedSize,
				SelectedColor: it.SelectedColor,
				ProductPrice:  price,
				ProductName:   product.Name,
				ProductImage:  product.Image,
			})
		}

		processed := make([]string, 0, len(held))
		for _, line := range held {
			if err := m.reservations.MarkProcessed(tx, line); err != nil {
				return err
			}
			processed = append(processed, line.ID)
		}

		if !in.TotalAmount.IsZero() {
			total = in.TotalAmount
		}
		order = &models.Order{
			UserID:          in.UserID,
			Items:           items,
			Status:          models.OrderProcessed,
			StatusHistory:   []models.OrderStatus{models.OrderProcessed},
			PaymentID:       in.PaymentID,
			TotalPrice:      total,
			ShippingAddress: user.Street,
			City:            user.City,
			PostalCode:      user.PostalCode,
			Country:         user.Country,
			Phone:           user.Phone,
		}
		if err := m.orders.Create(tx, order); err != nil {
			return err
		}

		_, err = m.reservations.DeleteProcessed(tx, in.UserID, processed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// settleStock finalizes the stock for one paid line. Units the cart line
// holds are confirmed, any surplus hold is released, and units never held
// are taken directly. It returns the line to mark processed, if any.
func (m *Materializer) settleStock(tx *gorm.DB, userID string, it payment.LineItem, lines map[string]models.Reservation) (*models.Reservation, error) {
	l, ok := lines[it.ReservationID]
	if !ok || l.UserID != userID || l.ProductID != it.ProductID {
		return nil, m.ledger.DirectDecrement(tx, it.ProductID, it.Quantity)
	}
	if l.Processed {
		return nil, apperrors.Validation("cart line %s was already ordered", l.ID)
	}

	line := &l
	held := line.HeldQuantity
	if err := m.ledger.Confirm(tx, it.ProductID, min(held, it.Quantity)); err != nil {
		return nil, err
	}
	if held > it.Quantity {
		if err := m.ledger.Release(tx, it.ProductID, held-it.Quantity); err != nil {
			return nil, err
		}
	}
	if it.Quantity > held {
		if err := m.ledger.DirectDecrement(tx, it.ProductID, it.Quantity-held); err != nil {
			return nil, err
		}
	}
	return line, nil
}

// RecordFailure persists a materialization that will not complete and raises
// an operator alert in the log.
func (m *Materializer) RecordFailure(ctx context.Context, in MaterializeInput, attempts int, cause error) {
	log.Printf("ALERT [materializer] payment=%s user=%s attempts=%d: %v", in.PaymentID, in.UserID, attempts, cause)

	payload, err := json.Marshal(in)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", in))
	}
	failure := &models.MaterializationFailure{
		PaymentID: in.PaymentID,
		UserID:    in.UserID,
		Attempts:  attempts,
		LastError: cause.Error(),
		Payload:   string(payload),
	}
	if err := m.failures.Record(m.db.WithContext(context.WithoutCancel(ctx)), failure); err != nil {
		log.Printf("ALERT [materializer] could not persist failure for payment=%s: %v", in.PaymentID, err)
	}
}
