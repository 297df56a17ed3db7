package services

import (
	"context"
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

// CheckoutItem is one line of the cart snapshot submitted at checkout. ID is
// the cart line id when the client has one.
type CheckoutItem struct {
	ID            string `json:"id"`
	ProductID     string `json:"productId" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,min=1"`
	SelectedSize  string `json:"selectedSize"`
	SelectedColor string `json:"selectedColor"`
	Reserved      bool   `json:"reserved"`
}

// CheckoutResult tells the client where to pay.
type CheckoutResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// CheckoutConfig holds the checkout settings read from configuration.
type CheckoutConfig struct {
	HoldTTL          time.Duration
	Currency         string
	ClientSuccessURL string
}

// CheckoutService holds stock for a cart snapshot and opens a payment
// intent with the gateway, all inside one transaction.
type CheckoutService struct {
	db           *gorm.DB
	ledger       repositories.InventoryLedger
	reservations repositories.ReservationRepository
	products     repositories.ProductRepository
	users        repositories.UserRepository
	attempts     repositories.CheckoutAttemptRepository
	gateway      payment.Gateway
	cfg          CheckoutConfig
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	db *gorm.DB,
	ledger repositories.InventoryLedger,
	reservations repositories.ReservationRepository,
	products repositories.ProductRepository,
	users repositories.UserRepository,
	attempts repositories.CheckoutAttemptRepository,
	gateway payment.Gateway,
	cfg CheckoutConfig,
	m *metrics.Metrics,
) *CheckoutService {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 15 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &CheckoutService{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		products:     products,
		users:        users,
		attempts:     attempts,
		gateway:      gateway,
		cfg:          cfg,
		metrics:      m,
		now:          time.Now,
	}
}

// Checkout holds stock for every item, prices the snapshot and requests a
// payment intent. Any failure rolls back every hold taken by the attempt.
func (s *CheckoutService) Checkout(ctx context.Context, userID string, items []CheckoutItem) (*CheckoutResult, error) {
	if len(items) == 0 {
		s.metrics.Checkout("invalid")
		return nil, apperrors.Validation("cart is empty")
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			s.metrics.Checkout("invalid")
			return nil, apperrors.Validation("each item needs a productId and a positive quantity")
		}
	}

	user, err := s.users.GetByID(s.db.WithContext(ctx), userID)
	if err != nil {
		s.metrics.Checkout("invalid")
		return nil, err
	}
	if !user.HasShippingAddress() {
		s.metrics.Checkout("invalid")
		return nil, apperrors.Validation("please add a shipping address before checking out")
	}

	now := s.now()
	reference := payment.NewReference(now)
	expiry := now.Add(s.cfg.HoldTTL)

	var result *CheckoutResult
	var total decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := s.holdItems(tx, userID, items, expiry, reference)
		if err != nil {
			return err
		}
		total = meta.TotalAmount

		err = s.attempts.Create(tx, &models.CheckoutAttempt{
			Reference:   reference,
			UserID:      userID,
			Status:      models.CheckoutHoldingStock,
			TotalAmount: total,
			ExpiresAt:   expiry,
		})
		if err != nil {
			return err
		}

		gctx, cancel := context.WithTimeout(ctx, s.cfg.HoldTTL)
		defer cancel()
		res, err := s.gateway.Initialize(gctx, payment.InitializeRequest{
			Reference:   reference,
			Email:       user.Email,
			Amount:      total,
			Currency:    s.cfg.Currency,
			CallbackURL: s.cfg.ClientSuccessURL + "/success",
			Metadata:    *meta,
		})
		if err != nil {
			return apperrors.Payment(err)
		}

		if err := s.attempts.SetStatus(tx, reference, models.CheckoutAwaitingPayment, ""); err != nil {
			return err
		}
		result = &CheckoutResult{AuthorizationURL: res.AuthorizationURL, Reference: res.Reference}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, reference, userID, total, expiry, err)
		return nil, fmt.Errorf("checkout %s: %w", reference, classify(err))
	}

	s.metrics.Checkout("success")
	log.Printf("[checkout] awaiting payment reference=%s user=%s total=%s", reference, userID, total.StringFixed(2))
	return result, nil
}

// VerifyPayment asks the gateway for the status of a payment reference.
// It reports whether the payment succeeded and the gateway's status.
func (s *CheckoutService) VerifyPayment(ctx context.Context, reference string) (bool, string, error) {
	if reference == "" {
		return false, "", apperrors.Validation("payment reference is required")
	}
	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return false, "", apperrors.Payment(err)
	}
	return res.Status == "success", res.Status, nil
}

// holdItems takes stock for every item not already held by its cart line and
// promotes the lines to RESERVED. It returns the gateway metadata.
func (s *CheckoutService) holdItems(tx *gorm.DB, userID string, items []CheckoutItem, expiry time.Time, reference string) (*payment.Metadata, error) {
	meta := &payment.Metadata{UserID: userID, CartItems: make([]payment.LineItem, 0, len(items))}
	seen := make(map[string]bool, len(items))

	for _, it := range items {
		line, err := s.resolveLine(tx, userID, it)
		if err != nil {
			return nil, err
		}
		if seen[line.ID] {
			return nil, apperrors.Validation("cart line %s appears twice", line.ID)
		}
		seen[line.ID] = true

		switch need := it.Quantity - line.HeldQuantity; {
		case need > 0:
			err = s.ledger.Reserve(tx, it.ProductID, need)
		case need < 0:
			err = s.ledger.Release(tx, it.ProductID, -need)
		}
		if err != nil {
			return nil, err
		}

		if err := s.reservations.Promote(tx, line, it.Quantity, it.Quantity, expiry, reference); err != nil {
			return nil, err
		}

		product, err := s.products.GetByID(tx, it.ProductID)
		if err != nil {
			return nil, err
		}
		meta.TotalAmount = meta.TotalAmount.Add(product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		meta.CartItems = append(meta.CartItems, payment.LineItem{
			ReservationID: line.ID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			SelectedSize:  it.SelectedSize,
			SelectedColor: it.SelectedColor,
			Price:         product.Price,
		})
	}
	return meta, nil
}

// resolveLine finds the cart line an item refers to: by id, else the user's
// open line for the same variant, else a new line.
func (s *CheckoutService) resolveLine(tx *gorm.DB, userID string, it CheckoutItem) (*models.Reservation, error) {
	if it.ID != "" {
		line, err := s.reservations.GetByID(tx, it.ID)
		if err != nil {
			return nil, err
		}
		if line.UserID != userID || line.ProductID != it.ProductID {
			return nil, apperrors.NotFound("cart line", it.ID)
		}
		if line.Processed {
			return nil, apperrors.Validation("cart line %s is already ordered", it.ID)
		}
		return line, nil
	}

	line, err := s.reservations.FindOpenLine(tx, userID, it.ProductID, it.SelectedSize, it.SelectedColor)
	if err != nil || line != nil {
		return line, err
	}

	line = &models.Reservation{
		UserID:        userID,
		ProductID:     it.ProductID,
		Quantity:      it.Quantity,
		SelectedSize:  it.SelectedSize,
		SelectedColor: it.SelectedColor,
	}
	if err := s.reservations.Create(tx, line); err != nil {
		return nil, err
	}
	return line, nil
}

// recordFailure stores the failed attempt after its transaction rolled back.
func (s *CheckoutService) recordFailure(ctx context.Context, reference, userID string, total decimal.Decimal, expiry time.Time, cause error) {
	outcome := "failed"
	switch {
	case errors.Is(cause, apperrors.ErrInsufficientStock):
		outcome = "insufficient_stock"
	case errors.Is(cause, apperrors.ErrPayment):
		outcome = "payment_error"
	}
	s.metrics.Checkout(outcome)

	attempt := &models.CheckoutAttempt{
		Reference:     reference,
		UserID:        userID,
		Status:        models.CheckoutFailed,
		TotalAmount:   total,
		ExpiresAt:     expiry,
		FailureReason: cause.Error(),
	}
	if err := s.attempts.Create(s.db.WithContext(context.WithoutCancel(ctx)), attempt); err != nil {
		log.Printf("[checkout] could not record failed attempt reference=%s: %v", reference, err)
	}
	log.Printf("[checkout] failed reference=%s user=%s: %v", reference, userID, cause)
}

// classify makes sure an error leaving a service belongs to the taxonomy.
func classify(err error) error {
	for _, known := range []error{
		apperrors.ErrValidation,
		apperrors.ErrNotFound,
		apperrors.ErrInsufficientStock,
		apperrors.ErrPayment,
		apperrors.ErrUnauthorized,
		apperrors.ErrDuplicateEvent,
		apperrors.ErrConflict,
		apperrors.ErrInternal,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return apperrors.Internal(err)
}
