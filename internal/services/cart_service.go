package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/models"
	"tokoshop/internal/repositories"
)

// CartService manages a user's cart lines. Adding a line takes the stock
// out of the ledger immediately; the line remembers how much it holds so
// every later change gives back exactly that.
type CartService struct {
	db           *gorm.DB
	ledger       repositories.InventoryLedger
	reservations repositories.ReservationRepository
	products     repositories.ProductRepository
}

// NewCartService creates a new CartService.
func NewCartService(db *gorm.DB, ledger repositories.InventoryLedger, reservations repositories.ReservationRepository, products repositories.ProductRepository) *CartService {
	return &CartService{db: db, ledger: ledger, reservations: reservations, products: products}
}

// AddToCartInput is one product variant to put in the cart.
type AddToCartInput struct {
	ProductID     string `json:"productId" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,min=1"`
	SelectedSize  string `json:"selectedSize"`
	SelectedColor string `json:"selectedColor"`
}

// CartLine is a cart entry joined with the current catalog data.
type CartLine struct {
	models.Reservation
	ProductExist      bool            `json:"productExist"`
	ProductOutOfStock bool            `json:"productOutOfStock"`
	ProductName       string          `json:"productName"`
	ProductImage      string          `json:"productImage"`
	ProductPrice      decimal.Decimal `json:"productPrice"`
}

// AddToCart puts qty units of a variant in the user's cart, merging with an
// existing unreserved line for the same variant.
func (s *CartService) AddToCart(ctx context.Context, userID string, in AddToCartInput) (*models.Reservation, error) {
	if in.Quantity <= 0 {
		return nil, apperrors.Validation("quantity must be at least 1")
	}

	var line *models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.reservations.FindOpenLine(tx, userID, in.ProductID, in.SelectedSize, in.SelectedColor)
		if err != nil {
			return err
		}

		if err := s.ledger.Reserve(tx, in.ProductID, in.Quantity); err != nil {
			return err
		}

		if existing != nil {
			line = existing
			return s.reservations.SetQuantity(tx, line, line.Quantity+in.Quantity, line.HeldQuantity+in.Quantity)
		}

		line = &models.Reservation{
			UserID:        userID,
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			HeldQuantity:  in.Quantity,
			SelectedSize:  in.SelectedSize,
			SelectedColor: in.SelectedColor,
		}
		return s.reservations.Create(tx, line)
	})
	if err != nil {
		return nil, fmt.Errorf("add %s to cart: %w", in.ProductID, err)
	}
	return line, nil
}

// ModifyQuantity sets a line's quantity, taking or returning the difference
// against what the line already holds.
func (s *CartService) ModifyQuantity(ctx context.Context, userID, lineID string, qty int) (*models.Reservation, error) {
	if qty <= 0 {
		return nil, apperrors.Validation("quantity must be at least 1")
	}

	var line *models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		line, err = s.ownedLine(tx, userID, lineID)
		if err != nil {
			return err
		}
		if line.State() != models.ReservationUnreserved {
			return apperrors.Validation("cart line %s is held for checkout", lineID)
		}

		switch delta := qty - line.HeldQuantity; {
		case delta > 0:
			err = s.ledger.Reserve(tx, line.ProductID, delta)
		case delta < 0:
			err = s.ledger.Release(tx, line.ProductID, -delta)
		}
		if err != nil {
			return err
		}
		return s.reservations.SetQuantity(tx, line, qty, qty)
	})
	if err != nil {
		return nil, fmt.Errorf("modify cart line %s: %w", lineID, err)
	}
	return line, nil
}

// RemoveFromCart gives back whatever the line holds and deletes it.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, lineID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		line, err := s.ownedLine(tx, userID, lineID)
		if err != nil {
			return err
		}
		if line.Processed {
			return apperrors.Validation("cart line %s is already ordered", lineID)
		}
		if err := s.ledger.Release(tx, line.ProductID, line.HeldQuantity); err != nil {
			return err
		}
		return s.reservations.Delete(tx, line)
	})
	if err != nil {
		return fmt.Errorf("remove cart line %s: %w", lineID, err)
	}
	return nil
}

// GetCart lists the user's lines with current product data. Lines whose
// product no longer exists are returned with ProductExist=false.
func (s *CartService) GetCart(ctx context.Context, userID string) ([]CartLine, error) {
	db := s.db.WithContext(ctx)
	lines, err := s.reservations.ListByUser(db, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.products.GetByIDs(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, joinProduct(l, products))
	}
	return out, nil
}

// GetCartLine returns one of the user's lines.
func (s *CartService) GetCartLine(ctx context.Context, userID, lineID string) (*CartLine, error) {
	db := s.db.WithContext(ctx)
	line, err := s.ownedLine(db, userID, lineID)
	if err != nil {
		return nil, err
	}
	products, err := s.products.GetByIDs(db, []string{line.ProductID})
	if err != nil {
		return nil, err
	}
	out := joinProduct(*line, products)
	return &out, nil
}

// CartCount returns the number of lines in the user's cart.
func (s *CartService) CartCount(ctx context.Context, userID string) (int64, error) {
	return s.reservations.CountByUser(s.db.WithContext(ctx), userID)
}

func (s *CartService) ownedLine(tx *gorm.DB, userID, lineID string) (*models.Reservation, error) {
	line, err := s.reservations.GetByID(tx, lineID)
	if err != nil {
		return nil, err
	}
	if line.UserID != userID {
		return nil, apperrors.NotFound("cart line", lineID)
	}
	return line, nil
}

func joinProduct(l models.Reservation, products map[string]models.Product) CartLine {
	line := CartLine{Reservation: l}
	p, ok := products[l.ProductID]
	if !ok {
		line.ProductOutOfStock = true
		return line
	}
	line.ProductExist = true
	line.ProductName = p.Name
	line.ProductImage = p.Image
	line.ProductPrice = p.Price
	line.ProductOutOfStock = l.Quantity-l.HeldQuantity > p.CountInStock
	return line
}
