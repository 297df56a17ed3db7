package repositories

import (
	"fmt"

	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/models"
)

// InventoryLedger is the only writer of Product.CountInStock and
// Product.ReservedQuantity. Each operation is one conditional UPDATE, so two
// callers racing on the same product can never both take the last unit.
type InventoryLedger interface {
	// Reserve moves qty from countInStock to reservedQuantity.
	Reserve(tx *gorm.DB, productID string, qty int) error
	// Release moves qty from reservedQuantity back to countInStock.
	Release(tx *gorm.DB, productID string, qty int) error
	// Confirm drops qty from reservedQuantity once the sale is final.
	Confirm(tx *gorm.DB, productID string, qty int) error
	// DirectDecrement takes qty from countInStock without a prior hold.
	DirectDecrement(tx *gorm.DB, productID string, qty int) error
}

// GORMInventoryLedger is a GORM implementation of InventoryLedger.
type GORMInventoryLedger struct{}

// NewGORMInventoryLedger creates a new instance of GORMInventoryLedger.
func NewGORMInventoryLedger() *GORMInventoryLedger {
	return &GORMInventoryLedger{}
}

func (l *GORMInventoryLedger) Reserve(tx *gorm.DB, productID string, qty int) error {
	if skip, err := checkQty(qty); skip || err != nil {
		return err
	}
	res := tx.Model(&models.Product{}).
		Where("id = ? AND count_in_stock >= ?", productID, qty).
		Updates(map[string]any{
			"count_in_stock":    gorm.Expr("count_in_stock - ?", qty),
			"reserved_quantity": gorm.Expr("reserved_quantity + ?", qty),
		})
	if res.Error != nil {
		return dbError(fmt.Sprintf("reserve %d of %s", qty, productID), res.Error)
	}
	if res.RowsAffected == 0 {
		return l.insufficient(tx, productID)
	}
	return nil
}

func (l *GORMInventoryLedger) Release(tx *gorm.DB, productID string, qty int) error {
	if skip, err := checkQty(qty); skip || err != nil {
		return err
	}
	res := tx.Model(&models.Product{}).
		Where("id = ? AND reserved_quantity >= ?", productID, qty).
		Updates(map[string]any{
			"count_in_stock":    gorm.Expr("count_in_stock + ?", qty),
			"reserved_quantity": gorm.Expr("reserved_quantity - ?", qty),
		})
	if res.Error != nil {
		return dbError(fmt.Sprintf("release %d of %s", qty, productID), res.Error)
	}
	if res.RowsAffected == 0 {
		return l.underflow(tx, productID, "release", qty)
	}
	return nil
}

func (l *GORMInventoryLedger) Confirm(tx *gorm.DB, productID string, qty int) error {
	if skip, err := checkQty(qty); skip || err != nil {
		return err
	}
	res := tx.Model(&models.Product{}).
		Where("id = ? AND reserved_quantity >= ?", productID, qty).
		Update("reserved_quantity", gorm.Expr("reserved_quantity - ?", qty))
	if res.Error != nil {
		return dbError(fmt.Sprintf("confirm %d of %s", qty, productID), res.Error)
	}
	if res.RowsAffected == 0 {
		return l.underflow(tx, productID, "confirm", qty)
	}
	return nil
}

func (l *GORMInventoryLedger) DirectDecrement(tx *gorm.DB, productID string, qty int) error {
	if skip, err := checkQty(qty); skip || err != nil {
		return err
	}
	res := tx.Model(&models.Product{}).
		Where("id = ? AND count_in_stock >= ?", productID, qty).
		Update("count_in_stock", gorm.Expr("count_in_stock - ?", qty))
	if res.Error != nil {
		return dbError(fmt.Sprintf("decrement %d of %s", qty, productID), res.Error)
	}
	if res.RowsAffected == 0 {
		return l.insufficient(tx, productID)
	}
	return nil
}

// insufficient explains a rejected take: either the product is gone or it
// has fewer units than asked for.
func (l *GORMInventoryLedger) insufficient(tx *gorm.DB, productID string) error {
	var p models.Product
	if err := tx.Select("id", "name", "count_in_stock").First(&p, "id = ?", productID).Error; err != nil {
		return notFoundOr("read product after rejected take", "product", productID, err)
	}
	return &apperrors.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Remaining: p.CountInStock}
}

// underflow reports an attempt to give back or finalize more than is held,
// which means the caller's hold accounting is wrong.
func (l *GORMInventoryLedger) underflow(tx *gorm.DB, productID, op string, qty int) error {
	var p models.Product
	if err := tx.Select("id", "reserved_quantity").First(&p, "id = ?", productID).Error; err != nil {
		return notFoundOr("read product after rejected "+op, "product", productID, err)
	}
	return apperrors.Internal(fmt.Errorf("%s %d of %s exceeds reserved %d", op, qty, productID, p.ReservedQuantity))
}

func checkQty(qty int) (skip bool, err error) {
	if qty < 0 {
		return false, apperrors.Validation("quantity must not be negative, got %d", qty)
	}
	return qty == 0, nil
}
