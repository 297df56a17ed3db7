package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry together with its stock counters.
// CountInStock is what can still be sold; ReservedQuantity is what is held
// against carts and pending checkouts. Only the inventory ledger writes them.
type Product struct {
	ID               string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name             string          `json:"name" gorm:"type:varchar(255);not null"`
	Description      string          `json:"description"`
	Image            string          `json:"image"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	CountInStock     int             `json:"countInStock" gorm:"not null;default:0;check:count_in_stock >= 0"`
	ReservedQuantity int             `json:"reservedQuantity" gorm:"not null;default:0;check:reserved_quantity >= 0"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
