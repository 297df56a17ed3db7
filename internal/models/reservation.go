package models

import "time"

// ReservationState is derived from the Reserved and Processed flags.
type ReservationState string

const (
	ReservationUnreserved ReservationState = "UNRESERVED"
	ReservationReserved   ReservationState = "RESERVED"
	ReservationProcessed  ReservationState = "PROCESSED"
)

// Reservation is a cart line. HeldQuantity is the number of units this line
// currently holds in the product's ReservedQuantity, whatever took them
// (add-to-cart or checkout), so that every release gives back exactly that.
type Reservation struct {
	ID                string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string     `json:"userId" gorm:"type:varchar(36);not null;index"`
	ProductID         string     `json:"productId" gorm:"type:varchar(36);not null;index"`
	Quantity          int        `json:"quantity" gorm:"not null"`
	HeldQuantity      int        `json:"heldQuantity" gorm:"not null;default:0"`
	SelectedSize      string     `json:"selectedSize"`
	SelectedColor     string     `json:"selectedColor"`
	Reserved          bool       `json:"reserved" gorm:"not null;default:false;index:idx_reservations_expiry,priority:1"`
	ReservationExpiry *time.Time `json:"reservationExpiry" gorm:"index:idx_reservations_expiry,priority:2"`
	Processed         bool       `json:"processed" gorm:"not null;default:false"`
	CheckoutReference string     `json:"checkoutReference,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// State reports where the line is in its lifecycle.
func (r *Reservation) State() ReservationState {
	switch {
	case r.Processed:
		return ReservationProcessed
	case r.Reserved:
		return ReservationReserved
	default:
		return ReservationUnreserved
	}
}

// SameVariant reports whether the line is for the given product and selectors.
func (r *Reservation) SameVariant(productID, size, color string) bool {
	return r.ProductID == productID && r.SelectedSize == size && r.SelectedColor == color
}

// Expired reports whether a held line is past its expiry at now.
func (r *Reservation) Expired(now time.Time) bool {
	return r.Reserved && r.ReservationExpiry != nil && !r.ReservationExpiry.After(now)
}
