package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutStatus tracks one checkout attempt from hold placement to its outcome.
type CheckoutStatus string

const (
	CheckoutInitiated       CheckoutStatus = "INITIATED"
	CheckoutHoldingStock    CheckoutStatus = "HOLDING_STOCK"
	CheckoutAwaitingPayment CheckoutStatus = "AWAITING_PAYMENT"
	CheckoutConfirmed       CheckoutStatus = "CONFIRMED"
	CheckoutExpired         CheckoutStatus = "EXPIRED"
	CheckoutFailed          CheckoutStatus = "FAILED"
)

// CheckoutAttempt is keyed by the payment reference handed to the gateway.
type CheckoutAttempt struct {
	Reference     string          `json:"reference" gorm:"primaryKey;type:varchar(64)"`
	UserID        string          `json:"userId" gorm:"type:varchar(36);not null;index"`
	Status        CheckoutStatus  `json:"status" gorm:"type:varchar(32);not null;index"`
	TotalAmount   decimal.Decimal `json:"totalAmount" gorm:"type:decimal(12,2)"`
	ExpiresAt     time.Time       `json:"expiresAt" gorm:"index"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// MaterializationFailure is the durable record an operator works from when a
// paid checkout could not be turned into an order.
type MaterializationFailure struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PaymentID string    `json:"paymentId" gorm:"type:varchar(64);not null;index"`
	UserID    string    `json:"userId" gorm:"type:varchar(36)"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	Payload   string    `json:"payload" gorm:"type:text"`
	Resolved  bool      `json:"resolved" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt"`
}
