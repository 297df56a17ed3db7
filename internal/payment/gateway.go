// Package payment is the boundary to the external payment gateway.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway creates payment intents and reports their status.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// LineItem is one cart line as carried through the gateway, enough to
// rebuild the order when the confirmation arrives.
type LineItem struct {
	ReservationID string          `json:"reservationId"`
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	SelectedSize  string          `json:"selectedSize"`
	SelectedColor string          `json:"selectedColor"`
	Price         decimal.Decimal `json:"price"`
}

// Metadata is attached to the payment intent and echoed back by the webhook.
type Metadata struct {
	UserID      string          `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CartItems   []LineItem      `json:"cartItems"`
}

type InitializeRequest struct {
	Reference   string
	Email       string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
	Metadata    Metadata
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type VerifyResult struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

// NewReference returns a unique payment reference for a checkout attempt.
func NewReference(now time.Time) string {
	return fmt.Sprintf("ORDER-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// MinorUnits converts a major-unit amount to the gateway's integer minor units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
