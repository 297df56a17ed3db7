package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderProcessed      OrderStatus = "processed"
	OrderShipped        OrderStatus = "shipped"
	OrderOutForDelivery OrderStatus = "out-for-delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderOnHold         OrderStatus = "on-hold"
	OrderExpired        OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:        {OrderProcessed: true, OrderCancelled: true, OrderOnHold: true, OrderExpired: true},
	OrderProcessed:      {OrderShipped: true, OrderCancelled: true, OrderOnHold: true},
	OrderShipped:        {OrderOutForDelivery: true, OrderOnHold: true},
	OrderOutForDelivery: {OrderDelivered: true, OrderOnHold: true},
	OrderOnHold:         {OrderProcessed: true, OrderShipped: true, OrderOutForDelivery: true, OrderCancelled: true},
	OrderDelivered:      {},
	OrderCancelled:      {},
	OrderExpired:        {},
}

// ValidOrderStatus reports whether s names a known status.
func ValidOrderStatus(s OrderStatus) bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// OrderItem is a snapshot of a purchased line, decoupled from later catalog edits.
type OrderItem struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID       string          `json:"orderId" gorm:"type:varchar(36);not null;index"`
	ProductID     string          `json:"productId" gorm:"type:varchar(36);not null"`
	Quantity      int             `json:"quantity" gorm:"not null"`
	SelectedSize  string          `json:"selectedSize"`
	SelectedColor string          `json:"selectedColor"`
	ProductPrice  decimal.Decimal `json:"productPrice" gorm:"type:decimal(12,2);not null"`
	ProductName   string          `json:"productName"`
	ProductImage  string          `json:"productImage"`
}

// Order is a paid purchase. PaymentID is the gateway reference and is unique,
// which makes it the idempotency key for payment confirmations.
type Order struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string          `json:"userId" gorm:"type:varchar(36);not null;index"`
	Items           []OrderItem     `json:"orderItems" gorm:"foreignKey:OrderID"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(32);not null;index"`
	StatusHistory   []OrderStatus   `json:"statusHistory" gorm:"type:text;serializer:json"`
	PaymentID       string          `json:"paymentId" gorm:"type:varchar(64);not null;uniqueIndex"`
	TotalPrice      decimal.Decimal `json:"totalPrice" gorm:"type:decimal(12,2);not null"`
	ShippingAddress string          `json:"shippingAddress"`
	City            string          `json:"city"`
	PostalCode      string          `json:"postalCode"`
	Country         string          `json:"country"`
	Phone           string          `json:"phone"`
	DateOrdered     time.Time       `json:"dateOrdered" gorm:"index"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
