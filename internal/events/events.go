// Package events defines the messages the service publishes to its broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tokoshop/internal/models"
)

const (
	TypeOrderConfirmed = "order.confirmed"

	producerName = "toko-orders"
)

// Publisher sends an encoded event. Implemented by the RabbitMQ and Kafka
// clients; key is the routing key or partition key.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderConfirmedPayload struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItem     `json:"items"`
}

// NewOrderConfirmed builds the envelope announcing a materialized order.
func NewOrderConfirmed(order *models.Order, now time.Time) (*Envelope, error) {
	payload := OrderConfirmedPayload{
		OrderID:   order.ID,
		PaymentID: order.PaymentID,
		UserID:    order.UserID,
		Total:     order.TotalPrice,
		Items:     make([]OrderItem, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		payload.Items = append(payload.Items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.ProductPrice})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", TypeOrderConfirmed, err)
	}
	return &Envelope{
		EventID:       uuid.NewString(),
		EventType:     TypeOrderConfirmed,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producerName,
		CorrelationID: order.ID,
		Payload:       raw,
	}, nil
}

// RoutingKey keys an envelope by its type, for topic exchanges.
func RoutingKey(env *Envelope) string { return env.EventType }

// PartitionKey keys an envelope by the entity it concerns, so events for one
// order stay in one partition.
func PartitionKey(env *Envelope) string { return env.CorrelationID }

// Dispatcher encodes envelopes and hands them to a Publisher. A nil
// Dispatcher drops everything.
type Dispatcher struct {
	pub Publisher
	key func(*Envelope) string
}

func NewDispatcher(pub Publisher, key func(*Envelope) string) *Dispatcher {
	return &Dispatcher{pub: pub, key: key}
}

func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) error {
	if d == nil || d.pub == nil {
		return nil
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.EventType, err)
	}
	return d.pub.Publish(ctx, d.key(env), body)
}
