// Package cache keeps a Redis record of payment references that already
// produced an order, so repeated webhook deliveries skip the database.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// processed:payment:{reference} -> order id
	keyProcessedPayment = "processed:payment:%s"

	TTLProcessedPayment = 48 * time.Hour
)

// NewClient connects to Redis at addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// ProcessedPayments is the Redis-backed fast path for duplicate webhooks.
// The database's unique payment id stays the source of truth.
type ProcessedPayments struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProcessedPayments(rdb *redis.Client) *ProcessedPayments {
	return &ProcessedPayments{rdb: rdb, ttl: TTLProcessedPayment}
}

// OrderFor returns the order id recorded for reference, or "" if none.
func (p *ProcessedPayments) OrderFor(ctx context.Context, reference string) (string, error) {
	id, err := p.rdb.Get(ctx, fmt.Sprintf(keyProcessedPayment, reference)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get processed payment %s: %w", reference, err)
	}
	return id, nil
}

// Remember records that reference produced orderID. The first writer wins.
func (p *ProcessedPayments) Remember(ctx context.Context, reference, orderID string) error {
	if err := p.rdb.SetNX(ctx, fmt.Sprintf(keyProcessedPayment, reference), orderID, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis remember processed payment %s: %w", reference, err)
	}
	return nil
}

// Ping checks connectivity.
func (p *ProcessedPayments) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
