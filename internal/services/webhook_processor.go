package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/events"
	"tokoshop/internal/metrics"
	"tokoshop/internal/models"
	"tokoshop/internal/payment"
	"tokoshop/internal/repositories"
)

// WebhookOutcome says what a delivery did.
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// ProcessedCache remembers payment references that already produced an
// order. Implemented by cache.ProcessedPayments.
type ProcessedCache interface {
	OrderFor(ctx context.Context, reference string) (string, error)
	Remember(ctx context.Context, reference, orderID string) error
}

// WebhookConfig holds the webhook settings read from configuration.
type WebhookConfig struct {
	Secret     string
	MaxRetries int
	Backoff    time.Duration
}

// WebhookProcessor verifies gateway callbacks and turns confirmed payments
// into orders exactly once.
type WebhookProcessor struct {
	db           *gorm.DB
	materializer *Materializer
	attempts     repositories.CheckoutAttemptRepository
	cache        ProcessedCache
	notifier     *NotificationService
	events       *events.Dispatcher
	cfg          WebhookConfig
	metrics      *metrics.Metrics

	// background notification and event work
	wg sync.WaitGroup
}

// NewWebhookProcessor creates a WebhookProcessor. cache, notifier and
// dispatcher may be nil.
func NewWebhookProcessor(
	db *gorm.DB,
	materializer *Materializer,
	attempts repositories.CheckoutAttemptRepository,
	cache ProcessedCache,
	notifier *NotificationService,
	dispatcher *events.Dispatcher,
	cfg WebhookConfig,
	m *metrics.Metrics,
) *WebhookProcessor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &WebhookProcessor{
		db:           db,
		materializer: materializer,
		attempts:     attempts,
		cache:        cache,
		notifier:     notifier,
		events:       dispatcher,
		cfg:          cfg,
		metrics:      m,
	}
}

// Handle processes one raw webhook delivery.
func (p *WebhookProcessor) Handle(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if !payment.VerifySignature(p.cfg.Secret, body, signature) {
		p.metrics.Webhook("unauthorized")
		return "", fmt.Errorf("%w: webhook signature mismatch", apperrors.ErrUnauthorized)
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		p.metrics.Webhook("invalid")
		return "", apperrors.Validation("%v", err)
	}
	if ev.Event != payment.EventChargeSuccess {
		p.metrics.Webhook("ignored")
		log.Printf("[webhook] ignoring event=%s reference=%s", ev.Event, ev.Data.Reference)
		return WebhookIgnored, nil
	}

	ref := ev.Data.Reference
	if ref == "" || ev.Data.Metadata.UserID == "" {
		p.metrics.Webhook("invalid")
		return "", apperrors.Validation("charge event without reference or user")
	}

	if p.seen(ctx, ref) {
		p.metrics.Webhook("duplicate")
		log.Printf("[webhook] duplicate delivery reference=%s (cache)", ref)
		return WebhookDuplicate, nil
	}

	in := MaterializeInput{
		PaymentID:   ref,
		UserID:      ev.Data.Metadata.UserID,
		TotalAmount: ev.Data.Metadata.TotalAmount,
		Items:       ev.Data.Metadata.CartItems,
	}

	order, err := p.materializeWithRetry(ctx, in)
	if errors.Is(err, apperrors.ErrDuplicateEvent) {
		p.metrics.Webhook("duplicate")
		log.Printf("[webhook] duplicate delivery reference=%s", ref)
		return WebhookDuplicate, nil
	}
	if err != nil {
		p.metrics.Webhook("failed")
		return "", err
	}

	p.metrics.Webhook("processed")
	if err := p.attempts.SetStatus(p.db.WithContext(ctx), ref, models.CheckoutConfirmed, ""); err != nil {
		log.Printf("[webhook] could not mark checkout confirmed reference=%s: %v", ref, err)
	}
	if p.cache != nil {
		if err := p.cache.Remember(ctx, ref, order.ID); err != nil {
			log.Printf("[webhook] cache remember reference=%s: %v", ref, err)
		}
	}
	p.afterCommit(order, ev.Data.Customer.Email)
	return WebhookProcessed, nil
}

// materializeWithRetry retries transient failures with a linearly growing
// delay. Anything else is returned at once.
func (p *WebhookProcessor) materializeWithRetry(ctx context.Context, in MaterializeInput) (*models.Order, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.cfg.Backoff * time.Duration(attempt)
			log.Printf("[webhook] retrying reference=%s attempt=%d in %s: %v", in.PaymentID, attempt+1, delay, lastErr)
			select {
			case <-ctx.Done():
				p.materializer.RecordFailure(ctx, in, attempt, lastErr)
				return nil, apperrors.Internal(ctx.Err())
			case <-time.After(delay):
			}
		}

		order, err := p.materializer.Materialize(ctx, in)
		if err == nil || !apperrors.IsTransient(err) {
			return order, err
		}
		lastErr = err
	}

	p.materializer.RecordFailure(ctx, in, p.cfg.MaxRetries+1, lastErr)
	return nil, lastErr
}

func (p *WebhookProcessor) seen(ctx context.Context, ref string) bool {
	if p.cache == nil {
		return false
	}
	id, err := p.cache.OrderFor(ctx, ref)
	if err != nil {
		log.Printf("[webhook] cache lookup reference=%s: %v", ref, err)
		return false
	}
	return id != ""
}

// afterCommit sends the confirmation and publishes the event without holding
// up the gateway's request. Neither can affect the order.
func (p *WebhookProcessor) afterCommit(order *models.Order, customerEmail string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := p.notifier.OrderConfirmed(ctx, order, customerEmail); err != nil {
			log.Printf("[webhook] notification for order=%s failed: %v", order.ID, err)
		}

		env, err := events.NewOrderConfirmed(order, time.Now())
		if err != nil {
			log.Printf("[webhook] build event for order=%s: %v", order.ID, err)
			return
		}
		if err := p.events.Dispatch(ctx, env); err != nil {
			log.Printf("[webhook] publish %s for order=%s failed: %v", env.EventType, order.ID, err)
		}
	}()
}

// Wait blocks until background notification work has finished.
func (p *WebhookProcessor) Wait() {
	p.wg.Wait()
}
