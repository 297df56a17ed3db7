package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"tokoshop/internal/email"
	"tokoshop/internal/models"
	"tokoshop/internal/repositories"
)

// Notifier delivers a message to a recipient. Implemented by email.Service.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotificationService sends order notifications. Failures are logged and
// never reach the caller's outcome.
type NotificationService struct {
	db       *gorm.DB
	users    repositories.UserRepository
	notifier Notifier
	timeout  time.Duration
}

func NewNotificationService(db *gorm.DB, users repositories.UserRepository, notifier Notifier) *NotificationService {
	return &NotificationService{db: db, users: users, notifier: notifier, timeout: 30 * time.Second}
}

// OrderConfirmed mails the customer their order summary. fallbackEmail is
// used when the account has no address on record.
func (s *NotificationService) OrderConfirmed(ctx context.Context, order *models.Order, fallbackEmail string) error {
	if s == nil || s.notifier == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name, to := "", fallbackEmail
	if user, err := s.users.GetByID(s.db.WithContext(ctx), order.UserID); err == nil {
		name = user.Name
		if user.Email != "" {
			to = user.Email
		}
	}
	if to == "" {
		return fmt.Errorf("no email address for user %s", order.UserID)
	}

	shortID := order.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	subject := fmt.Sprintf("Order Confirmation #%s", shortID)
	if err := s.notifier.Send(ctx, to, subject, email.BuildOrderConfirmationBody(name, order)); err != nil {
		log.Printf("[notification] order=%s to=%s failed: %v", order.ID, to, err)
		return err
	}
	return nil
}
