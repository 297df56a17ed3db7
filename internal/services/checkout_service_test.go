package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/models"
	"tokoshop/internal/services"
)

func TestCheckoutService_HoldsCartLines(t *testing.T) {
	env := newTestEnv(t)
	gw := &fakeGateway{}
	ctx := context.Background()
	user := env.seedUser(t, true)
	p := env.seedProduct(t, "Shirt", 100, 5)

	line, err := env.cartService().AddToCart(ctx, user.ID, services.AddToCartInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	res, err := env.checkoutService(gw).Checkout(ctx, user.ID, []services.CheckoutItem{
		{ID: line.ID, ProductID: p.ID, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/"+res.Reference, res.AuthorizationURL)

	got := env.product(t, p.ID)
	assert.Equal(t, 2, got.CountInStock)
	assert.Equal(t, 3, got.ReservedQuantity)

	held := env.line(t, line.ID)
	assert.Equal(t, models.ReservationReserved, held.State())
	assert.Equal(t, 3, held.Quantity)
	assert.Equal(t, 3, held.HeldQuantity)
	assert.Equal(t, res.Reference, held.CheckoutReference)
	require.NotNil(t, held.ReservationExpiry)

	req := gw.last()
	assert.Equal(t, user.Email, req.Email)
	assert.True(t, decimal.NewFromInt(300).Equal(req.Amount))
	assert.Equal(t, "http://shop.test/success", req.CallbackURL)
	require.Len(t, req.Metadata.CartItems, 1)
	assert.Equal(t, line.ID, req.Metadata.CartItems[0].ReservationID)
	assert.Equal(t, user.ID, req.Metadata.UserID)

	attempt, err := env.attempts.Get(env.db, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.CheckoutAwaitingPayment, attempt.Status)
}

func TestCheckoutService_ItemWithoutCartLine(t *testing.T) {
	env := newTestEnv(t)
	gw := &fakeGateway{}
	user := env.seedUser(t, true)
	p := env.seedProduct(t, "Mug", 50, 5)

	res, err := env.checkoutService(gw).Checkout(context.Background(), user.ID, []services.CheckoutItem{
		{ProductID: p.ID, Quantity: 2, SelectedColor: "blue"},
	})
	require.NoError(t, err)

	got := env.product(t, p.ID)
	assert.Equal(t, 3, got.CountInStock)
	assert.Equal(t, 2, got.ReservedQuantity)

	lineID := gw.last().Metadata.CartItems[0].ReservationID
	line := env.line(t, lineID)
	assert.Equal(t, res.Reference, line.CheckoutReference)
	assert.Equal(t, "blue", line.SelectedColor)
}

func TestCheckoutService_ConcurrentCheckoutsForLastUnit(t *testing.T) {
	env := newTestEnv(t)
	svc := env.checkoutService(&fakeGateway{})
	p := env.seedProduct(t, "Last one", 100, 1)
	users := []*models.User{env.seedUser(t, true), env.seedUser(t, true)}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(), userID, []services.CheckoutItem{{ProductID: p.ID, Quantity: 1}})
		}(i, u.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)

	got := env.product(t, p.ID)
	assert.Equal(t, 0, got.CountInStock)
	assert.Equal(t, 1, got.ReservedQuantity)
}

func TestCheckoutService_FailedItemRollsBackEveryHold(t *testing.T) {
	env := newTestEnv(t)
	gw := &fakeGateway{}
	user := env.seedUser(t, true)
	a := env.seedProduct(t, "A", 10, 5)
	b := env.seedProduct(t, "B", 20, 5)
	c := env.seedProduct(t, "C", 30, 1)

	_, err := env.checkoutService(gw).Checkout(context.Background(), user.ID, []services.CheckoutItem{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
		{ProductID: c.ID, Quantity: 2},
	})
	require.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "C: Only 1 left in stock")

	for _, p := range []*models.Product{a, b, c} {
		got := env.product(t, p.ID)
		assert.Equal(t, p.CountInStock, got.CountInStock, p.Name)
		assert.Equal(t, 0, got.ReservedQuantity, p.Name)
	}

	n, err := env.reservations.CountByUser(env.db, user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, gw.requests)

	var attempts []models.CheckoutAttempt
	require.NoError(t, env.db.Where("user_id = ?", user.ID).Find(&attempts).Error)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.CheckoutFailed, attempts[0].Status)
}

func TestCheckoutService_GatewayFailureReleasesHolds(t *testing.T) {
	env := newTestEnv(t)
	gw := &fakeGateway{err: errors.New("gateway unavailable")}
	ctx := context.Background()
	user := env.seedUser(t, true)
	p := env.seedProduct(t, "Shirt", 100, 5)

	line, err := env.cartService().AddToCart(ctx, user.ID, services.AddToCartInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = env.checkoutService(gw).Checkout(ctx, user.ID, []services.CheckoutItem{{ID: line.ID, ProductID: p.ID, Quantity: 3}})
	require.ErrorIs(t, err, apperrors.ErrPayment)

	// Back to the cart's own hold.
	got := env.product(t, p.ID)
	assert.Equal(t, 4, got.CountInStock)
	assert.Equal(t, 1, got.ReservedQuantity)

	back := env.line(t, line.ID)
	assert.Equal(t, models.ReservationUnreserved, back.State())
	assert.Equal(t, 1, back.HeldQuantity)
}

func TestCheckoutService_GatewayTimeoutReleasesHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, true)
	p := env.seedProduct(t, "Shirt", 100, 5)

	svc := services.NewCheckoutService(env.db, env.ledger, env.reservations, env.products, env.users, env.attempts,
		&stallingGateway{}, services.CheckoutConfig{HoldTTL: 50 * time.Millisecond}, nil)

	start := time.Now()
	_, err := svc.Checkout(ctx, user.ID, []services.CheckoutItem{{ProductID: p.ID, Quantity: 2}})
	require.ErrorIs(t, err, apperrors.ErrPayment)
	assert.Less(t, time.Since(start), 5*time.Second)

	got := env.product(t, p.ID)
	assert.Equal(t, 5, got.CountInStock)
	assert.Equal(t, 0, got.ReservedQuantity)

	lines, err := env.reservations.ListByUser(env.db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCheckoutService_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	svc := env.checkoutService(&fakeGateway{})
	ctx := context.Background()
	p := env.seedProduct(t, "Shirt", 100, 5)
	noAddress := env.seedUser(t, false)
	user := env.seedUser(t, true)

	_, err := svc.Checkout(ctx, noAddress.ID, []services.CheckoutItem{{ProductID: p.ID, Quantity: 1}})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Checkout(ctx, user.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Checkout(ctx, user.ID, []services.CheckoutItem{{ProductID: p.ID, Quantity: 0}})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Checkout(ctx, "nobody", []services.CheckoutItem{{ProductID: p.ID, Quantity: 1}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Checkout(ctx, user.ID, []services.CheckoutItem{{ProductID: "missing", Quantity: 1}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.Equal(t, 5, env.product(t, p.ID).CountInStock)
}
