package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/database"
	"tokoshop/internal/models"
	"tokoshop/internal/payment"
	"tokoshop/internal/repositories"
	"tokoshop/internal/services"
)

type testEnv struct {
	db           *gorm.DB
	ledger       repositories.InventoryLedger
	reservations *repositories.GORMReservationRepository
	products     *repositories.GORMProductRepository
	users        *repositories.GORMUserRepository
	orders       *repositories.GORMOrderRepository
	attempts     *repositories.GORMCheckoutAttemptRepository
	failures     *repositories.GORMFailureLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, database.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testEnv{
		db:           db,
		ledger:       repositories.NewGORMInventoryLedger(),
		reservations: repositories.NewGORMReservationRepository(),
		products:     repositories.NewGORMProductRepository(),
		users:        repositories.NewGORMUserRepository(),
		orders:       repositories.NewGORMOrderRepository(),
		attempts:     repositories.NewGORMCheckoutAttemptRepository(),
		failures:     repositories.NewGORMFailureLog(),
	}
}

func (e *testEnv) cartService() *services.CartService {
	return services.NewCartService(e.db, e.ledger, e.reservations, e.products)
}

func (e *testEnv) checkoutService(gw payment.Gateway) *services.CheckoutService {
	return services.NewCheckoutService(e.db, e.ledger, e.reservations, e.products, e.users, e.attempts, gw,
		services.CheckoutConfig{HoldTTL: 15 * time.Minute, Currency: "NGN", ClientSuccessURL: "http://shop.test"}, nil)
}

func (e *testEnv) materializer(ledger repositories.InventoryLedger, maxRetries int) *services.Materializer {
	if ledger == nil {
		ledger = e.ledger
	}
	return services.NewMaterializer(e.db, ledger, e.reservations, e.products, e.users, e.orders, e.failures,
		maxRetries, time.Millisecond, nil)
}

func (e *testEnv) seedProduct(t *testing.T, name string, price int64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.NewFromInt(price), CountInStock: stock}
	require.NoError(t, e.products.Create(e.db, p))
	return p
}

func (e *testEnv) seedUser(t *testing.T, withAddress bool) *models.User {
	t.Helper()
	u := &models.User{Name: "Ada", Email: uuid.NewString()[:8] + "@shop.test"}
	if withAddress {
		u.Street, u.City, u.PostalCode, u.Country, u.Phone = "1 Marina", "Lagos", "100001", "NG", "+2348000000000"
	}
	require.NoError(t, e.users.Create(e.db, u))
	return u
}

func (e *testEnv) product(t *testing.T, id string) *models.Product {
	t.Helper()
	p, err := e.products.GetByID(e.db, id)
	require.NoError(t, err)
	return p
}

func (e *testEnv) line(t *testing.T, id string) *models.Reservation {
	t.Helper()
	l, err := e.reservations.GetByID(e.db, id)
	require.NoError(t, err)
	return l
}

// fakeGateway records payment intents instead of calling a gateway.
type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.InitializeRequest
	err      error
	status   string
}

func (g *fakeGateway) Initialize(_ context.Context, req payment.InitializeRequest) (*payment.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &payment.InitializeResult{
		AuthorizationURL: "https://pay.test/" + req.Reference,
		AccessCode:       "code",
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*payment.VerifyResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	status := g.status
	if status == "" {
		status = "success"
	}
	return &payment.VerifyResult{Status: status, Reference: reference}, nil
}

func (g *fakeGateway) last() payment.InitializeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

// stallingGateway never answers; Initialize returns only when its context
// is done.
type stallingGateway struct {
	fakeGateway
}

func (g *stallingGateway) Initialize(ctx context.Context, _ payment.InitializeRequest) (*payment.InitializeResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type sentMail struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// conflictingLedger fails the first n stock writes with a write conflict,
// as a database would when a concurrent transaction wins.
type conflictingLedger struct {
	repositories.InventoryLedger
	mu        sync.Mutex
	remaining int
	calls     int
}

func (l *conflictingLedger) fail() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.remaining > 0 {
		l.remaining--
		return apperrors.Conflict(errors.New("could not serialize access"))
	}
	return nil
}

func (l *conflictingLedger) Confirm(tx *gorm.DB, productID string, qty int) error {
	if err := l.fail(); err != nil {
		return err
	}
	return l.InventoryLedger.Confirm(tx, productID, qty)
}

func (l *conflictingLedger) DirectDecrement(tx *gorm.DB, productID string, qty int) error {
	if err := l.fail(); err != nil {
		return err
	}
	return l.InventoryLedger.DirectDecrement(tx, productID, qty)
}

// failingLedger fails every Confirm with err.
type failingLedger struct {
	repositories.InventoryLedger
	err error
}

func (l *failingLedger) Confirm(*gorm.DB, string, int) error { return l.err }

type memoryCache struct {
	mu   sync.Mutex
	refs map[string]string
}

func newMemoryCache() *memoryCache { return &memoryCache{refs: map[string]string{}} }

func (c *memoryCache) OrderFor(_ context.Context, ref string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[ref], nil
}

func (c *memoryCache) Remember(_ context.Context, ref, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.refs[ref]; !ok {
		c.refs[ref] = orderID
	}
	return nil
}
