package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/database"
	"tokoshop/internal/handlers"
	"tokoshop/internal/middleware"
	"tokoshop/internal/models"
	"tokoshop/internal/payment"
	"tokoshop/internal/repositories"
	"tokoshop/internal/services"
)

const (
	testJWTSecret  = "test_jwt_secret"
	testWebhookKey = "sk_test_webhook"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.InitializeRequest
}

func (g *fakeGateway) Initialize(_ context.Context, req payment.InitializeRequest) (*payment.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return &payment.InitializeResult{AuthorizationURL: "https://pay.test/" + req.Reference, Reference: req.Reference}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*payment.VerifyResult, error) {
	status := "success"
	if reference == "ORDER-abandoned" {
		status = "abandoned"
	}
	return &payment.VerifyResult{Status: status, Reference: reference}, nil
}

type testApp struct {
	app      *fiber.App
	db       *gorm.DB
	gateway  *fakeGateway
	webhooks *services.WebhookProcessor
}

// setupApp wires the handlers over an in-memory SQLite database.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithLedger(t, nil)
}

// setupAppWithLedger is setupApp with the ledger used by order creation
// replaced. nil keeps the real one.
func setupAppWithLedger(t *testing.T, orderLedger repositories.InventoryLedger) *testApp {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, database.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ledger := repositories.NewGORMInventoryLedger()
	reservationRepo := repositories.NewGORMReservationRepository()
	productRepo := repositories.NewGORMProductRepository()
	userRepo := repositories.NewGORMUserRepository()
	orderRepo := repositories.NewGORMOrderRepository()
	attemptRepo := repositories.NewGORMCheckoutAttemptRepository()

	if orderLedger == nil {
		orderLedger = ledger
	}

	gw := &fakeGateway{}
	materializer := services.NewMaterializer(db, orderLedger, reservationRepo, productRepo, userRepo, orderRepo,
		repositories.NewGORMFailureLog(), 1, time.Millisecond, nil)
	webhooks := services.NewWebhookProcessor(db, materializer, attemptRepo, nil, nil, nil,
		services.WebhookConfig{Secret: testWebhookKey, MaxRetries: 1, Backoff: time.Millisecond}, nil)
	checkout := services.NewCheckoutService(db, ledger, reservationRepo, productRepo, userRepo, attemptRepo, gw,
		services.CheckoutConfig{HoldTTL: 15 * time.Minute}, nil)

	cartHandler := handlers.NewCartHandler(services.NewCartService(db, ledger, reservationRepo, productRepo))
	checkoutHandler := handlers.NewCheckoutHandler(checkout, webhooks)
	orderHandler := handlers.NewOrderHandler(services.NewOrderService(db, orderRepo))

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	checkoutHandler.RegisterWebhook(apiV1)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(services.NewTokenService(testJWTSecret)))
	cartHandler.RegisterRoutes(protectedRoutes)
	checkoutHandler.RegisterRoutes(protectedRoutes)
	orderHandler.RegisterRoutes(protectedRoutes)

	return &testApp{app: app, db: db, gateway: gw, webhooks: webhooks}
}

func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"is_admin": admin,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func (ta *testApp) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (ta *testApp) seed(t *testing.T, stock int) (*models.User, *models.Product) {
	t.Helper()
	user := &models.User{Name: "Ada", Email: uuid.NewString()[:8] + "@shop.test", Street: "1 Marina", City: "Lagos"}
	require.NoError(t, repositories.NewGORMUserRepository().Create(ta.db, user))
	product := &models.Product{Name: "Test Shirt", Price: decimal.NewFromInt(1500), CountInStock: stock}
	require.NoError(t, repositories.NewGORMProductRepository().Create(ta.db, product))
	return user, product
}

func TestAuthRequired(t *testing.T) {
	ta := setupApp(t)

	resp, body := ta.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authorization header is required", body["message"])

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCartEndpoints(t *testing.T) {
	ta := setupApp(t)
	user, product := ta.seed(t, 5)
	bearer := token(t, user.ID, false)

	resp, body := ta.do(t, http.MethodPost, "/api/v1/cart", bearer, map[string]any{"productId": product.ID, "quantity": 2, "selectedSize": "M"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	lineID, _ := body["id"].(string)
	require.NotEmpty(t, lineID)

	resp, body = ta.do(t, http.MethodGet, "/api/v1/cart/count", bearer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = ta.do(t, http.MethodPut, "/api/v1/cart/"+lineID, bearer, map[string]any{"quantity": 4})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, body["quantity"])

	resp, body = ta.do(t, http.MethodPost, "/api/v1/cart", bearer, map[string]any{"productId": product.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", body["message"])

	resp, body = ta.do(t, http.MethodPost, "/api/v1/cart", bearer, map[string]any{"productId": product.ID, "quantity": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Test Shirt: Only 1 left in stock", body["message"])

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/cart/"+lineID, token(t, "someone-else", false), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodDelete, "/api/v1/cart/"+lineID, bearer, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var p models.Product
	require.NoError(t, ta.db.First(&p, "id = ?", product.ID).Error)
	assert.Equal(t, 5, p.CountInStock)
	assert.Equal(t, 0, p.ReservedQuantity)
}

func TestCheckoutWebhookAndOrders(t *testing.T) {
	ta := setupApp(t)
	user, product := ta.seed(t, 5)
	bearer := token(t, user.ID, false)

	resp, body := ta.do(t, http.MethodPost, "/api/v1/checkout", bearer, map[string]any{"cartItems": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, "/api/v1/checkout", bearer, map[string]any{
		"cartItems": []map[string]any{{"productId": product.ID, "quantity": 2, "reserved": false}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reference, _ := body["reference"].(string)
	require.NotEmpty(t, reference)
	assert.Equal(t, "https://pay.test/"+reference, body["authorization_url"])

	event, err := json.Marshal(payment.Event{
		Event: payment.EventChargeSuccess,
		Data: payment.EventData{
			Reference: reference,
			Status:    "success",
			Metadata:  ta.gateway.requests[0].Metadata,
		},
	})
	require.NoError(t, err)

	post := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/webhook", bytes.NewReader(event))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(payment.SignatureHeader, signature)
		resp, err := ta.app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusUnauthorized, post("deadbeef"))
	assert.Equal(t, http.StatusOK, post(payment.Sign(testWebhookKey, event)))
	assert.Equal(t, http.StatusOK, post(payment.Sign(testWebhookKey, event)))
	ta.webhooks.Wait()

	resp, body = ta.do(t, http.MethodGet, "/api/v1/orders", bearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])
	active, _ := body["active"].([]any)
	require.Len(t, active, 1)
	orderID, _ := active[0].(map[string]any)["id"].(string)

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/orders/"+orderID, bearer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ta.do(t, http.MethodGet, "/api/v1/orders/"+orderID, token(t, "someone-else", false), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	path := "/api/v1/orders/" + orderID + "/status"
	resp, _ = ta.do(t, http.MethodPatch, path, bearer, map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := token(t, "admin-1", true)
	resp, _ = ta.do(t, http.MethodPatch, path, admin, map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ta.do(t, http.MethodPatch, path, admin, map[string]any{"status": "processed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var p models.Product
	require.NoError(t, ta.db.First(&p, "id = ?", product.ID).Error)
	assert.Equal(t, 3, p.CountInStock)
	assert.Equal(t, 0, p.ReservedQuantity)
}

// conflictingLedger loses every stock write to a concurrent transaction.
type conflictingLedger struct {
	repositories.InventoryLedger
}

func (conflictingLedger) Confirm(*gorm.DB, string, int) error {
	return apperrors.Conflict(errors.New("could not serialize access"))
}

func (conflictingLedger) DirectDecrement(*gorm.DB, string, int) error {
	return apperrors.Conflict(errors.New("could not serialize access"))
}

func TestWebhookFailureIsServerError(t *testing.T) {
	ta := setupAppWithLedger(t, conflictingLedger{repositories.NewGORMInventoryLedger()})
	user, product := ta.seed(t, 5)

	resp, body := ta.do(t, http.MethodPost, "/api/v1/checkout", token(t, user.ID, false), map[string]any{
		"cartItems": []map[string]any{{"productId": product.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reference, _ := body["reference"].(string)

	event, err := json.Marshal(payment.Event{
		Event: payment.EventChargeSuccess,
		Data: payment.EventData{
			Reference: reference,
			Status:    "success",
			Metadata:  ta.gateway.requests[0].Metadata,
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/webhook", bytes.NewReader(event))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.SignatureHeader, payment.Sign(testWebhookKey, event))
	webhookResp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, webhookResp.StatusCode)

	resp, body = ta.do(t, http.MethodGet, "/api/v1/orders", token(t, user.ID, false), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["total"])

	// The hold taken at checkout is still in place for a later delivery.
	var p models.Product
	require.NoError(t, ta.db.First(&p, "id = ?", product.ID).Error)
	assert.Equal(t, 3, p.CountInStock)
	assert.Equal(t, 2, p.ReservedQuantity)
}

func TestVerifyPayment(t *testing.T) {
	ta := setupApp(t)
	bearer := token(t, "u1", false)

	resp, _ := ta.do(t, http.MethodGet, "/api/v1/checkout/verify", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ta.do(t, http.MethodGet, "/api/v1/checkout/verify?reference=ORDER-1", bearer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/checkout/verify?reference=ORDER-abandoned", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
