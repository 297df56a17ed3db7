package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/middleware"
	"tokoshop/internal/payment"
	"tokoshop/internal/services"
)

// CheckoutHandler handles checkout and the gateway's payment callbacks.
type CheckoutHandler struct {
	checkout *services.CheckoutService
	webhooks *services.WebhookProcessor
	validate *validator.Validate
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout *services.CheckoutService, webhooks *services.WebhookProcessor) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		webhooks: webhooks,
		validate: validator.New(),
	}
}

// RegisterWebhook registers the gateway callback. It is signed by the
// gateway, not by a user token, so it must be registered before any
// authentication middleware on the same prefix.
func (h *CheckoutHandler) RegisterWebhook(router fiber.Router) {
	router.Post("/checkout/webhook", h.HandleWebhook)
}

// RegisterRoutes registers the checkout routes on an authenticated router.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	checkoutRoutes := router.Group("/checkout")
	checkoutRoutes.Post("/", h.HandleCheckout)
	checkoutRoutes.Get("/verify", h.HandleVerify)
}

type checkoutRequest struct {
	CartItems []services.CheckoutItem `json:"cartItems" validate:"required,min=1,dive"`
}

// HandleCheckout holds stock for the submitted cart and returns the gateway's
// payment page.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	res, err := h.checkout.Checkout(c.UserContext(), middleware.UserID(c), req.CartItems)
	if err != nil {
		return respondError(c, "checkout", err)
	}
	return c.JSON(res)
}

// HandleWebhook verifies and applies a gateway event. Duplicates and events
// we do not act on are acknowledged so the gateway stops redelivering them.
// The gateway only sees 401 for a bad signature and 500 for anything else
// that went wrong.
func (h *CheckoutHandler) HandleWebhook(c *fiber.Ctx) error {
	outcome, err := h.webhooks.Handle(c.UserContext(), c.Body(), c.Get(payment.SignatureHeader))
	if err != nil {
		if apperrors.HTTPStatus(err) == fiber.StatusUnauthorized {
			log.Printf("[webhook] rejected delivery from %s: %v", c.IP(), err)
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		log.Printf("[webhook] delivery failed (%d): %v", apperrors.HTTPStatus(err), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Webhook processing failed",
		})
	}
	return c.JSON(fiber.Map{"status": outcome})
}

// HandleVerify reports whether the payment for ?reference= went through.
func (h *CheckoutHandler) HandleVerify(c *fiber.Ctx) error {
	reference := c.Query("reference")
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "reference is required",
		})
	}

	ok, status, err := h.checkout.VerifyPayment(c.UserContext(), reference)
	if err != nil {
		log.Printf("[checkout] verify reference=%s: %v", reference, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Payment verification failed",
		})
	}
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  status,
			"message": "Payment not successful",
		})
	}
	return c.JSON(fiber.Map{
		"status":  status,
		"message": "Payment verified successfully",
	})
}
