package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tokoshop/internal/middleware"
	"tokoshop/internal/services"
)

// CartHandler handles HTTP requests for the user's cart.
type CartHandler struct {
	service  *services.CartService
	validate *validator.Validate
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(service *services.CartService) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the cart routes on an authenticated router.
func (h *CartHandler) RegisterRoutes(router fiber.Router) {
	cartRoutes := router.Group("/cart")
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Post("/", h.HandleAddToCart)
	cartRoutes.Get("/count", h.HandleCartCount)
	cartRoutes.Get("/:id", h.HandleGetCartLine)
	cartRoutes.Put("/:id", h.HandleModifyQuantity)
	cartRoutes.Delete("/:id", h.HandleRemoveFromCart)
}

func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	lines, err := h.service.GetCart(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "get cart", err)
	}
	return c.JSON(lines)
}

// HandleAddToCart puts a product variant in the cart and holds its stock.
func (h *CartHandler) HandleAddToCart(c *fiber.Ctx) error {
	var in services.AddToCartInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	if err := h.validate.Struct(in); err != nil {
		return validationFailed(c, err)
	}

	line, err := h.service.AddToCart(c.UserContext(), middleware.UserID(c), in)
	if err != nil {
		return respondError(c, "add to cart", err)
	}
	return c.Status(fiber.StatusCreated).JSON(line)
}

func (h *CartHandler) HandleCartCount(c *fiber.Ctx) error {
	n, err := h.service.CartCount(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "count cart", err)
	}
	return c.JSON(fiber.Map{"count": n})
}

func (h *CartHandler) HandleGetCartLine(c *fiber.Ctx) error {
	line, err := h.service.GetCartLine(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, "get cart line", err)
	}
	return c.JSON(line)
}

// HandleModifyQuantity sets the quantity of a line that is not held for checkout.
func (h *CartHandler) HandleModifyQuantity(c *fiber.Ctx) error {
	var body struct {
		Quantity int `json:"quantity" validate:"required,min=1"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody(c, err)
	}
	if err := h.validate.Struct(body); err != nil {
		return validationFailed(c, err)
	}

	line, err := h.service.ModifyQuantity(c.UserContext(), middleware.UserID(c), c.Params("id"), body.Quantity)
	if err != nil {
		return respondError(c, "modify cart line", err)
	}
	return c.JSON(line)
}

func (h *CartHandler) HandleRemoveFromCart(c *fiber.Ctx) error {
	if err := h.service.RemoveFromCart(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return respondError(c, "remove cart line", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
