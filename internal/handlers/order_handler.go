package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tokoshop/internal/middleware"
	"tokoshop/internal/models"
	"tokoshop/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the order routes on an authenticated router.
// Orders are created by payment confirmation only, so there is no POST.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Patch("/:id/status", middleware.AdminRequired(), h.HandleUpdateOrderStatus)
}

// HandleGetOrders returns the caller's orders grouped by fulfilment state.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.GetUserOrders(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "list orders", err)
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrderByID(c.UserContext(), c.Params("id"), middleware.UserID(c), middleware.IsAdmin(c))
	if err != nil {
		return respondError(c, "get order", err)
	}
	return c.JSON(order)
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var updateData struct {
		Status string `json:"status" validate:"required"`
	}
	if err := c.BodyParser(&updateData); err != nil {
		return badBody(c, err)
	}
	if err := h.validate.Struct(updateData); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), c.Params("id"), models.OrderStatus(updateData.Status))
	if err != nil {
		return respondError(c, "update order status", err)
	}
	return c.JSON(fiber.Map{
		"message": "Order status updated to " + string(order.Status),
		"order":   order,
	})
}
