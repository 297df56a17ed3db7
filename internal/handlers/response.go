package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tokoshop/internal/apperrors"
)

// respondError maps a service error to its status code and a client-safe
// message. Internal details stay in the log.
func respondError(c *fiber.Ctx, op string, err error) error {
	status := apperrors.HTTPStatus(err)

	var stock *apperrors.InsufficientStockError
	message := err.Error()
	switch {
	case errors.As(err, &stock):
		message = stock.Error()
	case status >= fiber.StatusInternalServerError:
		log.Printf("[http] %s: %v", op, err)
		message = "Something went wrong, please try again"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": message,
	})
}

// validationFailed reports struct validation errors field by field.
func validationFailed(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}
