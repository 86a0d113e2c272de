package handler

import (
	"errors"

	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/gofiber/fiber/v3"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, port.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, port.ErrEmptyQuery):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrProviderAuth):
		return fiber.StatusUnauthorized
	case errors.Is(err, port.ErrRateOrNetwork):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}
