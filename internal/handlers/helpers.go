package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/filegate/backend/internal/services"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

func parseTelegramID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

// serviceError maps service and store errors onto the response envelope.
func serviceError(c *fiber.Ctx, err error, notFound, fallback string) error {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, notFound)
	case errors.Is(err, services.ErrInvalidSetting):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUpstreamUnavailable):
		return utils.Error(c, fiber.StatusBadGateway, err.Error())
	default:
		return utils.Error(c, fiber.StatusInternalServerError, fallback)
	}
}
