package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware renders errors returned by handlers as JSON envelopes
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			return ctx.Status(fiber.StatusBadRequest).JSON(&Response[map[string]string]{
				Success: false,
				Code:    fiber.StatusBadRequest,
				Message: "Validation failed",
				Data:    verr.Fields,
			})
		}

		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return ctx.Status(ferr.Code).JSON(ErrorResponse(ferr.Code, ferr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
	}
}
