package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error as {"error": msg}, adding field details for
// validation failures. Unexpected errors are logged and reported as 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid request data",
				"details": verr.Details,
			})
		}

		code := fiber.StatusInternalServerError
		msg := "internal server error"
		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			code = ferr.Code
			msg = ferr.Message
		} else {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.String("request_id", requestID), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
