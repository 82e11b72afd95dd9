package logger

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const genericErrorMessage = "Unexpected server error"

// ErrorHandler renders every error as {"error": msg}. Errors that are not
// *fiber.Error are logged and hidden behind a generic message.
func ErrorHandler(zaplog *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if errors.As(err, &e) {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
			})
		}
		zaplog.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": genericErrorMessage,
		})
	}
}
