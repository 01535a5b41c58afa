package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// StatusMapping assigns an HTTP status to every error that wraps Err.
type StatusMapping struct {
	Err  error
	Code int
}

// StatusFor resolves the status of err. Fiber errors keep their own code and
// unknown errors are 500.
func StatusFor(err error, mappings []StatusMapping) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return fiber.StatusBadRequest
	}
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return m.Code
		}
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders errors returned by handlers in the response envelope.
func ErrorHandler(mappings ...StatusMapping) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		code := StatusFor(err, mappings)
		msg := err.Error()
		if code == fiber.StatusInternalServerError {
			msg = "internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, msg))
	}
}

// ErrorHandlerMiddleware catches handler errors before they reach fiber's
// default handler.
func ErrorHandlerMiddleware(mappings ...StatusMapping) fiber.Handler {
	handle := ErrorHandler(mappings...)
	return func(ctx *fiber.Ctx) error {
		if err := ctx.Next(); err != nil {
			return handle(ctx, err)
		}
		return nil
	}
}
