package serverutils

import (
	"errors"
	"fmt"

	"burnt-beats-be/internal/admission"
	"burnt-beats-be/internal/collab"
	"burnt-beats-be/internal/jobs"

	"github.com/gofiber/fiber/v2"
)

// ApiError is a client-visible error carrying an HTTP status code.
type ApiError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ApiError) Error() string {
	return e.Message
}

func NewApiError(statusCode int, message string) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// ErrorHandlerMiddleware converts errors bubbling out of controllers into
// JSON responses. Domain errors (session not found, illegal job transition,
// admission rejected) are client-visible and recoverable, everything else is
// a 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var apiErr *ApiError
		if errors.As(err, &apiErr) {
			return ctx.Status(apiErr.StatusCode).JSON(fiber.Map{
				"success": false,
				"message": apiErr.Message,
			})
		}

		var rejected *admission.RejectedError
		if errors.As(err, &rejected) {
			retryAfter := int(rejected.RetryAfter.Seconds())
			ctx.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":             false,
				"message":             rejected.Error(),
				"retry_after_seconds": retryAfter,
			})
		}

		switch {
		case errors.Is(err, collab.ErrSessionNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		case errors.Is(err, jobs.ErrJobNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		case errors.Is(err, jobs.ErrInvalidTransition):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"message": fiberErr.Message,
			})
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}
}
