// middleware/request_context.go
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"gatekeeper-api/utils"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDLocal  = "request_id"
)

// RequestContextMiddleware tags every request with an ID, echoed in the response
// header, and writes one access log line when the handler returns.
func RequestContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Locals(requestIDLocal, id)
		c.Set(RequestIDHeader, id)

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app's error handler pick the status before we log it.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		utils.Log.Infow("🌐 [HTTP] request",
			"request_id", id,
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return nil
	}
}

// RequestID returns the ID assigned by RequestContextMiddleware, or "".
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDLocal).(string)
	return id
}
