package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(method, path string, status int, durationMS int64, ip, userAgent string) error
}

// AuditMiddleware records every request with its outcome and timing.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		// Execute the handler
		err := c.Next()

		status := c.Response().StatusCode()
		durationMS := time.Since(start).Milliseconds()

		// Write audit log asynchronously; everything it needs was captured above
		go func() {
			if writeErr := writer.WriteAudit(method, path, status, durationMS, ip, userAgent); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}
