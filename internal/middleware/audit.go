package middleware

import (
	"log/slog"
	"time"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/gofiber/fiber/v3"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(rec domain.AuditLog) error
}

// LogAuditWriter writes audit records to a structured logger.
type LogAuditWriter struct {
	Logger *slog.Logger
}

func (w LogAuditWriter) WriteAudit(rec domain.AuditLog) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("http_request",
		"principal", rec.Principal,
		"method", rec.Method,
		"path", rec.Path,
		"status", rec.Status,
		"duration_ms", rec.DurationMS,
		"ip", rec.IP,
		"user_agent", rec.UserAgent,
	)
	return nil
}

// AuditMiddleware records every request after it is handled.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		rec := domain.AuditLog{
			Method:    c.Method(),
			Path:      c.Path(),
			IP:        c.IP(),
			UserAgent: c.Get("User-Agent"),
		}

		err := c.Next()

		rec.Principal = Principal(c)
		rec.Status = c.Response().StatusCode()
		rec.DurationMS = time.Since(start).Milliseconds()
		rec.CreatedAt = start

		if writeErr := writer.WriteAudit(rec); writeErr != nil {
			slog.Error("failed to write audit log", "error", writeErr)
		}
		return err
	}
}
