package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const principalKey = "principal"

// TokenAuth rejects requests that do not carry the configured API token.
// An empty token disables the check.
func TokenAuth(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		var presented string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				presented = parts[1]
			}
		}

		// Fallback: ?token= query param (for SSE/EventSource which can't set headers)
		if presented == "" {
			presented = c.Query("token")
		}

		if presented == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization",
			})
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals(principalKey, "api-token")
		return c.Next()
	}
}

// Principal returns who made the request, or "anonymous".
func Principal(c fiber.Ctx) string {
	if p, ok := c.Locals(principalKey).(string); ok && p != "" {
		return p
	}
	return "anonymous"
}
