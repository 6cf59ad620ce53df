package middleware

import (
	"crypto/subtle"

	"cardvault-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	ServiceKeyHeader = "X-Service-Key"
	AdminKeyHeader   = "X-Admin-Key"
)

// RequireServiceKey guards the action surface with a shared secret. Callers
// are authenticated upstream; the key only proves the call came from the
// platform. An empty key disables the check (local development).
func RequireServiceKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		got := c.Get(ServiceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// RequireAdminKey guards operator routes. The plain key arrives in
// X-Admin-Key and is checked against a bcrypt hash; no hash configured
// means the routes are closed.
func RequireAdminKey(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !AdminKeyMatches(hash, c.Get(AdminKeyHeader)) {
			return response.Error(c, "Forbidden", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}

// AdminKeyMatches reports whether key matches the bcrypt hash.
func AdminKeyMatches(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
