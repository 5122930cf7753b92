package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-contest-api/internal/utils"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	// Roles restricts the handler to the listed roles. Empty admits any authenticated user.
	Roles []string
}

// WithAuth wraps a handler so it only runs for an authenticated user holding one of the allowed roles.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	allowed := roleSet(opts.Roles)

	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals("user_id").(uint); !ok || id == 0 {
			return utils.SendErrorCode(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		}
		if len(allowed) > 0 && !roleAllowed(allowed, c.Locals("user_role")) {
			return utils.SendErrorCode(c, fiber.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		}
		return handler(c)
	}
}
