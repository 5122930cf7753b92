package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-contest-api/internal/utils"
)

// Contest roles carried in the token.
const (
	RoleParticipant = "participant"
	RoleProctor     = "proctor"
	RoleAdmin       = "admin"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := roleSet(roles)

	return func(c *fiber.Ctx) error {
		if !roleAllowed(allowed, c.Locals("user_role")) {
			return utils.SendErrorCode(c, fiber.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireProctor admits proctors and admins, the roles allowed to see other participants' data.
func RequireProctor() fiber.Handler {
	return RequireRole(RoleProctor, RoleAdmin)
}

func roleSet(roles []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return allowed
}

func roleAllowed(allowed map[string]struct{}, value interface{}) bool {
	_, ok := allowed[normalizeRoleValue(value)]
	return ok
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
