package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-points-api/internal/utils"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// RequireRole admits authenticated callers holding one of the roles. This is
// a coarse route gate; per-entity authorization stays with the policy table.
func RequireRole(roles ...workflow.Role) fiber.Handler {
	allowed := make(map[workflow.Role]struct{}, len(roles))
	for _, role := range roles {
		if normalized := workflow.ParseRole(string(role)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		actor := ActorFromContext(c)
		if actor.ID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if _, ok := allowed[actor.Role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireIdentity admits any authenticated caller.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ActorFromContext(c).ID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		return c.Next()
	}
}
