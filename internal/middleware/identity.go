package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-points-api/internal/utils"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// Identity modes accepted by Identity.
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// HeaderIdentity trusts X-User-ID and X-User-Role as set by a fronting
// gateway. Use only behind a proxy that strips these headers from clients.
func HeaderIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "X-User-ID header missing")
		}

		setIdentity(c, userID, normalizeRole(c.Get("X-User-Role")))
		return c.Next()
	}
}

// Identity selects the identity middleware for the configured mode.
func Identity(mode, secret string) fiber.Handler {
	if strings.EqualFold(strings.TrimSpace(mode), AuthModeHeader) {
		return HeaderIdentity()
	}
	return JWTProtected(secret)
}

// ActorFromContext returns the caller resolved by the identity middleware.
// The zero Actor is returned for anonymous requests.
func ActorFromContext(c *fiber.Ctx) workflow.Actor {
	actor := workflow.Actor{}
	if v, ok := c.Locals(localUserID).(string); ok {
		actor.ID = v
	}
	if v, ok := c.Locals(localUserRole).(string); ok {
		actor.Role = workflow.ParseRole(v)
	}
	return actor
}

func setIdentity(c *fiber.Ctx, userID, role string) {
	c.Locals(localUserID, userID)
	if role != "" {
		c.Locals(localUserRole, role)
	}
}
