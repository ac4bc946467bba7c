package middleware

import (
	"golang-messaging-bridge/internal/domain"

	"github.com/gofiber/fiber/v2"
)

const ownerLocal = "owner"

// OwnerFromHeaders extracts the pre-validated (ownerId, ownerRole) pair the
// upstream platform attaches to every request. The bridge does not
// authenticate internal callers itself; it only refuses requests the
// upstream forgot to tag.
func OwnerFromHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := domain.Owner{
			ID:   c.Get("X-Owner-Id"),
			Role: domain.Role(c.Get("X-Owner-Role")),
		}
		if !owner.Valid() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or invalid owner identity headers",
			})
		}
		c.Locals(ownerLocal, owner)
		return c.Next()
	}
}

// Owner returns the owner attached by OwnerFromHeaders.
func Owner(c *fiber.Ctx) domain.Owner {
	owner, _ := c.Locals(ownerLocal).(domain.Owner)
	return owner
}
