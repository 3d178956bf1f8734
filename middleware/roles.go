package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// AdminOnly allows admins and super admins; runs after Protected.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if !user.IsAdminRole() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Admin rights required",
				"error":   "forbidden",
			})
		}
		return c.Next()
	}
}

// SuperAdminOnly allows super admins; runs after Protected.
func SuperAdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if !user.IsSuperAdminRole() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Super admin rights required",
				"error":   "forbidden",
			})
		}
		return c.Next()
	}
}

// ModeratorOnly allows moderators; runs after Protected.
func ModeratorOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if !user.IsModeratorRole() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Moderator rights required",
				"error":   "forbidden",
			})
		}
		return c.Next()
	}
}
