package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"shejire/config"
	"shejire/models"
	"shejire/utils"
)

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		return "", false
	}
	return tokenParts[1], true
}

func loadUser(token string) (*models.User, error) {
	claims, err := utils.ParseJWTToken(token)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := config.DB.First(&user, claims.UserID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Protected requires a valid Bearer token and puts the user on the context.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}

		user, err := loadUser(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user", user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

// OptionalAuth sets the user when a valid Bearer token is supplied and
// continues anonymously otherwise.
func OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := bearerToken(c); ok {
			if user, err := loadUser(token); err == nil {
				c.Locals("user", user)
				c.Locals("userID", user.ID)
			}
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user from the context, or nil for
// anonymous requests.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
