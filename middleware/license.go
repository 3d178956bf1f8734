package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"shejire/utils"
)

// RequireLicense gates a route behind the license policy engine. The checks
// run in order: license validity against the request host, the optional
// feature flag, the user cap, then the request counter is bumped on the
// success path.
func RequireLicense(ls *utils.LicenseService, feature string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !ls.CheckLicense(c.Hostname()) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "License is invalid or expired",
				"error":   "license_invalid",
			})
		}

		if feature != "" && !ls.HasFeature(feature) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": fmt.Sprintf("Feature '%s' is not available under your license", feature),
				"error":   "feature_not_available",
			})
		}

		if !ls.CheckUserLimit() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "User limit reached",
				"error":   "user_limit_exceeded",
			})
		}

		ls.IncrementRequestCount()

		return c.Next()
	}
}
