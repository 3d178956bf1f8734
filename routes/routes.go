package routes

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"shejire/config"
	controller "shejire/controllers"
	"shejire/middleware"
	"shejire/utils"
)

// SetupRoutes wires every route group. Shared services are built here once
// and injected into the controllers that need them.
func SetupRoutes(app *fiber.App, db *gorm.DB, licenseService *utils.LicenseService, healthChecker *utils.HealthChecker) {
	routeLogger := log.New(os.Stdout, "ROUTES: ", log.Ldate|log.Ltime|log.Lshortfile)

	authController := controller.NewAuthController(db, log.New(os.Stdout, "AUTH: ", log.LstdFlags))
	userController := controller.NewUserController(db, log.New(os.Stdout, "USER: ", log.LstdFlags))
	adminUserController := controller.NewAdminUserController(db, log.New(os.Stdout, "ADMIN: ", log.LstdFlags))
	articleController := controller.NewArticleController(db, log.New(os.Stdout, "ARTICLE: ", log.LstdFlags))
	taxonomyController := controller.NewTaxonomyController(db, log.New(os.Stdout, "TAXONOMY: ", log.LstdFlags))
	shejireController := controller.NewShejireController(db, log.New(os.Stdout, "SHEJIRE: ", log.LstdFlags))
	licenseController := controller.NewLicenseController(db, licenseService, log.New(os.Stdout, "LICENSE: ", log.LstdFlags))
	projectController := controller.NewProjectController(db, healthChecker, log.New(os.Stdout, "PROJECT: ", log.LstdFlags))

	api := app.Group("/api", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Liveness endpoint for load balancers and deployed installations.
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"version":   config.AppConfig.AppVersion,
		})
	})

	// Auth
	api.Post("/register", authController.Register)
	api.Post("/login", authController.Login)
	api.Post("/refresh", authController.Refresh)

	authenticated := api.Group("", middleware.Protected())
	authenticated.Post("/logout", authController.Logout)
	authenticated.Get("/user", authController.Me)
	authenticated.Get("/me", userController.Me)
	authenticated.Put("/user/profile", userController.UpdateProfile)
	authenticated.Put("/user/password", userController.ChangePassword)

	// Public content
	api.Get("/categories", taxonomyController.Categories)
	api.Get("/tags", taxonomyController.Tags)
	api.Get("/articles", articleController.Index)
	api.Get("/articles/:idOrSlug", articleController.Show)

	// Shejire trees. Index and show honor visibility for anonymous viewers.
	shejire := api.Group("/shejire")
	shejire.Get("/", middleware.OptionalAuth(), shejireController.Index)
	shejire.Get("/my/trees", middleware.Protected(), shejireController.MyTrees)

	moderation := shejire.Group("/moderation", middleware.Protected(), middleware.ModeratorOnly())
	moderation.Get("/", shejireController.ModerationIndex)
	moderation.Post("/:id/approve", shejireController.Approve)
	moderation.Post("/:id/reject", shejireController.Reject)

	shejire.Get("/:id", middleware.OptionalAuth(), shejireController.Show)

	shejireAuth := shejire.Group("", middleware.Protected())
	shejireAuth.Post("/", shejireController.Store)
	shejireAuth.Put("/:id", shejireController.Update)
	shejireAuth.Delete("/:id", shejireController.Destroy)
	shejireAuth.Post("/:id/nodes", shejireController.StoreNode)
	shejireAuth.Put("/:id/nodes/:nodeId", shejireController.UpdateNode)
	shejireAuth.Delete("/:id/nodes/:nodeId", shejireController.DestroyNode)

	// Public license endpoints, rate limited since deployed installations
	// poll them unauthenticated. The limiter is per-route so the admin
	// registry below is not throttled at the public rate.
	licenseLimiter := limiter.New(limiter.Config{
		Max:        config.AppConfig.RateLimitPublicLicense,
		Expiration: time.Minute,
	})
	license := api.Group("/license")
	license.Post("/activate", licenseLimiter, licenseController.Activate)
	license.Get("/check", licenseLimiter, licenseController.Check)
	license.Get("/info", licenseLimiter, licenseController.Info)
	license.Get("/feature/:feature", licenseLimiter, licenseController.CheckFeature)

	// License registry, admin gated.
	licenseAdmin := license.Group("", middleware.Protected(), middleware.AdminOnly())
	licenseAdmin.Get("/list", licenseController.Index)
	licenseAdmin.Get("/statistics", licenseController.Statistics)
	licenseAdmin.Post("/create", licenseController.Store)
	licenseAdmin.Get("/:id", licenseController.Show)
	licenseAdmin.Put("/:id", licenseController.Update)
	licenseAdmin.Delete("/:id", licenseController.Destroy)
	licenseAdmin.Post("/:id/toggle-status", licenseController.ToggleStatus)
	licenseAdmin.Put("/:id/features", licenseController.UpdateFeatures)

	// Public project registration, same rate limit reasoning.
	api.Post("/projects/register", limiter.New(limiter.Config{
		Max:        config.AppConfig.RateLimitPublicLicense,
		Expiration: time.Minute,
	}), projectController.Register)

	// Admin surface
	admin := api.Group("/admin", middleware.Protected(), middleware.AdminOnly())

	adminArticles := admin.Group("/articles")
	adminArticles.Get("/", articleController.AdminIndex)
	adminArticles.Get("/:id", articleController.AdminShow)
	adminArticles.Post("/", articleController.Store)
	adminArticles.Put("/:id", articleController.Update)
	adminArticles.Delete("/:id", articleController.Destroy)

	admin.Post("/tags", taxonomyController.StoreTag)
	admin.Delete("/tags/:id", taxonomyController.DestroyTag)

	// Super admin surface
	adminUsers := api.Group("/admin/users", middleware.Protected(), middleware.SuperAdminOnly())
	adminUsers.Get("/", adminUserController.Index)
	adminUsers.Get("/:id", adminUserController.Show)
	adminUsers.Post("/", adminUserController.Store)
	adminUsers.Put("/:id", adminUserController.Update)
	adminUsers.Delete("/:id", adminUserController.Destroy)
	adminUsers.Put("/:id/password", adminUserController.ChangePassword)

	projects := api.Group("/projects", middleware.Protected(), middleware.SuperAdminOnly())
	projects.Get("/", projectController.Index)
	projects.Get("/statistics", projectController.Statistics)
	projects.Post("/check-all-health", projectController.CheckAllHealth)
	projects.Post("/", projectController.Store)
	projects.Get("/:id", projectController.Show)
	projects.Put("/:id", projectController.Update)
	projects.Delete("/:id", projectController.Destroy)
	projects.Post("/:id/check-health", projectController.CheckHealth)

	api.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	})

	routeLogger.Println("Routes initialized successfully")
}
