package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"shejire/config"
	"shejire/middleware"
	"shejire/routes"
	"shejire/utils"
	"shejire/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "SHEJIRE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
			Release:     config.AppConfig.AppVersion,
		}); err != nil {
			logger.Printf("Failed to initialize Sentry: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Initialize shared services
	cache := utils.NewCache(config.AppConfig.Redis)
	licenseService := utils.NewLicenseService(config.DB, cache, log.New(os.Stdout, "LICENSE: ", log.LstdFlags))
	healthChecker := utils.NewHealthChecker(config.DB, log.New(os.Stdout, "HEALTH: ", log.LstdFlags))

	// Initialize and start health polling worker
	healthWorker := worker.NewHealthWorker(config.DB, healthChecker, log.New(os.Stdout, "HEALTH-WORKER: ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go healthWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, licenseService, healthChecker)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": config.AppConfig.AppVersion,
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
