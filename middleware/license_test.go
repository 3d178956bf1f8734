package middleware_test

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shejire/config"
	"shejire/middleware"
	"shejire/models"
	"shejire/utils"
)

func newLicenseApp(t *testing.T, feature string) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })
	config.AppConfig.LicenseKey = ""

	service := utils.NewLicenseService(db, utils.NewMemoryCache(), log.New(io.Discard, "", 0))

	app := fiber.New()
	app.Post("/guarded", middleware.RequireLicense(service, feature), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app, db
}

func seedLicense(t *testing.T, db *gorm.DB, mutate func(*models.License)) *models.License {
	t.Helper()
	license := &models.License{
		LicenseKey: models.GenerateLicenseKey(),
		Type:       models.LicenseTypeEnterprise,
		Features:   []string{"shejire"},
		IsActive:   true,
	}
	if mutate != nil {
		mutate(license)
	}
	require.NoError(t, db.Create(license).Error)
	config.AppConfig.LicenseKey = license.LicenseKey
	return license
}

func guardedRequest(t *testing.T, app *fiber.App) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/guarded", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var body map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return resp.StatusCode, body
}

func TestRequireLicenseRejectsWithoutLicense(t *testing.T) {
	app, _ := newLicenseApp(t, "")

	status, body := guardedRequest(t, app)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "license_invalid", body["error"])
}

func TestRequireLicenseChecksFeature(t *testing.T) {
	app, db := newLicenseApp(t, "billing")
	seedLicense(t, db, nil)

	status, body := guardedRequest(t, app)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "feature_not_available", body["error"])
}

func TestRequireLicenseEnforcesUserLimit(t *testing.T) {
	app, db := newLicenseApp(t, "shejire")
	maxUsers := 1
	seedLicense(t, db, func(l *models.License) { l.MaxUsers = &maxUsers })

	require.NoError(t, db.Create(&models.User{
		Name:         "Seat Holder",
		Email:        "seat@example.com",
		Phone:        "70001112233",
		PasswordHash: "x",
	}).Error)

	status, body := guardedRequest(t, app)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "user_limit_exceeded", body["error"])
}

func TestRequireLicensePassesValidLicense(t *testing.T) {
	app, db := newLicenseApp(t, "shejire")
	seedLicense(t, db, nil)

	status, body := guardedRequest(t, app)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])
}
