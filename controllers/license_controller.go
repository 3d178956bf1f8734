package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"shejire/models"
	"shejire/utils"
)

// LicenseController exposes the public activation and status endpoints used
// by deployed installations, plus the super admin license registry.
type LicenseController struct {
	DB      *gorm.DB
	Service *utils.LicenseService
	Logger  *log.Logger
}

func NewLicenseController(db *gorm.DB, service *utils.LicenseService, logger *log.Logger) *LicenseController {
	return &LicenseController{DB: db, Service: service, Logger: logger}
}

type ActivateLicenseRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=64"`
	Domain     string `json:"domain" validate:"required,max=255"`
}

type LicenseRequest struct {
	LicenseKey          string                        `json:"license_key" validate:"omitempty,max=64"`
	Domain              *string                       `json:"domain" validate:"omitempty,max=255"`
	Type                string                        `json:"type" validate:"omitempty,oneof=trial basic premium enterprise"`
	Features            []string                      `json:"features"`
	ExpiresAt           *time.Time                    `json:"expires_at"`
	IsActive            *bool                         `json:"is_active"`
	MaxUsers            *int                          `json:"max_users" validate:"omitempty,gte=1"`
	MaxRequestsPerMonth *int                          `json:"max_requests_per_month" validate:"omitempty,gte=1"`
	CustomerEmail       *string                       `json:"customer_email" validate:"omitempty,email"`
	CustomerName        *string                       `json:"customer_name" validate:"omitempty,max=255"`
	Notes               *string                       `json:"notes"`
	FeatureList         map[string]utils.FeatureInput `json:"feature_list"`
}

type UpdateFeaturesRequest struct {
	Features    []string                      `json:"features"`
	FeatureList map[string]utils.FeatureInput `json:"feature_list"`
}

// Activate binds this installation to a license key.
func (lc *LicenseController) Activate(c *fiber.Ctx) error {
	var req ActivateLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	license, err := lc.Service.Activate(req.LicenseKey, req.Domain)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrLicenseNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "License key not found",
			})
		case errors.Is(err, models.ErrLicenseInvalid):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "License is inactive or expired",
			})
		case errors.Is(err, models.ErrDomainMismatch):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "License is bound to a different domain",
			})
		default:
			utils.LogError("license_activation_failed", err, map[string]interface{}{
				"license_key": req.LicenseKey,
			})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to activate license",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "License activated successfully",
		"license": license,
	})
}

// Check reports whether the current license is valid for this host. Deployed
// installations poll it, so the shape stays minimal.
func (lc *LicenseController) Check(c *fiber.Ctx) error {
	valid := lc.Service.CheckLicense(c.Hostname())
	return c.JSON(fiber.Map{
		"valid": valid,
	})
}

// Info returns the current license without customer contact details.
func (lc *LicenseController) Info(c *fiber.Ctx) error {
	license := lc.Service.GetCurrentLicense()
	if license == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No license configured",
		})
	}

	features := make([]string, 0, len(license.EffectiveFeatures()))
	for key := range license.EffectiveFeatures() {
		features = append(features, key)
	}

	return c.JSON(fiber.Map{
		"license_key": license.LicenseKey,
		"type":        license.Type,
		"valid":       license.IsValid(),
		"expires_at":  license.ExpiresAt,
		"features":    features,
	})
}

func (lc *LicenseController) CheckFeature(c *fiber.Ctx) error {
	feature := c.Params("feature")
	return c.JSON(fiber.Map{
		"feature":   feature,
		"available": lc.Service.HasFeature(feature),
	})
}

func (lc *LicenseController) Index(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := utils.ClampPerPage(c.QueryInt("per_page", 20), 20)

	query := lc.DB.Model(&models.License{})
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("license_key ILIKE ? OR customer_email ILIKE ? OR customer_name ILIKE ?",
			like, like, like)
	}
	if licenseType := c.Query("type"); licenseType != "" {
		query = query.Where("type = ?", licenseType)
	}
	switch c.Query("status") {
	case "active":
		query = query.Where("is_active = ?", true)
	case "inactive":
		query = query.Where("is_active = ?", false)
	case "expired":
		query = query.Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count licenses",
		})
	}

	var licenses []models.License
	if err := query.Preload("LicenseFeatures").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&licenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch licenses",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:    licenses,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (lc *LicenseController) Statistics(c *fiber.Ctx) error {
	var total, active, expired int64
	if err := lc.DB.Model(&models.License{}).Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute statistics",
		})
	}
	lc.DB.Model(&models.License{}).
		Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, time.Now()).
		Count(&active)
	lc.DB.Model(&models.License{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now()).
		Count(&expired)

	byType := map[string]int64{}
	rows := []struct {
		Type  string
		Count int64
	}{}
	if err := lc.DB.Model(&models.License{}).
		Select("type, COUNT(*) as count").
		Group("type").
		Scan(&rows).Error; err == nil {
		for _, row := range rows {
			byType[row.Type] = row.Count
		}
	}

	return c.JSON(fiber.Map{
		"total":   total,
		"active":  active,
		"expired": expired,
		"by_type": byType,
	})
}

func (lc *LicenseController) Store(c *fiber.Ctx) error {
	var req LicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	if req.LicenseKey != "" {
		var existing models.License
		if err := lc.DB.Where("license_key = ?", req.LicenseKey).First(&existing).Error; err == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "License key already exists",
			})
		}
	}

	license, err := lc.Service.CreateLicense(utils.CreateLicenseInput{
		LicenseKey:          req.LicenseKey,
		Domain:              req.Domain,
		Type:                req.Type,
		Features:            req.Features,
		ExpiresAt:           req.ExpiresAt,
		IsActive:            req.IsActive,
		MaxUsers:            req.MaxUsers,
		MaxRequestsPerMonth: req.MaxRequestsPerMonth,
		CustomerEmail:       req.CustomerEmail,
		CustomerName:        req.CustomerName,
		Notes:               req.Notes,
		FeatureList:         req.FeatureList,
	})
	if err != nil {
		utils.LogError("license_create_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create license",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "License created successfully",
		"license": license,
	})
}

func (lc *LicenseController) Show(c *fiber.Ctx) error {
	var license models.License
	if err := lc.DB.Preload("LicenseFeatures").
		First(&license, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "License not found",
		})
	}
	return c.JSON(fiber.Map{
		"license": license,
	})
}

func (lc *LicenseController) Update(c *fiber.Ctx) error {
	var license models.License
	if err := lc.DB.First(&license, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "License not found",
		})
	}

	var req LicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	// The key itself is immutable; deployed installations reference it.
	license.Domain = req.Domain
	if req.Type != "" {
		license.Type = req.Type
	}
	if req.Features != nil {
		license.Features = req.Features
	}
	license.ExpiresAt = req.ExpiresAt
	if req.IsActive != nil {
		license.IsActive = *req.IsActive
	}
	license.MaxUsers = req.MaxUsers
	license.MaxRequestsPerMonth = req.MaxRequestsPerMonth
	license.CustomerEmail = req.CustomerEmail
	license.CustomerName = req.CustomerName
	license.Notes = req.Notes

	if err := lc.DB.Model(&license).
		Select("domain", "type", "features", "expires_at", "is_active",
			"max_users", "max_requests_per_month",
			"customer_email", "customer_name", "notes").
		Updates(&license).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update license",
		})
	}
	lc.Service.InvalidateCache(license.LicenseKey)

	return c.JSON(fiber.Map{
		"message": "License updated successfully",
		"license": license,
	})
}

func (lc *LicenseController) Destroy(c *fiber.Ctx) error {
	err := lc.Service.DeleteLicense(utils.ParseUint(c.Params("id")))
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "License not found",
			})
		case errors.Is(err, models.ErrCurrentLicense):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Cannot delete the license currently in use",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete license",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "License deleted successfully",
	})
}

func (lc *LicenseController) ToggleStatus(c *fiber.Ctx) error {
	var license models.License
	if err := lc.DB.First(&license, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "License not found",
		})
	}

	license.IsActive = !license.IsActive
	if err := lc.DB.Model(&license).Update("is_active", license.IsActive).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to toggle license status",
		})
	}
	lc.Service.InvalidateCache(license.LicenseKey)

	return c.JSON(fiber.Map{
		"message": "License status updated",
		"license": license,
	})
}

// UpdateFeatures rewrites both the JSON feature list and the feature rows.
func (lc *LicenseController) UpdateFeatures(c *fiber.Ctx) error {
	var license models.License
	if err := lc.DB.First(&license, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "License not found",
		})
	}

	var req UpdateFeaturesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	err := lc.DB.Transaction(func(tx *gorm.DB) error {
		if req.Features != nil {
			license.Features = req.Features
			if err := tx.Model(&license).Update("features", license.Features).Error; err != nil {
				return err
			}
		}
		if req.FeatureList != nil {
			if err := tx.Where("license_id = ?", license.ID).
				Delete(&models.LicenseFeature{}).Error; err != nil {
				return err
			}
			for featureKey, featureData := range req.FeatureList {
				row := models.LicenseFeature{
					LicenseID:  license.ID,
					FeatureKey: featureKey,
					Enabled:    featureData.Enabled,
					Settings:   featureData.Settings,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update license features",
		})
	}
	lc.Service.InvalidateCache(license.LicenseKey)

	if err := lc.DB.Preload("LicenseFeatures").First(&license, license.ID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reload license",
		})
	}

	return c.JSON(fiber.Map{
		"message": "License features updated",
		"license": license,
	})
}
