package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"shejire/models"
	"shejire/utils"
)

// TaxonomyController serves categories and tags. Categories are managed by
// seed data and kept read-only over the API; tags get admin CRUD.
type TaxonomyController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTaxonomyController(db *gorm.DB, logger *log.Logger) *TaxonomyController {
	return &TaxonomyController{DB: db, Logger: logger}
}

type TagRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (tc *TaxonomyController) Categories(c *fiber.Ctx) error {
	var categories []models.Category
	if err := tc.DB.Order("sort_order ASC, name ASC").Find(&categories).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch categories",
		})
	}
	return c.JSON(fiber.Map{
		"categories": categories,
	})
}

func (tc *TaxonomyController) Tags(c *fiber.Ctx) error {
	var tags []models.Tag
	if err := tc.DB.Order("name ASC").Find(&tags).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tags",
		})
	}
	return c.JSON(fiber.Map{
		"tags": tags,
	})
}

// StoreTag returns the existing tag when the derived slug already exists.
func (tc *TaxonomyController) StoreTag(c *fiber.Ctx) error {
	var req TagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	tagSlug := slug.Make(req.Name)

	var tag models.Tag
	err := tc.DB.Where("slug = ?", tagSlug).First(&tag).Error
	if err == nil {
		return c.JSON(fiber.Map{
			"message": "Tag already exists",
			"tag":     tag,
		})
	}

	tag = models.Tag{Name: req.Name, Slug: tagSlug}
	if err := tc.DB.Create(&tag).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create tag",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Tag created successfully",
		"tag":     tag,
	})
}

func (tc *TaxonomyController) DestroyTag(c *fiber.Ctx) error {
	var tag models.Tag
	if err := tc.DB.First(&tag, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tag not found",
		})
	}

	err := tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&tag).Association("Articles").Clear(); err != nil {
			return err
		}
		return tx.Delete(&tag).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete tag",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Tag deleted successfully",
	})
}
