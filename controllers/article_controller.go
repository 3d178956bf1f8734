package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"shejire/middleware"
	"shejire/models"
	"shejire/utils"
)

type ArticleController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewArticleController(db *gorm.DB, logger *log.Logger) *ArticleController {
	return &ArticleController{DB: db, Logger: logger}
}

type ArticleRequest struct {
	Title           string     `json:"title" validate:"required,max=255"`
	Slug            string     `json:"slug" validate:"omitempty,max=255"`
	Excerpt         *string    `json:"excerpt"`
	Body            string     `json:"body" validate:"required"`
	Image           *string    `json:"image" validate:"omitempty,max=2048"`
	MetaTitle       *string    `json:"meta_title"`
	MetaDescription *string    `json:"meta_description"`
	MetaKeywords    *string    `json:"meta_keywords"`
	PublishedAt     *time.Time `json:"published_at"`
	CategoryID      *uint      `json:"category_id"`
	TagIDs          []uint     `json:"tag_ids"`
}

func (ac *ArticleController) applyFilters(query *gorm.DB, c *fiber.Ctx) *gorm.DB {
	if categorySlug := c.Query("category"); categorySlug != "" {
		query = query.Joins("JOIN categories ON categories.id = articles.category_id").
			Where("categories.slug = ?", categorySlug)
	}
	if tagSlug := c.Query("tag"); tagSlug != "" {
		query = query.Joins("JOIN article_tags ON article_tags.article_id = articles.id").
			Joins("JOIN tags ON tags.id = article_tags.tag_id").
			Where("tags.slug = ?", tagSlug)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("articles.title ILIKE ? OR articles.body ILIKE ?", like, like)
	}
	return query
}

// Index lists published articles, newest first.
func (ac *ArticleController) Index(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := utils.ClampPerPage(c.QueryInt("per_page", 12), 12)

	query := ac.applyFilters(ac.DB.Model(&models.Article{}).Scopes(models.Published), c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count articles",
		})
	}

	var articles []models.Article
	if err := query.
		Preload("Category").Preload("Tags").
		Order("articles.published_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&articles).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch articles",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:    articles,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// Show resolves a published article by numeric ID or slug.
func (ac *ArticleController) Show(c *fiber.Ctx) error {
	idOrSlug := c.Params("idOrSlug")

	query := ac.DB.Scopes(models.Published).
		Preload("Author").Preload("Category").Preload("Tags")
	if id := utils.ParseUint(idOrSlug); id > 0 {
		query = query.Where("articles.id = ? OR articles.slug = ?", id, idOrSlug)
	} else {
		query = query.Where("articles.slug = ?", idOrSlug)
	}

	var article models.Article
	if err := query.First(&article).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Article not found",
		})
	}

	return c.JSON(fiber.Map{
		"article": article,
	})
}

// AdminIndex lists all articles including drafts.
func (ac *ArticleController) AdminIndex(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := utils.ClampPerPage(c.QueryInt("per_page", 20), 20)

	query := ac.applyFilters(ac.DB.Model(&models.Article{}), c)
	switch c.Query("status") {
	case "published":
		query = query.Scopes(models.Published)
	case "draft":
		query = query.Where("published_at IS NULL OR published_at > ?", time.Now())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count articles",
		})
	}

	var articles []models.Article
	if err := query.
		Preload("Author").Preload("Category").Preload("Tags").
		Order("articles.created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&articles).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch articles",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:    articles,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (ac *ArticleController) AdminShow(c *fiber.Ctx) error {
	var article models.Article
	if err := ac.DB.Preload("Author").Preload("Category").Preload("Tags").
		First(&article, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Article not found",
		})
	}
	return c.JSON(fiber.Map{
		"article": article,
	})
}

func (ac *ArticleController) resolveSlug(req *ArticleRequest, excludeID uint) (string, error) {
	candidate := req.Slug
	if candidate == "" {
		candidate = slug.Make(req.Title)
	} else {
		candidate = slug.Make(candidate)
	}

	var count int64
	query := ac.DB.Model(&models.Article{}).Where("slug = ?", candidate)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return "", utils.ValidationErrors{"slug": {"slug is already taken"}}
	}
	return candidate, nil
}

func (ac *ArticleController) loadTags(ids []uint) ([]models.Tag, error) {
	if len(ids) == 0 {
		return []models.Tag{}, nil
	}
	var tags []models.Tag
	if err := ac.DB.Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (ac *ArticleController) Store(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req ArticleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	articleSlug, err := ac.resolveSlug(&req, 0)
	if err != nil {
		if verrs, ok := err.(utils.ValidationErrors); ok {
			return utils.ValidationErrorResponse(c, verrs)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve slug",
		})
	}

	tags, err := ac.loadTags(req.TagIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load tags",
		})
	}

	article := models.Article{
		Title:           req.Title,
		Slug:            articleSlug,
		Excerpt:         req.Excerpt,
		Body:            req.Body,
		Image:           req.Image,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
		MetaKeywords:    req.MetaKeywords,
		PublishedAt:     req.PublishedAt,
		UserID:          user.ID,
		CategoryID:      req.CategoryID,
		Tags:            tags,
	}
	if err := ac.DB.Create(&article).Error; err != nil {
		utils.LogError("article_create_failed", err, map[string]interface{}{
			"title": req.Title,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create article",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Article created successfully",
		"article": article,
	})
}

func (ac *ArticleController) Update(c *fiber.Ctx) error {
	var article models.Article
	if err := ac.DB.First(&article, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Article not found",
		})
	}

	var req ArticleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	articleSlug, err := ac.resolveSlug(&req, article.ID)
	if err != nil {
		if verrs, ok := err.(utils.ValidationErrors); ok {
			return utils.ValidationErrorResponse(c, verrs)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve slug",
		})
	}

	tags, err := ac.loadTags(req.TagIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load tags",
		})
	}

	article.Title = req.Title
	article.Slug = articleSlug
	article.Excerpt = req.Excerpt
	article.Body = req.Body
	article.Image = req.Image
	article.MetaTitle = req.MetaTitle
	article.MetaDescription = req.MetaDescription
	article.MetaKeywords = req.MetaKeywords
	article.PublishedAt = req.PublishedAt
	article.CategoryID = req.CategoryID

	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&article).
			Select("title", "slug", "excerpt", "body", "image",
				"meta_title", "meta_description", "meta_keywords",
				"published_at", "category_id").
			Updates(&article).Error; err != nil {
			return err
		}
		return tx.Model(&article).Association("Tags").Replace(tags)
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update article",
		})
	}
	article.Tags = tags

	return c.JSON(fiber.Map{
		"message": "Article updated successfully",
		"article": article,
	})
}

func (ac *ArticleController) Destroy(c *fiber.Ctx) error {
	var article models.Article
	if err := ac.DB.First(&article, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Article not found",
		})
	}

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&article).Association("Tags").Clear(); err != nil {
			return err
		}
		return tx.Delete(&article).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete article",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Article deleted successfully",
	})
}
