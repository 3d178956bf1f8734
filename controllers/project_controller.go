package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"shejire/models"
	"shejire/utils"
)

// ProjectController manages deployed installations and their health checks.
// Everything except Register sits behind the super admin gate.
type ProjectController struct {
	DB      *gorm.DB
	Checker *utils.HealthChecker
	Logger  *log.Logger
}

func NewProjectController(db *gorm.DB, checker *utils.HealthChecker, logger *log.Logger) *ProjectController {
	return &ProjectController{DB: db, Checker: checker, Logger: logger}
}

type ProjectRequest struct {
	Name                 string  `json:"name" validate:"required,max=255"`
	URL                  string  `json:"url" validate:"required,url,max=2048"`
	LicenseKey           *string `json:"license_key" validate:"omitempty,max=64"`
	ServerIP             *string `json:"server_ip" validate:"omitempty,ip"`
	ServerUser           *string `json:"server_user" validate:"omitempty,max=64"`
	SSHKey               *string `json:"ssh_key"`
	Status               string  `json:"status" validate:"omitempty,oneof=active inactive error maintenance"`
	ContactEmail         *string `json:"contact_email" validate:"omitempty,email"`
	ContactName          *string `json:"contact_name" validate:"omitempty,max=255"`
	Notes                *string `json:"notes"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

type RegisterProjectRequest struct {
	Name       string                 `json:"name" validate:"required,max=255"`
	URL        string                 `json:"url" validate:"required,url,max=2048"`
	APIKey     string                 `json:"api_key" validate:"omitempty,max=64"`
	LicenseKey *string                `json:"license_key" validate:"omitempty,max=64"`
	ServerInfo map[string]interface{} `json:"server_info"`
}

// attachLicense resolves a license key to its record ID, tolerating unknown
// keys so registration never fails on a stale key.
func (pc *ProjectController) attachLicense(project *models.DeployedProject) {
	project.LicenseID = nil
	if project.LicenseKey == nil || *project.LicenseKey == "" {
		return
	}
	var license models.License
	if err := pc.DB.Where("license_key = ?", *project.LicenseKey).First(&license).Error; err == nil {
		project.LicenseID = &license.ID
	}
}

func (pc *ProjectController) Index(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := utils.ClampPerPage(c.QueryInt("per_page", 20), 20)

	query := pc.DB.Model(&models.DeployedProject{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR url ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count projects",
		})
	}

	var projects []models.DeployedProject
	if err := query.Preload("License").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&projects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch projects",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:    projects,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (pc *ProjectController) Show(c *fiber.Ctx) error {
	var project models.DeployedProject
	if err := pc.DB.Preload("License").
		First(&project, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}
	return c.JSON(fiber.Map{
		"project": project,
	})
}

// Store creates a project with generated API credentials and runs its first
// health check right away. The secret is only returned once.
func (pc *ProjectController) Store(c *fiber.Ctx) error {
	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	status := req.Status
	if status == "" {
		status = models.ProjectStatusActive
	}
	notifications := true
	if req.NotificationsEnabled != nil {
		notifications = *req.NotificationsEnabled
	}

	secret := models.GenerateAPISecret()
	project := models.DeployedProject{
		Name:                 req.Name,
		URL:                  req.URL,
		APIKey:               models.GenerateAPIKey(),
		APISecret:            secret,
		LicenseKey:           req.LicenseKey,
		ServerIP:             req.ServerIP,
		ServerUser:           req.ServerUser,
		SSHKey:               req.SSHKey,
		Status:               status,
		ContactEmail:         req.ContactEmail,
		ContactName:          req.ContactName,
		Notes:                req.Notes,
		NotificationsEnabled: notifications,
	}
	pc.attachLicense(&project)

	if err := pc.DB.Create(&project).Error; err != nil {
		utils.LogError("project_create_failed", err, map[string]interface{}{
			"name": req.Name,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}

	report := pc.Checker.CheckHealth(&project)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Project created successfully",
		"project":    project,
		"api_secret": secret,
		"health":     report,
	})
}

func (pc *ProjectController) Update(c *fiber.Ctx) error {
	var project models.DeployedProject
	if err := pc.DB.First(&project, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	project.Name = req.Name
	project.URL = req.URL
	project.LicenseKey = req.LicenseKey
	project.ServerIP = req.ServerIP
	project.ServerUser = req.ServerUser
	if req.SSHKey != nil {
		project.SSHKey = req.SSHKey
	}
	if req.Status != "" {
		project.Status = req.Status
	}
	project.ContactEmail = req.ContactEmail
	project.ContactName = req.ContactName
	project.Notes = req.Notes
	if req.NotificationsEnabled != nil {
		project.NotificationsEnabled = *req.NotificationsEnabled
	}
	pc.attachLicense(&project)

	if err := pc.DB.Model(&project).
		Select("name", "url", "license_key", "license_id", "server_ip", "server_user",
			"ssh_key", "status", "contact_email", "contact_name", "notes",
			"notifications_enabled").
		Updates(&project).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update project",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Project updated successfully",
		"project": project,
	})
}

func (pc *ProjectController) Destroy(c *fiber.Ctx) error {
	var project models.DeployedProject
	if err := pc.DB.First(&project, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	if err := pc.DB.Delete(&project).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete project",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Project deleted successfully",
	})
}

func (pc *ProjectController) CheckHealth(c *fiber.Ctx) error {
	var project models.DeployedProject
	if err := pc.DB.First(&project, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	report := pc.Checker.CheckHealth(&project)

	return c.JSON(fiber.Map{
		"project": project,
		"health":  report,
	})
}

func (pc *ProjectController) CheckAllHealth(c *fiber.Ctx) error {
	results := pc.Checker.CheckAllProjects()
	return c.JSON(fiber.Map{
		"message": "Health checks completed",
		"checked": len(results),
		"results": results,
	})
}

func (pc *ProjectController) Statistics(c *fiber.Ctx) error {
	stats, err := pc.Checker.Statistics()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute statistics",
		})
	}
	return c.JSON(stats)
}

// Register lets a deployed installation announce itself. An existing record
// matched by api_key is refreshed, otherwise a new one is created keeping the
// supplied key so the installation's credentials stay stable.
func (pc *ProjectController) Register(c *fiber.Ctx) error {
	var req RegisterProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	if req.APIKey != "" {
		var project models.DeployedProject
		if err := pc.DB.Where("api_key = ?", req.APIKey).First(&project).Error; err == nil {
			project.Name = req.Name
			project.URL = req.URL
			project.LicenseKey = req.LicenseKey
			project.ServerInfo = req.ServerInfo
			pc.attachLicense(&project)
			if err := pc.DB.Model(&project).
				Select("name", "url", "license_key", "license_id", "server_info").
				Updates(&project).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to update project registration",
				})
			}
			return c.JSON(fiber.Map{
				"message": "Project registration updated",
				"api_key": project.APIKey,
			})
		}
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = models.GenerateAPIKey()
	}
	secret := models.GenerateAPISecret()
	project := models.DeployedProject{
		Name:                 req.Name,
		URL:                  req.URL,
		APIKey:               apiKey,
		APISecret:            secret,
		LicenseKey:           req.LicenseKey,
		ServerInfo:           req.ServerInfo,
		Status:               models.ProjectStatusActive,
		NotificationsEnabled: true,
	}
	pc.attachLicense(&project)

	if err := pc.DB.Create(&project).Error; err != nil {
		utils.LogError("project_register_failed", err, map[string]interface{}{
			"name": req.Name,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to register project",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Project registered successfully",
		"api_key":    project.APIKey,
		"api_secret": secret,
	})
}
