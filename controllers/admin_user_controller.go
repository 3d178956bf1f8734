package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"shejire/models"
	"shejire/utils"
)

// AdminUserController manages the user directory for admins. Role flags can
// only be granted or revoked by a super admin, enforced at the route level.
type AdminUserController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAdminUserController(db *gorm.DB, logger *log.Logger) *AdminUserController {
	return &AdminUserController{DB: db, Logger: logger}
}

type AdminCreateUserRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Phone        string `json:"phone" validate:"required,max=20"`
	Password     string `json:"password" validate:"required,min=8"`
	IsAdmin      bool   `json:"is_admin"`
	IsSuperAdmin bool   `json:"is_super_admin"`
	IsModerator  bool   `json:"is_moderator"`
}

type AdminUpdateUserRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Phone        string `json:"phone" validate:"required,max=20"`
	IsAdmin      *bool  `json:"is_admin"`
	IsSuperAdmin *bool  `json:"is_super_admin"`
	IsModerator  *bool  `json:"is_moderator"`
}

type AdminChangePasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func (ac *AdminUserController) Index(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := utils.ClampPerPage(c.QueryInt("per_page", 20), 20)

	query := ac.DB.Model(&models.User{})
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ? OR phone ILIKE ?", like, like, like)
	}
	if role := c.Query("role"); role != "" {
		switch role {
		case "admin":
			query = query.Where("is_admin = ?", true)
		case "super_admin":
			query = query.Where("is_super_admin = ?", true)
		case "moderator":
			query = query.Where("is_moderator = ?", true)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count users",
		})
	}

	var users []models.User
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch users",
		})
	}

	superAdmins, err := models.CountSuperAdmins(ac.DB)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count super admins",
		})
	}

	return c.JSON(fiber.Map{
		"data":               users,
		"total":              total,
		"page":               page,
		"per_page":           perPage,
		"total_super_admins": superAdmins,
	})
}

func (ac *AdminUserController) Show(c *fiber.Ctx) error {
	var user models.User
	if err := ac.DB.First(&user, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	return c.JSON(fiber.Map{
		"user": user,
	})
}

func (ac *AdminUserController) Store(c *fiber.Ctx) error {
	var req AdminCreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	phone, err := utils.NormalizePhone(req.Phone)
	if err != nil {
		return utils.ValidationErrorResponse(c, utils.ValidationErrors{
			"phone": {"phone number must contain at least 10 digits"},
		})
	}

	var existing models.User
	if err := ac.DB.Where("email = ? OR phone = ?", req.Email, phone).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email or phone already registered",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        phone,
		PasswordHash: string(hashedPassword),
		IsAdmin:      req.IsAdmin,
		IsSuperAdmin: req.IsSuperAdmin,
		IsModerator:  req.IsModerator,
	}
	if err := ac.DB.Create(&user).Error; err != nil {
		utils.LogError("admin_user_create_failed", err, map[string]interface{}{
			"email": req.Email,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create user",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

func (ac *AdminUserController) Update(c *fiber.Ctx) error {
	var user models.User
	if err := ac.DB.First(&user, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var req AdminUpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	phone, err := utils.NormalizePhone(req.Phone)
	if err != nil {
		return utils.ValidationErrorResponse(c, utils.ValidationErrors{
			"phone": {"phone number must contain at least 10 digits"},
		})
	}

	var conflict models.User
	if err := ac.DB.Where("(email = ? OR phone = ?) AND id <> ?", req.Email, phone, user.ID).First(&conflict).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email or phone already in use",
		})
	}

	// Revoking the last super admin would lock everyone out of role management.
	if req.IsSuperAdmin != nil && !*req.IsSuperAdmin && user.IsSuperAdmin {
		superAdmins, err := models.CountSuperAdmins(ac.DB)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to count super admins",
			})
		}
		if superAdmins <= 1 {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Cannot revoke the last super admin",
			})
		}
	}

	user.Name = req.Name
	user.Email = req.Email
	user.Phone = phone
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if req.IsSuperAdmin != nil {
		user.IsSuperAdmin = *req.IsSuperAdmin
	}
	if req.IsModerator != nil {
		user.IsModerator = *req.IsModerator
	}
	if err := ac.DB.Model(&user).
		Select("name", "email", "phone", "is_admin", "is_super_admin", "is_moderator").
		Updates(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update user",
		})
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    user,
	})
}

func (ac *AdminUserController) Destroy(c *fiber.Ctx) error {
	var user models.User
	if err := ac.DB.First(&user, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	if err := models.DeleteUser(ac.DB, &user); err != nil {
		if errors.Is(err, models.ErrLastSuperAdmin) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Cannot delete the last super admin",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete user",
		})
	}

	return c.JSON(fiber.Map{
		"message": "User deleted successfully",
	})
}

func (ac *AdminUserController) ChangePassword(c *fiber.Ctx) error {
	var user models.User
	if err := ac.DB.First(&user, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var req AdminChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}

	if err := ac.DB.Model(&user).Update("password_hash", string(hashedPassword)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to change password",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Password changed successfully",
	})
}
