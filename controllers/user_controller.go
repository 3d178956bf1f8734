package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"shejire/middleware"
	"shejire/models"
	"shejire/utils"
)

type UserController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewUserController(db *gorm.DB, logger *log.Logger) *UserController {
	return &UserController{DB: db, Logger: logger}
}

type UpdateProfileRequest struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Email  string  `json:"email" validate:"required,email,max=255"`
	Phone  string  `json:"phone" validate:"required,max=20"`
	Avatar *string `json:"avatar" validate:"omitempty,max=2048"`
}

type ChangePasswordRequest struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

func (uc *UserController) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"user": middleware.CurrentUser(c),
	})
}

func (uc *UserController) UpdateProfile(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req UpdateProfileRequest
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
	if err := uc.DB.Where("email = ? AND id <> ?", req.Email, user.ID).First(&conflict).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email already in use",
		})
	}
	if err := uc.DB.Where("phone = ? AND id <> ?", phone, user.ID).First(&conflict).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Phone number already in use",
		})
	}

	user.Name = req.Name
	user.Email = req.Email
	user.Phone = phone
	user.Avatar = req.Avatar
	if err := uc.DB.Model(user).Select("name", "email", "phone", "avatar").Updates(user).Error; err != nil {
		utils.LogError("profile_update_failed", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update profile",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

func (uc *UserController) ChangePassword(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return utils.ValidationErrorResponse(c, utils.ValidationErrors{
			"current_password": {"current password is incorrect"},
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}

	if err := uc.DB.Model(user).Update("password_hash", string(hashedPassword)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to change password",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Password changed successfully",
	})
}
