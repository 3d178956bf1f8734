package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Category{},
		&Tag{},
		&Article{},
		&ShejireTree{},
		&ShejireNode{},
		&License{},
		&LicenseFeature{},
		&DeployedProject{},
	)
}

// EnsureSuperAdmin creates the bootstrap super admin account when no super
// admin exists yet. It is a no-op when credentials are not configured.
func EnsureSuperAdmin(db *gorm.DB, name, email, phone, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := CountSuperAdmins(db)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		IsAdmin:      true,
		IsSuperAdmin: true,
		IsModerator:  true,
	}
	return db.Create(&user).Error
}

// SeedTrialLicense installs a 30-day trial license on first boot so a fresh
// deployment is usable before activation.
func SeedTrialLicense(db *gorm.DB) error {
	expires := time.Now().AddDate(0, 0, 30)
	maxUsers := 1
	license := License{
		LicenseKey: "TRIAL-0000-0000-0000",
		Type:       LicenseTypeTrial,
		ExpiresAt:  &expires,
		IsActive:   true,
		MaxUsers:   &maxUsers,
		Features:   []string{"basic_auth"},
	}
	return db.Where("license_key = ?", license.LicenseKey).
		FirstOrCreate(&license).Error
}
