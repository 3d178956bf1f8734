package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"shejire/config"
	"shejire/models"
)

const licenseCacheTTL = time.Hour

// LicenseService resolves and validates the current license and enforces
// feature flags, user caps and monthly request caps. The current license is
// selected by config.AppConfig.LicenseKey and cached in the injected Cache.
type LicenseService struct {
	DB     *gorm.DB
	Cache  Cache
	Logger *log.Logger
}

func NewLicenseService(db *gorm.DB, cache Cache, logger *log.Logger) *LicenseService {
	return &LicenseService{
		DB:     db,
		Cache:  cache,
		Logger: logger,
	}
}

// CreateLicenseInput carries the fields accepted when minting a license.
type CreateLicenseInput struct {
	LicenseKey          string
	Domain              *string
	Type                string
	Features            []string
	ExpiresAt           *time.Time
	IsActive            *bool
	MaxUsers            *int
	MaxRequestsPerMonth *int
	CustomerEmail       *string
	CustomerName        *string
	Notes               *string
	FeatureList         map[string]FeatureInput
}

type FeatureInput struct {
	Enabled  bool                   `json:"enabled"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

func licenseCacheKey(licenseKey string) string {
	return "license:" + licenseKey
}

func requestCountKey(licenseKey string) string {
	return "license_requests:" + licenseKey + ":month"
}

// GetCurrentLicense returns the license selected by the configured key, or
// nil when no key is configured or no record matches. It never fails hard:
// storage errors degrade to nil.
func (ls *LicenseService) GetCurrentLicense() *models.License {
	licenseKey := config.AppConfig.LicenseKey
	if licenseKey == "" {
		return nil
	}

	if raw, ok := ls.Cache.Get(licenseCacheKey(licenseKey)); ok {
		var license models.License
		if err := json.Unmarshal(raw, &license); err == nil {
			return &license
		}
		// Corrupt cache entry, fall through to storage.
		ls.Cache.Delete(licenseCacheKey(licenseKey))
	}

	var license models.License
	err := ls.DB.Preload("LicenseFeatures").
		Where("license_key = ?", licenseKey).
		First(&license).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ls.Logger.Printf("failed to load license %s: %v", licenseKey, err)
		}
		return nil
	}

	if raw, err := json.Marshal(&license); err == nil {
		ls.Cache.Set(licenseCacheKey(licenseKey), raw, licenseCacheTTL)
	}
	return &license
}

// InvalidateCache drops the cached copy for a license key. Every license
// mutation must call it.
func (ls *LicenseService) InvalidateCache(licenseKey string) {
	ls.Cache.Delete(licenseCacheKey(licenseKey))
}

// CheckLicense validates the current license, optionally against the
// requesting domain. Negative outcomes are logged with the reason.
func (ls *LicenseService) CheckLicense(domain string) bool {
	license := ls.GetCurrentLicense()
	if license == nil {
		ls.Logger.Printf("license check failed: no current license")
		return false
	}

	if domain != "" && license.Domain != nil && *license.Domain != domain {
		ls.Logger.Printf("license domain mismatch: expected %s, got %s", *license.Domain, domain)
		return false
	}

	if !license.IsValid() {
		ls.Logger.Printf("license is invalid or expired: %s", license.LicenseKey)
		return false
	}

	return true
}

// HasFeature reports whether the named feature is available under the
// current license.
func (ls *LicenseService) HasFeature(featureKey string) bool {
	license := ls.GetCurrentLicense()
	if license == nil {
		return false
	}
	return license.HasFeature(featureKey)
}

// CheckUserLimit passes when the license carries no user cap or the current
// user count is below it.
func (ls *LicenseService) CheckUserLimit() bool {
	license := ls.GetCurrentLicense()
	if license == nil || license.MaxUsers == nil {
		return true
	}

	var currentUsers int64
	if err := ls.DB.Model(&models.User{}).Count(&currentUsers).Error; err != nil {
		ls.Logger.Printf("failed to count users for license limit: %v", err)
		return true
	}
	return currentUsers < int64(*license.MaxUsers)
}

// CheckRequestLimit compares this month's request counter against the
// license cap. No cap means the check always passes.
func (ls *LicenseService) CheckRequestLimit() bool {
	license := ls.GetCurrentLicense()
	if license == nil || license.MaxRequestsPerMonth == nil {
		return true
	}
	return ls.monthlyRequests(license.LicenseKey) < *license.MaxRequestsPerMonth
}

// IncrementRequestCount bumps the monthly counter. The entry expires at the
// end of the calendar month, which doubles as the monthly reset.
func (ls *LicenseService) IncrementRequestCount() {
	license := ls.GetCurrentLicense()
	if license == nil || license.MaxRequestsPerMonth == nil {
		return
	}
	key := requestCountKey(license.LicenseKey)
	count := ls.monthlyRequests(license.LicenseKey)
	ttl := time.Until(EndOfMonth(time.Now()))
	ls.Cache.Set(key, []byte(strconv.Itoa(count+1)), ttl)
}

func (ls *LicenseService) monthlyRequests(licenseKey string) int {
	raw, ok := ls.Cache.Get(requestCountKey(licenseKey))
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return count
}

// Activate looks up a license by key, validates it against the domain and
// persists the key as the process's current license.
func (ls *LicenseService) Activate(licenseKey, domain string) (*models.License, error) {
	var license models.License
	err := ls.DB.Preload("LicenseFeatures").
		Where("license_key = ?", licenseKey).
		First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrLicenseNotFound
		}
		return nil, err
	}

	if !license.IsValid() {
		return nil, models.ErrLicenseInvalid
	}

	if license.Domain != nil && *license.Domain != domain {
		return nil, models.ErrDomainMismatch
	}

	if err := config.SaveLicenseKey(licenseKey); err != nil {
		return nil, fmt.Errorf("failed to persist license key: %w", err)
	}
	ls.InvalidateCache(licenseKey)

	ls.Logger.Printf("license activated: %s", licenseKey)
	return &license, nil
}

// DeleteLicense removes a license and its feature rows. The license the
// process currently runs under cannot be deleted.
func (ls *LicenseService) DeleteLicense(id uint) error {
	var license models.License
	if err := ls.DB.First(&license, id).Error; err != nil {
		return err
	}
	if license.LicenseKey == config.AppConfig.LicenseKey {
		return models.ErrCurrentLicense
	}

	err := ls.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("license_id = ?", license.ID).
			Delete(&models.LicenseFeature{}).Error; err != nil {
			return err
		}
		return tx.Delete(&license).Error
	})
	if err != nil {
		return err
	}
	ls.InvalidateCache(license.LicenseKey)
	return nil
}

// CreateLicense mints a license and its nested feature rows in one
// transaction, generating a key when none is supplied.
func (ls *LicenseService) CreateLicense(input CreateLicenseInput) (*models.License, error) {
	licenseKey := input.LicenseKey
	if licenseKey == "" {
		licenseKey = models.GenerateLicenseKey()
	}

	licenseType := input.Type
	if licenseType == "" {
		licenseType = models.LicenseTypeTrial
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	features := input.Features
	if features == nil {
		features = []string{}
	}

	license := models.License{
		LicenseKey:          licenseKey,
		Domain:              input.Domain,
		Type:                licenseType,
		Features:            features,
		ExpiresAt:           input.ExpiresAt,
		IsActive:            isActive,
		MaxUsers:            input.MaxUsers,
		MaxRequestsPerMonth: input.MaxRequestsPerMonth,
		CustomerEmail:       input.CustomerEmail,
		CustomerName:        input.CustomerName,
		Notes:               input.Notes,
	}

	err := ls.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&license).Error; err != nil {
			return err
		}
		for featureKey, featureData := range input.FeatureList {
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
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := ls.DB.Preload("LicenseFeatures").First(&license, license.ID).Error; err != nil {
		return nil, err
	}
	return &license, nil
}
