package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"
)

// License types.
const (
	LicenseTypeTrial      = "trial"
	LicenseTypeBasic      = "basic"
	LicenseTypePremium    = "premium"
	LicenseTypeEnterprise = "enterprise"
)

// License represents an entitlement grant for a deployed installation.
type License struct {
	gorm.Model

	LicenseKey string     `gorm:"uniqueIndex;not null" json:"license_key"`
	Domain     *string    `json:"domain,omitempty"`
	Type       string     `gorm:"default:'trial'" json:"type"`
	Features   []string   `gorm:"type:jsonb;serializer:json" json:"features"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	IsActive   bool       `gorm:"default:true;index" json:"is_active"`

	MaxUsers            *int `json:"max_users,omitempty"`
	MaxRequestsPerMonth *int `json:"max_requests_per_month,omitempty"`

	Notes         *string `json:"notes,omitempty"`
	CustomerEmail *string `json:"customer_email,omitempty"`
	CustomerName  *string `json:"customer_name,omitempty"`

	// Relations
	LicenseFeatures []LicenseFeature `gorm:"foreignKey:LicenseID" json:"license_features,omitempty"`
}

// LicenseFeature overrides or extends the license's JSON feature list.
type LicenseFeature struct {
	gorm.Model

	LicenseID  uint                   `gorm:"not null;index" json:"license_id"`
	FeatureKey string                 `gorm:"not null;index" json:"feature_key"`
	Enabled    bool                   `gorm:"default:true" json:"enabled"`
	Settings   map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"settings,omitempty"`
}

// IsValid reports whether the license is active and not expired.
func (l *License) IsValid() bool {
	if !l.IsActive {
		return false
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(time.Now()) {
		return false
	}
	return true
}

// EffectiveFeatures merges the JSON feature list with the loaded feature
// rows: a feature is in the set when the list names it or an enabled row
// carries its key. The merge is pure; validity is checked by the caller.
func (l *License) EffectiveFeatures() map[string]struct{} {
	set := make(map[string]struct{}, len(l.Features)+len(l.LicenseFeatures))
	for _, key := range l.Features {
		set[key] = struct{}{}
	}
	for _, row := range l.LicenseFeatures {
		if row.Enabled {
			set[row.FeatureKey] = struct{}{}
		}
	}
	return set
}

// HasFeature reports whether the feature is available under this license.
// Any feature check against an invalid license is false.
func (l *License) HasFeature(featureKey string) bool {
	if !l.IsValid() {
		return false
	}
	_, ok := l.EffectiveFeatures()[featureKey]
	return ok
}

// GenerateLicenseKey produces a key of four hyphen-separated groups of eight
// uppercase hex characters. Uniqueness is enforced by the DB unique index.
func GenerateLicenseKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("license key entropy unavailable: " + err.Error())
	}
	h := strings.ToUpper(hex.EncodeToString(buf))
	return h[0:8] + "-" + h[8:16] + "-" + h[16:24] + "-" + h[24:32]
}
