package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Deployed project statuses.
const (
	ProjectStatusActive      = "active"
	ProjectStatusInactive    = "inactive"
	ProjectStatusError       = "error"
	ProjectStatusMaintenance = "maintenance"
)

// Health statuses produced by the polling engine.
const (
	HealthStatusHealthy = "healthy"
	HealthStatusWarning = "warning"
	HealthStatusError   = "error"

	CheckStatusOK      = "ok"
	CheckStatusWarning = "warning"
	CheckStatusError   = "error"
)

// DeployedProject is a remote installation registered with this control
// plane. Its health snapshot is written only by the health polling engine.
type DeployedProject struct {
	gorm.Model

	Name       string  `gorm:"not null" json:"name"`
	URL        string  `gorm:"not null" json:"url"`
	APIKey     string  `gorm:"uniqueIndex;not null" json:"api_key"`
	APISecret  string  `gorm:"not null" json:"-"`
	LicenseKey *string `json:"license_key,omitempty"`
	LicenseID  *uint   `json:"license_id,omitempty"`

	ServerIP   *string `json:"server_ip,omitempty"`
	ServerUser *string `json:"server_user,omitempty"`
	SSHKey     *string `json:"-"`

	Status          string                 `gorm:"default:'active';index" json:"status"`
	LastHealthCheck *time.Time             `json:"last_health_check,omitempty"`
	HealthStatus    *HealthReport          `gorm:"type:jsonb;serializer:json" json:"health_status,omitempty"`
	ServerInfo      map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"server_info,omitempty"`

	ContactEmail         *string `json:"contact_email,omitempty"`
	ContactName          *string `json:"contact_name,omitempty"`
	Notes                *string `json:"notes,omitempty"`
	NotificationsEnabled bool    `gorm:"default:true" json:"notifications_enabled"`

	// Relations
	License *License `json:"license,omitempty"`
}

func (p *DeployedProject) IsActive() bool {
	return p.Status == ProjectStatusActive
}

func (p *DeployedProject) HasIssues() bool {
	return p.Status == ProjectStatusError || p.Status == ProjectStatusMaintenance
}

// HealthCheck is the outcome of a single sub-check.
type HealthCheck struct {
	Status         string                 `json:"status"`
	Message        string                 `json:"message,omitempty"`
	HTTPCode       int                    `json:"http_code,omitempty"`
	ResponseTimeMS float64                `json:"response_time_ms,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// HealthReport is the full result persisted onto the project record.
type HealthReport struct {
	Timestamp     time.Time              `json:"timestamp"`
	URL           string                 `json:"url"`
	Checks        map[string]HealthCheck `json:"checks"`
	OverallStatus string                 `json:"overall_status"`
	Error         string                 `json:"error,omitempty"`
}

// DetermineOverallStatus aggregates sub-checks: any error wins, then any
// warning, otherwise healthy.
func DetermineOverallStatus(checks map[string]HealthCheck) string {
	hasWarnings := false
	for _, check := range checks {
		switch check.Status {
		case CheckStatusError:
			return HealthStatusError
		case CheckStatusWarning:
			hasWarnings = true
		}
	}
	if hasWarnings {
		return HealthStatusWarning
	}
	return HealthStatusHealthy
}

// GenerateAPIKey produces a project API key with a recognizable prefix.
func GenerateAPIKey() string {
	return "dp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateAPISecret produces a 64-character project API secret.
func GenerateAPISecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
