package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"shejire/models"
)

const healthCheckTimeout = 10 * time.Second

// HealthChecker probes deployed projects and persists the aggregated
// verdict onto the project record. Failures during a check are recorded as
// an error result, never propagated.
type HealthChecker struct {
	DB     *gorm.DB
	Client *http.Client
	Logger *log.Logger
}

func NewHealthChecker(db *gorm.DB, logger *log.Logger) *HealthChecker {
	return &HealthChecker{
		DB:     db,
		Client: &http.Client{Timeout: healthCheckTimeout},
		Logger: logger,
	}
}

// CheckHealth runs the url, api and license sub-checks for one project,
// aggregates them and updates the project's snapshot and status.
func (hc *HealthChecker) CheckHealth(project *models.DeployedProject) *models.HealthReport {
	report := &models.HealthReport{
		Timestamp: time.Now(),
		URL:       project.URL,
		Checks:    map[string]models.HealthCheck{},
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("health check panic: %v", r)
				LogError("health_check_failed", err, map[string]interface{}{
					"project_id": project.ID,
				})
				report.OverallStatus = models.HealthStatusError
				report.Error = err.Error()
			}
		}()

		report.Checks["url"] = hc.checkURL(project.URL)
		report.Checks["api"] = hc.checkAPIHealth(project)
		if project.LicenseKey != nil && *project.LicenseKey != "" {
			report.Checks["license"] = hc.checkLicense(project)
		}

		report.OverallStatus = models.DetermineOverallStatus(report.Checks)
	}()

	projectStatus := models.ProjectStatusError
	if report.OverallStatus == models.HealthStatusHealthy {
		projectStatus = models.ProjectStatusActive
	}

	now := time.Now()
	project.LastHealthCheck = &now
	project.HealthStatus = report
	project.Status = projectStatus
	if err := hc.DB.Model(project).
		Select("last_health_check", "health_status", "status").
		Updates(project).Error; err != nil {
		hc.Logger.Printf("failed to persist health result for project %d: %v", project.ID, err)
	}

	return report
}

func (hc *HealthChecker) checkURL(url string) models.HealthCheck {
	start := time.Now()
	resp, err := hc.Client.Get(url)
	if err != nil {
		return models.HealthCheck{
			Status:  models.CheckStatusError,
			Message: "connection failed: " + err.Error(),
		}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	rtt := float64(time.Since(start).Microseconds()) / 1000.0
	check := models.HealthCheck{
		HTTPCode:       resp.StatusCode,
		ResponseTimeMS: rtt,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		check.Status = models.CheckStatusOK
		check.Message = "URL reachable"
	} else {
		check.Status = models.CheckStatusError
		check.Message = "URL unreachable"
	}
	return check
}

func (hc *HealthChecker) checkAPIHealth(project *models.DeployedProject) models.HealthCheck {
	resp, body, err := hc.getWithCredentials(project, "/api/health")
	if err != nil {
		return models.HealthCheck{
			Status:  models.CheckStatusError,
			Message: "API check failed: " + err.Error(),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		check := models.HealthCheck{
			Status:  models.CheckStatusOK,
			Message: "API reachable",
		}
		var data map[string]interface{}
		if json.Unmarshal(body, &data) == nil {
			check.Data = data
		}
		return check
	}

	return models.HealthCheck{
		Status:   models.CheckStatusError,
		Message:  "API unreachable",
		HTTPCode: resp.StatusCode,
	}
}

func (hc *HealthChecker) checkLicense(project *models.DeployedProject) models.HealthCheck {
	resp, body, err := hc.getWithCredentials(project, "/api/license/check")
	if err != nil {
		return models.HealthCheck{
			Status:  models.CheckStatusError,
			Message: "license check failed: " + err.Error(),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return models.HealthCheck{
				Status:  models.CheckStatusError,
				Message: "license check returned malformed response",
			}
		}
		valid, _ := data["valid"].(bool)
		check := models.HealthCheck{Data: data}
		if valid {
			check.Status = models.CheckStatusOK
			check.Message = "license valid"
		} else {
			check.Status = models.CheckStatusError
			check.Message = "license invalid"
		}
		return check
	}

	return models.HealthCheck{
		Status:   models.CheckStatusError,
		Message:  "license check unreachable",
		HTTPCode: resp.StatusCode,
	}
}

func (hc *HealthChecker) getWithCredentials(project *models.DeployedProject, path string) (*http.Response, []byte, error) {
	url := strings.TrimRight(project.URL, "/") + path
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("X-API-Key", project.APIKey)
	req.Header.Set("X-API-Secret", project.APISecret)

	resp, err := hc.Client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// CheckAllProjects checks every project that is not manually disabled. One
// project's failure does not abort the others.
func (hc *HealthChecker) CheckAllProjects() map[uint]*models.HealthReport {
	var projects []models.DeployedProject
	if err := hc.DB.Where("status != ?", models.ProjectStatusInactive).Find(&projects).Error; err != nil {
		hc.Logger.Printf("failed to list projects for health check: %v", err)
		return nil
	}

	results := make(map[uint]*models.HealthReport, len(projects))
	for i := range projects {
		results[projects[i].ID] = hc.CheckHealth(&projects[i])
	}
	return results
}

// HealthStatistics summarizes project statuses.
type HealthStatistics struct {
	Total       int64      `json:"total"`
	Healthy     int64      `json:"healthy"`
	Error       int64      `json:"error"`
	Maintenance int64      `json:"maintenance"`
	Inactive    int64      `json:"inactive"`
	LastCheck   *time.Time `json:"last_check,omitempty"`
}

func (hc *HealthChecker) Statistics() (*HealthStatistics, error) {
	stats := &HealthStatistics{}
	if err := hc.DB.Model(&models.DeployedProject{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	counts := map[string]*int64{
		models.ProjectStatusActive:      &stats.Healthy,
		models.ProjectStatusError:       &stats.Error,
		models.ProjectStatusMaintenance: &stats.Maintenance,
		models.ProjectStatusInactive:    &stats.Inactive,
	}
	for status, dst := range counts {
		if err := hc.DB.Model(&models.DeployedProject{}).
			Where("status = ?", status).Count(dst).Error; err != nil {
			return nil, err
		}
	}
	var last *time.Time
	if err := hc.DB.Model(&models.DeployedProject{}).
		Select("MAX(last_health_check)").Scan(&last).Error; err != nil {
		return nil, err
	}
	stats.LastCheck = last
	return stats, nil
}
