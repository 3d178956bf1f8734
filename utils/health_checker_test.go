package utils

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"shejire/models"
)

func newTestChecker(t *testing.T) (*HealthChecker, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewHealthChecker(db, log.New(io.Discard, "", 0)), db
}

func createTestProject(t *testing.T, db *gorm.DB, url string, licenseKey *string) *models.DeployedProject {
	t.Helper()
	project := &models.DeployedProject{
		Name:       "Installation",
		URL:        url,
		APIKey:     models.GenerateAPIKey(),
		APISecret:  models.GenerateAPISecret(),
		LicenseKey: licenseKey,
		Status:     models.ProjectStatusActive,
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

// healthyInstallation simulates a deployed project answering all three
// sub-checks, recording the credentials it receives.
func healthyInstallation(licenseValid bool, gotKey, gotSecret *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			if gotKey != nil {
				*gotKey = r.Header.Get("X-API-Key")
			}
			if gotSecret != nil {
				*gotSecret = r.Header.Get("X-API-Secret")
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
		case "/api/license/check":
			json.NewEncoder(w).Encode(map[string]interface{}{"valid": licenseValid})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
}

func TestCheckHealthHealthy(t *testing.T) {
	var gotKey, gotSecret string
	server := healthyInstallation(true, &gotKey, &gotSecret)
	defer server.Close()

	checker, db := newTestChecker(t)
	licenseKey := "ABCD-EFGH"
	project := createTestProject(t, db, server.URL, &licenseKey)

	report := checker.CheckHealth(project)

	assert.Equal(t, models.HealthStatusHealthy, report.OverallStatus)
	assert.Len(t, report.Checks, 3)
	assert.Equal(t, models.CheckStatusOK, report.Checks["url"].Status)
	assert.Equal(t, models.CheckStatusOK, report.Checks["api"].Status)
	assert.Equal(t, models.CheckStatusOK, report.Checks["license"].Status)
	assert.Greater(t, report.Checks["url"].ResponseTimeMS, 0.0)

	assert.Equal(t, project.APIKey, gotKey)
	assert.Equal(t, project.APISecret, gotSecret)

	var stored models.DeployedProject
	require.NoError(t, db.First(&stored, project.ID).Error)
	assert.Equal(t, models.ProjectStatusActive, stored.Status)
	assert.NotNil(t, stored.LastHealthCheck)
	require.NotNil(t, stored.HealthStatus)
	assert.Equal(t, models.HealthStatusHealthy, stored.HealthStatus.OverallStatus)
}

func TestCheckHealthSkipsLicenseWithoutKey(t *testing.T) {
	server := healthyInstallation(false, nil, nil)
	defer server.Close()

	checker, db := newTestChecker(t)
	project := createTestProject(t, db, server.URL, nil)

	report := checker.CheckHealth(project)

	assert.Equal(t, models.HealthStatusHealthy, report.OverallStatus)
	assert.Len(t, report.Checks, 2)
	assert.NotContains(t, report.Checks, "license")
}

func TestCheckHealthInvalidLicense(t *testing.T) {
	server := healthyInstallation(false, nil, nil)
	defer server.Close()

	checker, db := newTestChecker(t)
	licenseKey := "ABCD-EFGH"
	project := createTestProject(t, db, server.URL, &licenseKey)

	report := checker.CheckHealth(project)

	assert.Equal(t, models.HealthStatusError, report.OverallStatus)
	assert.Equal(t, models.CheckStatusError, report.Checks["license"].Status)

	var stored models.DeployedProject
	require.NoError(t, db.First(&stored, project.ID).Error)
	assert.Equal(t, models.ProjectStatusError, stored.Status)
}

func TestCheckHealthUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	checker, db := newTestChecker(t)
	project := createTestProject(t, db, server.URL, nil)

	report := checker.CheckHealth(project)

	assert.Equal(t, models.HealthStatusError, report.OverallStatus)
	assert.Equal(t, models.CheckStatusError, report.Checks["url"].Status)
	assert.Equal(t, models.CheckStatusError, report.Checks["api"].Status)

	var stored models.DeployedProject
	require.NoError(t, db.First(&stored, project.ID).Error)
	assert.Equal(t, models.ProjectStatusError, stored.Status)
}

func TestDetermineOverallStatus(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]models.HealthCheck
		want   string
	}{
		{"empty", map[string]models.HealthCheck{}, models.HealthStatusHealthy},
		{"all ok", map[string]models.HealthCheck{
			"url": {Status: models.CheckStatusOK},
			"api": {Status: models.CheckStatusOK},
		}, models.HealthStatusHealthy},
		{"warning wins over ok", map[string]models.HealthCheck{
			"url": {Status: models.CheckStatusOK},
			"api": {Status: models.CheckStatusWarning},
		}, models.HealthStatusWarning},
		{"error wins over warning", map[string]models.HealthCheck{
			"url":     {Status: models.CheckStatusWarning},
			"api":     {Status: models.CheckStatusError},
			"license": {Status: models.CheckStatusOK},
		}, models.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, models.DetermineOverallStatus(tc.checks))
		})
	}
}

func TestCheckAllProjectsSkipsInactive(t *testing.T) {
	server := healthyInstallation(true, nil, nil)
	defer server.Close()

	checker, db := newTestChecker(t)
	active := createTestProject(t, db, server.URL, nil)
	inactive := createTestProject(t, db, server.URL, nil)
	require.NoError(t, db.Model(inactive).Update("status", models.ProjectStatusInactive).Error)

	results := checker.CheckAllProjects()

	require.Len(t, results, 1)
	assert.Contains(t, results, active.ID)
}

func TestHealthStatistics(t *testing.T) {
	checker, db := newTestChecker(t)

	createTestProject(t, db, "http://a.test", nil)
	errored := createTestProject(t, db, "http://b.test", nil)
	require.NoError(t, db.Model(errored).Update("status", models.ProjectStatusError).Error)
	down := createTestProject(t, db, "http://c.test", nil)
	require.NoError(t, db.Model(down).Update("status", models.ProjectStatusInactive).Error)

	stats, err := checker.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Healthy)
	assert.Equal(t, int64(1), stats.Error)
	assert.Equal(t, int64(1), stats.Inactive)
}
