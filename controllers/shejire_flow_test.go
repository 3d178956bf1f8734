package controller_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shejire/config"
	"shejire/models"
	"shejire/routes"
	"shejire/utils"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	prevConfig := config.AppConfig
	prevDB := config.DB
	config.DB = db
	config.AppConfig.EncryptionKey = "test-encryption-key"
	config.AppConfig.EnvFile = filepath.Join(t.TempDir(), ".env")
	config.AppConfig.RateLimitPublicLicense = 1000
	t.Cleanup(func() {
		config.AppConfig = prevConfig
		config.DB = prevDB
	})

	// An unlimited license with the genealogy feature enabled.
	license := &models.License{
		LicenseKey: models.GenerateLicenseKey(),
		Type:       models.LicenseTypeEnterprise,
		Features:   []string{"shejire"},
		IsActive:   true,
	}
	require.NoError(t, db.Create(license).Error)
	config.AppConfig.LicenseKey = license.LicenseKey

	quiet := log.New(io.Discard, "", 0)
	cache := utils.NewMemoryCache()
	licenseService := utils.NewLicenseService(db, cache, quiet)
	healthChecker := utils.NewHealthChecker(db, quiet)

	app := fiber.New()
	routes.SetupRoutes(app, db, licenseService, healthChecker)

	return &testEnv{app: app, db: db}
}

var userSeq int

func (e *testEnv) createUser(t *testing.T, mutate func(*models.User)) (*models.User, string) {
	t.Helper()
	userSeq++
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Name:         "Test User",
		Email:        fmt.Sprintf("user%d@example.com", userSeq),
		Phone:        fmt.Sprintf("7%010d", userSeq),
		PasswordHash: string(hash),
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, e.db.Create(user).Error)

	token, _, err := utils.GenerateJWTToken(user)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

// TestModerationFlow walks the full lifecycle: submit, moderate, edit after
// approval, re-approve.
func TestModerationFlow(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, nil)
	_, modToken := env.createUser(t, func(u *models.User) { u.IsModerator = true })
	_, strangerToken := env.createUser(t, nil)

	// Owner creates a tree with two nodes.
	resp, body := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{
		"title": "Our family",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	treeID := uint(body["tree"].(map[string]interface{})["id"].(float64))
	treePath := fmt.Sprintf("/api/shejire/%d", treeID)

	resp, body = env.request(t, fiber.MethodPost, treePath+"/nodes", ownerToken, fiber.Map{
		"full_name": "Qasymov Arman Bolatuly",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	rootID := uint(body["node"].(map[string]interface{})["id"].(float64))

	resp, _ = env.request(t, fiber.MethodPost, treePath+"/nodes", ownerToken, fiber.Map{
		"full_name": "Qasymov Daniyar Armanuly",
		"parent_id": rootID,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Pending trees are hidden from strangers and anonymous viewers.
	resp, _ = env.request(t, fiber.MethodGet, treePath, strangerToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = env.request(t, fiber.MethodGet, treePath, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// The owner and the moderation queue see it.
	resp, _ = env.request(t, fiber.MethodGet, treePath, ownerToken, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, body = env.request(t, fiber.MethodGet, "/api/shejire/moderation/", modToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["trees"], 1)

	// A regular user cannot moderate.
	resp, _ = env.request(t, fiber.MethodPost, "/api/shejire/moderation/"+fmt.Sprint(treeID)+"/approve", strangerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// Approval makes the tree public.
	resp, _ = env.request(t, fiber.MethodPost, "/api/shejire/moderation/"+fmt.Sprint(treeID)+"/approve", modToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = env.request(t, fiber.MethodGet, treePath, "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Approving twice conflicts.
	resp, _ = env.request(t, fiber.MethodPost, "/api/shejire/moderation/"+fmt.Sprint(treeID)+"/approve", modToken, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// Editing an approved tree sends it back to moderation.
	resp, _ = env.request(t, fiber.MethodPost, treePath+"/nodes", ownerToken, fiber.Map{
		"full_name": "Qasymova Aigerim Armanqyzy",
		"parent_id": rootID,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var tree models.ShejireTree
	require.NoError(t, env.db.First(&tree, treeID).Error)
	assert.Equal(t, models.TreeStatusPending, tree.Status)
	assert.Nil(t, tree.ModeratorID)
	assert.Nil(t, tree.ModeratedAt)

	resp, _ = env.request(t, fiber.MethodGet, treePath, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCrossTreeParentRejected(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, nil)

	_, bodyA := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{})
	treeA := uint(bodyA["tree"].(map[string]interface{})["id"].(float64))
	_, bodyB := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{})
	treeB := uint(bodyB["tree"].(map[string]interface{})["id"].(float64))

	resp, body := env.request(t, fiber.MethodPost, fmt.Sprintf("/api/shejire/%d/nodes", treeA), ownerToken, fiber.Map{
		"full_name": "Root A",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	rootA := uint(body["node"].(map[string]interface{})["id"].(float64))

	resp, _ = env.request(t, fiber.MethodPost, fmt.Sprintf("/api/shejire/%d/nodes", treeB), ownerToken, fiber.Map{
		"full_name": "Orphan",
		"parent_id": rootA,
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var count int64
	require.NoError(t, env.db.Model(&models.ShejireNode{}).
		Where("shejire_tree_id = ?", treeB).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRejectKeepsTreeHidden(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.createUser(t, nil)
	_, modToken := env.createUser(t, func(u *models.User) { u.IsModerator = true })

	_, body := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{})
	treeID := uint(body["tree"].(map[string]interface{})["id"].(float64))

	resp, _ := env.request(t, fiber.MethodPost, "/api/shejire/moderation/"+fmt.Sprint(treeID)+"/reject", modToken, fiber.Map{
		"reason": "needs sources",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var tree models.ShejireTree
	require.NoError(t, env.db.First(&tree, treeID).Error)
	assert.Equal(t, models.TreeStatusRejected, tree.Status)
	require.NotNil(t, tree.RejectedReason)
	assert.Equal(t, "needs sources", *tree.RejectedReason)

	// The owner still sees their rejected tree with the reason.
	resp, body = env.request(t, fiber.MethodGet, "/api/shejire/my/trees", ownerToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	trees := body["trees"].([]interface{})
	require.Len(t, trees, 1)
	assert.Equal(t, float64(owner.ID), trees[0].(map[string]interface{})["user_id"])
}

// Tree writes only require authentication. A fresh install with no license
// key configured must still let owners build their trees.
func TestTreeWritesWithoutLicense(t *testing.T) {
	env := newTestEnv(t)
	config.AppConfig.LicenseKey = ""

	_, ownerToken := env.createUser(t, nil)

	resp, body := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{
		"title": "Unlicensed install",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	treeID := uint(body["tree"].(map[string]interface{})["id"].(float64))

	resp, _ = env.request(t, fiber.MethodPost, fmt.Sprintf("/api/shejire/%d/nodes", treeID), ownerToken, fiber.Map{
		"full_name": "Qasymov Arman Bolatuly",
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestIndexShowsOwnPendingTrees(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, nil)
	_, strangerToken := env.createUser(t, nil)

	resp, _ := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{
		"title": "Awaiting review",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// The owner sees their pending tree in the public index.
	resp, body := env.request(t, fiber.MethodGet, "/api/shejire/", ownerToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	// Other users and anonymous visitors do not.
	resp, body = env.request(t, fiber.MethodGet, "/api/shejire/", strangerToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])

	resp, body = env.request(t, fiber.MethodGet, "/api/shejire/", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
}

func TestNodeModeratorCommentPersisted(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, nil)

	_, body := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{})
	treeID := uint(body["tree"].(map[string]interface{})["id"].(float64))

	resp, body := env.request(t, fiber.MethodPost, fmt.Sprintf("/api/shejire/%d/nodes", treeID), ownerToken, fiber.Map{
		"full_name":         "Qasymov Arman Bolatuly",
		"moderator_comment": "confirm the patronymic spelling",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	nodeID := uint(body["node"].(map[string]interface{})["id"].(float64))

	var node models.ShejireNode
	require.NoError(t, env.db.First(&node, nodeID).Error)
	require.NotNil(t, node.ModeratorComment)
	assert.Equal(t, "confirm the patronymic spelling", *node.ModeratorComment)

	// An update without the field clears it, same as the other nullables.
	resp, _ = env.request(t, fiber.MethodPut, fmt.Sprintf("/api/shejire/%d/nodes/%d", treeID, nodeID), ownerToken, fiber.Map{
		"full_name": "Qasymov Arman Bolatuly",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, env.db.First(&node, nodeID).Error)
	assert.Nil(t, node.ModeratorComment)
}

func TestModerationQueueNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, nil)
	_, modToken := env.createUser(t, func(u *models.User) { u.IsModerator = true })

	_, body := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{
		"title": "Older submission",
	})
	olderID := uint(body["tree"].(map[string]interface{})["id"].(float64))
	require.NoError(t, env.db.Model(&models.ShejireTree{}).
		Where("id = ?", olderID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	resp, _ := env.request(t, fiber.MethodPost, "/api/shejire/", ownerToken, fiber.Map{
		"title": "Newer submission",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body = env.request(t, fiber.MethodGet, "/api/shejire/moderation/", modToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	trees := body["trees"].([]interface{})
	require.Len(t, trees, 2)
	assert.Equal(t, "Newer submission", trees[0].(map[string]interface{})["title"])
	assert.Equal(t, "Older submission", trees[1].(map[string]interface{})["title"])
}

func TestLicenseEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, fiber.MethodGet, "/api/license/check", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = env.request(t, fiber.MethodGet, "/api/license/feature/shejire", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["available"])

	resp, body = env.request(t, fiber.MethodGet, "/api/license/feature/unknown", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["available"])
}

// Self-registration keeps the credentials the installation already holds.
func TestRegisterKeepsSuppliedAPIKey(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, fiber.MethodPost, "/api/projects/register", "", fiber.Map{
		"name":    "Aul portal",
		"url":     "https://aul.example.kz",
		"api_key": "dp_preconfigured0001",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "dp_preconfigured0001", body["api_key"])

	var project models.DeployedProject
	require.NoError(t, env.db.Where("api_key = ?", "dp_preconfigured0001").First(&project).Error)
	assert.Equal(t, "Aul portal", project.Name)

	// Re-announcing with the same key refreshes the record in place.
	resp, body = env.request(t, fiber.MethodPost, "/api/projects/register", "", fiber.Map{
		"name":    "Aul portal renamed",
		"url":     "https://aul.example.kz",
		"api_key": "dp_preconfigured0001",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "dp_preconfigured0001", body["api_key"])

	var count int64
	require.NoError(t, env.db.Model(&models.DeployedProject{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, env.db.Where("api_key = ?", "dp_preconfigured0001").First(&project).Error)
	assert.Equal(t, "Aul portal renamed", project.Name)
}

// The license registry is an admin surface, not super admin only.
func TestLicenseRegistryRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.createUser(t, nil)
	_, adminToken := env.createUser(t, func(u *models.User) { u.IsAdmin = true })

	resp, _ := env.request(t, fiber.MethodGet, "/api/license/list", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, fiber.MethodGet, "/api/license/list", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := env.request(t, fiber.MethodGet, "/api/license/list", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotNil(t, body["data"])

	resp, _ = env.request(t, fiber.MethodGet, "/api/license/statistics", adminToken, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
