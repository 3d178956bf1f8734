package models

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var phoneSeq uint64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, mutate func(*User)) *User {
	t.Helper()
	user := &User{
		Name:         "Test User",
		Email:        email,
		Phone:        fmt.Sprintf("7000%07d", atomic.AddUint64(&phoneSeq, 1)),
		PasswordHash: "x",
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
