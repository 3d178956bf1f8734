package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolePredicates(t *testing.T) {
	var nobody *User
	assert.False(t, nobody.IsAdminRole())
	assert.False(t, nobody.IsSuperAdminRole())
	assert.False(t, nobody.IsModeratorRole())

	admin := &User{IsAdmin: true}
	assert.True(t, admin.IsAdminRole())
	assert.False(t, admin.IsSuperAdminRole())

	superAdmin := &User{IsSuperAdmin: true}
	assert.True(t, superAdmin.IsAdminRole())
	assert.True(t, superAdmin.IsSuperAdminRole())

	moderator := &User{IsModerator: true}
	assert.True(t, moderator.IsModeratorRole())
	assert.False(t, moderator.IsAdminRole())
}

func TestDeleteUserLastSuperAdminGuard(t *testing.T) {
	db := newTestDB(t)

	only := createTestUser(t, db, "root@example.com", func(u *User) { u.IsSuperAdmin = true })
	regular := createTestUser(t, db, "user@example.com", nil)

	err := DeleteUser(db, only)
	assert.True(t, errors.Is(err, ErrLastSuperAdmin))

	var stored User
	require.NoError(t, db.First(&stored, only.ID).Error)

	require.NoError(t, DeleteUser(db, regular))

	second := createTestUser(t, db, "root2@example.com", func(u *User) { u.IsSuperAdmin = true })
	require.NoError(t, DeleteUser(db, second))

	n, err := CountSuperAdmins(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
