package models

import (
	"gorm.io/gorm"
)

// User represents an account in the portal
type User struct {
	gorm.Model

	Name         string  `gorm:"not null" json:"name"`
	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string  `gorm:"uniqueIndex;not null" json:"phone"`
	Avatar       *string `json:"avatar,omitempty"`
	PasswordHash string  `gorm:"not null" json:"-"`

	// Role flags are independent booleans. Call sites that grant
	// is_super_admin are expected to also set is_admin; the data layer does
	// not enforce that convention.
	IsAdmin      bool `gorm:"default:false" json:"is_admin"`
	IsSuperAdmin bool `gorm:"default:false" json:"is_super_admin"`
	IsModerator  bool `gorm:"default:false" json:"is_moderator"`

	// Relations
	ShejireTrees []ShejireTree `gorm:"foreignKey:UserID" json:"shejire_trees,omitempty"`
	Articles     []Article     `gorm:"foreignKey:UserID" json:"articles,omitempty"`
}

// IsAdminRole reports whether the user holds the admin role. A super admin
// counts as an admin for authorization purposes.
func (u *User) IsAdminRole() bool {
	return u != nil && (u.IsAdmin || u.IsSuperAdmin)
}

func (u *User) IsSuperAdminRole() bool {
	return u != nil && u.IsSuperAdmin
}

func (u *User) IsModeratorRole() bool {
	return u != nil && u.IsModerator
}

// CountSuperAdmins returns the number of super admin accounts.
func CountSuperAdmins(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&User{}).Where("is_super_admin = ?", true).Count(&n).Error
	return n, err
}

// DeleteUser removes a user, refusing to remove the last super admin.
func DeleteUser(db *gorm.DB, user *User) error {
	if user.IsSuperAdmin {
		n, err := CountSuperAdmins(db)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastSuperAdmin
		}
	}
	return db.Delete(user).Error
}
