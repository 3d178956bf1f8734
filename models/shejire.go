package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Moderation statuses of a shejire tree.
const (
	TreeStatusPending  = "pending"
	TreeStatusApproved = "approved"
	TreeStatusRejected = "rejected"
)

// ShejireTree is a user-submitted genealogy tree that goes through moderation
// before it becomes publicly visible.
type ShejireTree struct {
	gorm.Model

	UserID         uint       `gorm:"not null;index" json:"user_id"`
	Title          *string    `json:"title,omitempty"`
	Status         string     `gorm:"default:'pending';index" json:"status"`
	ModeratorID    *uint      `json:"moderator_id,omitempty"`
	ModeratedAt    *time.Time `json:"moderated_at,omitempty"`
	RejectedReason *string    `json:"rejected_reason,omitempty"`

	// Relations
	User      User          `json:"user,omitempty"`
	Moderator *User         `gorm:"foreignKey:ModeratorID" json:"moderator,omitempty"`
	Nodes     []ShejireNode `gorm:"foreignKey:ShejireTreeID" json:"nodes,omitempty"`
}

func (t *ShejireTree) IsPending() bool  { return t.Status == TreeStatusPending }
func (t *ShejireTree) IsApproved() bool { return t.Status == TreeStatusApproved }
func (t *ShejireTree) IsRejected() bool { return t.Status == TreeStatusRejected }

// ShejireNode is a single person in a tree. ParentID forms a forest within
// one tree; a nil parent marks a root.
type ShejireNode struct {
	gorm.Model

	ShejireTreeID    uint       `gorm:"not null;index" json:"shejire_tree_id"`
	ParentID         *uint      `gorm:"index" json:"parent_id,omitempty"`
	FullName         string     `gorm:"not null" json:"full_name"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	DeathDate        *time.Time `json:"death_date,omitempty"`
	ModeratorComment *string    `json:"moderator_comment,omitempty"`
	SortOrder        int        `gorm:"default:0" json:"sort_order"`
}

// DisplayName renders the node as "Surname I.O." from its full name.
func (n *ShejireNode) DisplayName() string {
	parts := strings.Fields(strings.TrimSpace(n.FullName))
	if len(parts) == 0 {
		return n.FullName
	}
	surname := parts[0]
	var initials []string
	for _, p := range parts[1:] {
		r := []rune(p)
		initials = append(initials, string(r[0])+".")
	}
	return strings.TrimSpace(surname + " " + strings.Join(initials, ""))
}

// CanManageTree reports whether the user may edit or delete the tree: the
// owner, an admin or a super admin. Anonymous viewers never manage trees.
func CanManageTree(user *User, tree *ShejireTree) bool {
	if user == nil {
		return false
	}
	if tree.UserID == user.ID {
		return true
	}
	return user.IsAdminRole()
}

// CanViewTree reports whether the tree is visible to the viewer. Approved
// trees are public; otherwise only the owner, admins and moderators see it.
func CanViewTree(user *User, tree *ShejireTree) bool {
	if tree.IsApproved() {
		return true
	}
	return CanManageTree(user, tree) || user.IsModeratorRole()
}

// ApproveTree moves a pending tree to approved, recording the moderator and
// clearing any previous rejection reason. Any other starting status fails
// with ErrAlreadyProcessed and mutates nothing.
func ApproveTree(db *gorm.DB, tree *ShejireTree, moderatorID uint) error {
	if !tree.IsPending() {
		return ErrAlreadyProcessed
	}
	now := time.Now()
	if err := db.Model(tree).Updates(map[string]interface{}{
		"status":          TreeStatusApproved,
		"moderator_id":    moderatorID,
		"moderated_at":    now,
		"rejected_reason": nil,
	}).Error; err != nil {
		return err
	}
	tree.Status = TreeStatusApproved
	tree.ModeratorID = &moderatorID
	tree.ModeratedAt = &now
	tree.RejectedReason = nil
	return nil
}

// RejectTree moves a pending tree to rejected with an optional reason.
func RejectTree(db *gorm.DB, tree *ShejireTree, moderatorID uint, reason *string) error {
	if !tree.IsPending() {
		return ErrAlreadyProcessed
	}
	now := time.Now()
	if err := db.Model(tree).Updates(map[string]interface{}{
		"status":          TreeStatusRejected,
		"moderator_id":    moderatorID,
		"moderated_at":    now,
		"rejected_reason": reason,
	}).Error; err != nil {
		return err
	}
	tree.Status = TreeStatusRejected
	tree.ModeratorID = &moderatorID
	tree.ModeratedAt = &now
	tree.RejectedReason = reason
	return nil
}

// ResetModeration revokes the approval of a tree after an edit: status goes
// back to pending and the moderator fields are cleared. Pending and rejected
// trees are left untouched. Call it in the same transaction as the edit.
func ResetModeration(db *gorm.DB, tree *ShejireTree) error {
	if !tree.IsApproved() {
		return nil
	}
	if err := db.Model(tree).Updates(map[string]interface{}{
		"status":          TreeStatusPending,
		"moderator_id":    nil,
		"moderated_at":    nil,
		"rejected_reason": nil,
	}).Error; err != nil {
		return err
	}
	tree.Status = TreeStatusPending
	tree.ModeratorID = nil
	tree.ModeratedAt = nil
	tree.RejectedReason = nil
	return nil
}

// ValidateNodeParent checks that a supplied parent node belongs to the given
// tree. A nil parent is always valid.
func ValidateNodeParent(db *gorm.DB, treeID uint, parentID *uint) error {
	if parentID == nil {
		return nil
	}
	var n int64
	if err := db.Model(&ShejireNode{}).
		Where("id = ? AND shejire_tree_id = ?", *parentID, treeID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidParent
	}
	return nil
}

// NextSortOrder returns the default sort order for a new node: one past the
// current maximum across the whole tree, not within the parent.
func NextSortOrder(db *gorm.DB, treeID uint) (int, error) {
	var max *int
	err := db.Model(&ShejireNode{}).
		Where("shejire_tree_id = ?", treeID).
		Select("MAX(sort_order)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}
