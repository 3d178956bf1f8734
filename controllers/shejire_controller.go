package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"shejire/middleware"
	"shejire/models"
	"shejire/utils"
)

// ShejireController owns the genealogy tree lifecycle: CRUD for trees and
// nodes plus the moderation queue. Every write to an approved tree drops it
// back to pending in the same transaction.
type ShejireController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewShejireController(db *gorm.DB, logger *log.Logger) *ShejireController {
	return &ShejireController{DB: db, Logger: logger}
}

type TreeRequest struct {
	Title *string `json:"title" validate:"omitempty,max=255"`
}

type NodeRequest struct {
	ParentID         *uint      `json:"parent_id"`
	FullName         string     `json:"full_name" validate:"required,max=255"`
	BirthDate        *time.Time `json:"birth_date"`
	DeathDate        *time.Time `json:"death_date"`
	ModeratorComment *string    `json:"moderator_comment" validate:"omitempty,max=1000"`
	SortOrder        *int       `json:"sort_order"`
}

type RejectRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=1000"`
}

func (sc *ShejireController) validateDates(req *NodeRequest) utils.ValidationErrors {
	if req.BirthDate != nil && req.DeathDate != nil && req.DeathDate.Before(*req.BirthDate) {
		return utils.ValidationErrors{
			"death_date": {"death date must not precede birth date"},
		}
	}
	return nil
}

func (sc *ShejireController) findTree(c *fiber.Ctx, preloadNodes bool) (*models.ShejireTree, error) {
	query := sc.DB.Preload("User").Preload("Moderator")
	if preloadNodes {
		query = query.Preload("Nodes", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		})
	}
	var tree models.ShejireTree
	if err := query.First(&tree, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return nil, err
	}
	return &tree, nil
}

// Index lists approved trees for everyone; admins and moderators may widen
// the view with ?status=.
func (sc *ShejireController) Index(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := utils.ClampPerPage(c.QueryInt("per_page", 20), 20)

	query := sc.DB.Model(&models.ShejireTree{}).Preload("User")
	status := c.Query("status")
	privileged := user.IsAdminRole() || user.IsModeratorRole()
	switch {
	case privileged && status != "":
		query = query.Where("status = ?", status)
	case user != nil:
		// Owners see their own trees regardless of moderation state.
		query = query.Where("status = ? OR user_id = ?", models.TreeStatusApproved, user.ID)
	default:
		query = query.Where("status = ?", models.TreeStatusApproved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count trees",
		})
	}

	var trees []models.ShejireTree
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&trees).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch trees",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:    trees,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (sc *ShejireController) Show(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, true)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	user := middleware.CurrentUser(c)
	if !models.CanViewTree(user, tree) {
		// Hide the existence of unapproved trees from outsiders.
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	return c.JSON(fiber.Map{
		"tree": tree,
	})
}

func (sc *ShejireController) MyTrees(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var trees []models.ShejireTree
	if err := sc.DB.Where("user_id = ?", user.ID).
		Preload("Moderator").
		Order("created_at DESC").
		Find(&trees).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch trees",
		})
	}

	return c.JSON(fiber.Map{
		"trees": trees,
	})
}

func (sc *ShejireController) Store(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req TreeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	tree := models.ShejireTree{
		UserID: user.ID,
		Title:  req.Title,
		Status: models.TreeStatusPending,
	}
	if err := sc.DB.Create(&tree).Error; err != nil {
		utils.LogError("tree_create_failed", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create tree",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Tree created successfully",
		"tree":    tree,
	})
}

func (sc *ShejireController) Update(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	user := middleware.CurrentUser(c)
	if !models.CanManageTree(user, tree) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You are not allowed to manage this tree",
			"error":   "forbidden",
		})
	}

	var req TreeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(tree).Update("title", req.Title).Error; err != nil {
			return err
		}
		tree.Title = req.Title
		return models.ResetModeration(tx, tree)
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update tree",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Tree updated successfully",
		"tree":    tree,
	})
}

func (sc *ShejireController) Destroy(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	user := middleware.CurrentUser(c)
	if !models.CanManageTree(user, tree) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You are not allowed to manage this tree",
			"error":   "forbidden",
		})
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("shejire_tree_id = ?", tree.ID).
			Delete(&models.ShejireNode{}).Error; err != nil {
			return err
		}
		return tx.Delete(tree).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete tree",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Tree deleted successfully",
	})
}

func (sc *ShejireController) StoreNode(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	user := middleware.CurrentUser(c)
	if !models.CanManageTree(user, tree) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You are not allowed to manage this tree",
			"error":   "forbidden",
		})
	}

	var req NodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}
	if errs := sc.validateDates(&req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	var node models.ShejireNode
	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := models.ValidateNodeParent(tx, tree.ID, req.ParentID); err != nil {
			return err
		}
		sortOrder := 0
		if req.SortOrder != nil {
			sortOrder = *req.SortOrder
		} else {
			next, err := models.NextSortOrder(tx, tree.ID)
			if err != nil {
				return err
			}
			sortOrder = next
		}
		node = models.ShejireNode{
			ShejireTreeID:    tree.ID,
			ParentID:         req.ParentID,
			FullName:         req.FullName,
			BirthDate:        req.BirthDate,
			DeathDate:        req.DeathDate,
			ModeratorComment: req.ModeratorComment,
			SortOrder:        sortOrder,
		}
		if err := tx.Create(&node).Error; err != nil {
			return err
		}
		return models.ResetModeration(tx, tree)
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidParent) {
			return utils.ValidationErrorResponse(c, utils.ValidationErrors{
				"parent_id": {"parent node must belong to the same tree"},
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create node",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Node created successfully",
		"node":    node,
	})
}

func (sc *ShejireController) findNode(c *fiber.Ctx, tree *models.ShejireTree) (*models.ShejireNode, error) {
	var node models.ShejireNode
	err := sc.DB.Where("id = ? AND shejire_tree_id = ?", utils.ParseUint(c.Params("nodeId")), tree.ID).
		First(&node).Error
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (sc *ShejireController) UpdateNode(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	user := middleware.CurrentUser(c)
	if !models.CanManageTree(user, tree) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You are not allowed to manage this tree",
			"error":   "forbidden",
		})
	}

	node, err := sc.findNode(c, tree)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Node not found",
		})
	}

	var req NodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}
	if errs := sc.validateDates(&req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}
	if req.ParentID != nil && *req.ParentID == node.ID {
		return utils.ValidationErrorResponse(c, utils.ValidationErrors{
			"parent_id": {"node cannot be its own parent"},
		})
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := models.ValidateNodeParent(tx, tree.ID, req.ParentID); err != nil {
			return err
		}
		node.ParentID = req.ParentID
		node.FullName = req.FullName
		node.BirthDate = req.BirthDate
		node.DeathDate = req.DeathDate
		node.ModeratorComment = req.ModeratorComment
		if req.SortOrder != nil {
			node.SortOrder = *req.SortOrder
		}
		if err := tx.Model(node).
			Select("parent_id", "full_name", "birth_date", "death_date",
				"moderator_comment", "sort_order").
			Updates(node).Error; err != nil {
			return err
		}
		return models.ResetModeration(tx, tree)
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidParent) {
			return utils.ValidationErrorResponse(c, utils.ValidationErrors{
				"parent_id": {"parent node must belong to the same tree"},
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update node",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Node updated successfully",
		"node":    node,
	})
}

// DestroyNode removes a node and reparents its children to the removed
// node's parent so the rest of the branch survives.
func (sc *ShejireController) DestroyNode(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	user := middleware.CurrentUser(c)
	if !models.CanManageTree(user, tree) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You are not allowed to manage this tree",
			"error":   "forbidden",
		})
	}

	node, err := sc.findNode(c, tree)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Node not found",
		})
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ShejireNode{}).
			Where("shejire_tree_id = ? AND parent_id = ?", tree.ID, node.ID).
			Update("parent_id", node.ParentID).Error; err != nil {
			return err
		}
		if err := tx.Delete(node).Error; err != nil {
			return err
		}
		return models.ResetModeration(tx, tree)
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete node",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Node deleted successfully",
	})
}

// ModerationIndex lists trees waiting for review, newest first.
func (sc *ShejireController) ModerationIndex(c *fiber.Ctx) error {
	var trees []models.ShejireTree
	if err := sc.DB.Where("status = ?", models.TreeStatusPending).
		Preload("User").
		Preload("Nodes", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		Order("created_at DESC").
		Find(&trees).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch moderation queue",
		})
	}

	return c.JSON(fiber.Map{
		"trees": trees,
	})
}

func (sc *ShejireController) Approve(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	moderator := middleware.CurrentUser(c)
	if err := models.ApproveTree(sc.DB, tree, moderator.ID); err != nil {
		if errors.Is(err, models.ErrAlreadyProcessed) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Tree has already been moderated",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to approve tree",
		})
	}

	utils.LogEvent("tree_approved", map[string]interface{}{
		"tree_id":      tree.ID,
		"moderator_id": moderator.ID,
	})
	return c.JSON(fiber.Map{
		"message": "Tree approved",
		"tree":    tree,
	})
}

func (sc *ShejireController) Reject(c *fiber.Ctx) error {
	tree, err := sc.findTree(c, false)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tree not found",
		})
	}

	var req RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return utils.ValidationErrorResponse(c, errs)
	}

	moderator := middleware.CurrentUser(c)
	if err := models.RejectTree(sc.DB, tree, moderator.ID, req.Reason); err != nil {
		if errors.Is(err, models.ErrAlreadyProcessed) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Tree has already been moderated",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reject tree",
		})
	}

	utils.LogEvent("tree_rejected", map[string]interface{}{
		"tree_id":      tree.ID,
		"moderator_id": moderator.ID,
	})
	return c.JSON(fiber.Map{
		"message": "Tree rejected",
		"tree":    tree,
	})
}
