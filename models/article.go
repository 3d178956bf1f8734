package models

import (
	"time"

	"gorm.io/gorm"
)

// Article belongs to an author and optional category; published means
// published_at is set and not in the future.
type Article struct {
	gorm.Model

	Title   string  `gorm:"not null" json:"title"`
	Slug    string  `gorm:"uniqueIndex;not null" json:"slug"`
	Excerpt *string `json:"excerpt,omitempty"`
	Body    string  `gorm:"type:text;not null" json:"body"`
	Image   *string `json:"image,omitempty"`

	MetaTitle       *string `json:"meta_title,omitempty"`
	MetaDescription *string `json:"meta_description,omitempty"`
	MetaKeywords    *string `json:"meta_keywords,omitempty"`

	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`

	UserID     uint  `gorm:"not null;index" json:"user_id"`
	CategoryID *uint `gorm:"index" json:"category_id,omitempty"`

	// Relations
	Author   User      `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Category *Category `json:"category,omitempty"`
	Tags     []Tag     `gorm:"many2many:article_tags" json:"tags,omitempty"`
}

func (a *Article) IsPublished() bool {
	return a.PublishedAt != nil && !a.PublishedAt.After(time.Now())
}

// Published scopes a query to publicly visible articles.
func Published(db *gorm.DB) *gorm.DB {
	return db.Where("published_at IS NOT NULL AND published_at <= ?", time.Now())
}

type Category struct {
	gorm.Model

	Name      string `gorm:"not null" json:"name"`
	Slug      string `gorm:"uniqueIndex;not null" json:"slug"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`

	Articles []Article `gorm:"foreignKey:CategoryID" json:"articles,omitempty"`
}

type Tag struct {
	gorm.Model

	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	Articles []Article `gorm:"many2many:article_tags" json:"articles,omitempty"`
}
