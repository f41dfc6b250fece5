package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Category groups stories on the explore page.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;size:100" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null;size:100" json:"slug"`
	Icon      string    `gorm:"size:50" json:"icon"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Category model.
func (Category) TableName() string {
	return "categories"
}

// Story is a top-level course made of ordered chapters.
type Story struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Slug           string    `gorm:"uniqueIndex;not null;size:200" json:"slug"`
	Title          string    `gorm:"not null;size:200" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Icon           string    `gorm:"size:50" json:"icon"`
	Color          string    `gorm:"size:20" json:"color"`
	ThumbnailURL   string    `gorm:"size:500" json:"thumbnail_url"`
	Difficulty     string    `gorm:"size:20;default:beginner" json:"difficulty"`
	EstimatedHours float64   `gorm:"default:1" json:"estimated_hours"`
	IsPublished    bool      `gorm:"not null;default:true;index" json:"is_published"`
	IsFeatured     bool      `gorm:"not null;default:false" json:"is_featured"`
	OrderIndex     int       `gorm:"not null;default:0" json:"order_index"`
	CategoryID     *uint     `gorm:"index" json:"category_id"`
	Category       *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Chapters       []Chapter `gorm:"foreignKey:StoryID" json:"chapters,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for Story model.
func (Story) TableName() string {
	return "stories"
}

// Chapter is an ordered section of a story.
type Chapter struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	StoryID     uint   `gorm:"not null;index" json:"story_id"`
	Story       *Story `gorm:"foreignKey:StoryID" json:"-"`
	Title       string `gorm:"not null;size:200" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	OrderIndex  int    `gorm:"not null;default:0" json:"order_index"`
	Steps       []Step `gorm:"foreignKey:ChapterID" json:"steps,omitempty"`
}

// TableName specifies the table name for Chapter model.
func (Chapter) TableName() string {
	return "chapters"
}

// Step is the unit of completion and XP reward.
type Step struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	ChapterID   uint     `gorm:"not null;index" json:"chapter_id"`
	Chapter     *Chapter `gorm:"foreignKey:ChapterID" json:"chapter,omitempty"`
	Slug        string   `gorm:"size:200" json:"slug"`
	Title       string   `gorm:"not null;size:200" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	XPReward    int      `gorm:"column:xp_reward;not null;default:10" json:"xp_reward"`
	OrderIndex  int      `gorm:"not null;default:0" json:"order_index"`
	Slides      []Slide  `gorm:"foreignKey:StepID" json:"slides,omitempty"`
}

// TableName specifies the table name for Step model.
func (Step) TableName() string {
	return "steps"
}

// Slide is a page of content blocks within a step.
type Slide struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	StepID     uint           `gorm:"not null;index" json:"step_id"`
	OrderIndex int            `gorm:"not null;default:0" json:"order_index"`
	Blocks     datatypes.JSON `json:"-"`
}

// TableName specifies the table name for Slide model.
func (Slide) TableName() string {
	return "slides"
}

// DecodeBlocks parses the stored block list.
func (s *Slide) DecodeBlocks() ([]Block, error) {
	if len(s.Blocks) == 0 {
		return []Block{}, nil
	}
	var blocks []Block
	if err := json.Unmarshal(s.Blocks, &blocks); err != nil {
		return nil, fmt.Errorf("failed to decode blocks of slide %d: %w", s.ID, err)
	}
	return blocks, nil
}

// SetBlocks encodes blocks into the stored column.
func (s *Slide) SetBlocks(blocks []Block) error {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("failed to encode blocks: %w", err)
	}
	s.Blocks = datatypes.JSON(raw)
	return nil
}
