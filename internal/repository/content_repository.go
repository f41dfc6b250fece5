package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/aimd54/calculus-api/internal/models"
)

// StoryFilter narrows story listings.
type StoryFilter struct {
	Search   string
	Featured bool
	// EnrolledBy restricts results to stories the user is enrolled in when non-zero.
	EnrolledBy uint
	Limit      int
	Offset     int
}

// ContentRepository handles category, story, chapter, step and slide reads and imports.
type ContentRepository struct {
	db *DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// ListCategories returns all categories ordered by name.
func (r *ContentRepository) ListCategories() ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetCategoryBySlug retrieves a category by slug.
func (r *ContentRepository) GetCategoryBySlug(slug string) (*models.Category, error) {
	var category models.Category
	if err := r.db.Where("slug = ?", slug).First(&category).Error; err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", slug, notFound(err, "category"))
	}
	return &category, nil
}

// CreateCategory inserts a category.
func (r *ContentRepository) CreateCategory(category *models.Category) error {
	if err := r.db.Create(category).Error; err != nil {
		return fmt.Errorf("failed to create category %s: %w", category.Slug, err)
	}
	return nil
}

// ListStories returns published stories matching the filter.
func (r *ContentRepository) ListStories(filter StoryFilter) ([]models.Story, error) {
	query := r.db.Model(&models.Story{}).
		Preload("Category").
		Where("stories.is_published = ?", true)

	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(stories.title) LIKE ? OR LOWER(stories.description) LIKE ?", like, like)
	}
	if filter.Featured {
		query = query.Where("stories.is_featured = ?", true)
	}
	if filter.EnrolledBy != 0 {
		query = query.
			Joins("JOIN enrollments ON enrollments.story_id = stories.id").
			Where("enrollments.user_id = ?", filter.EnrolledBy)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var stories []models.Story
	if err := query.Order("stories.order_index ASC").Order("stories.id ASC").Find(&stories).Error; err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// ChapterCounts returns the number of chapters of each story in one query.
func (r *ContentRepository) ChapterCounts(storyIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(storyIDs))
	if len(storyIDs) == 0 {
		return out, nil
	}
	var rows []storyCount
	err := r.db.Model(&models.Chapter{}).
		Select("story_id, COUNT(id) AS count").
		Where("story_id IN ?", storyIDs).
		Group("story_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count chapters: %w", err)
	}
	for _, row := range rows {
		out[row.StoryID] = row.Count
	}
	return out, nil
}

// GetStoryBySlug retrieves a story with its ordered chapters and steps.
func (r *ContentRepository) GetStoryBySlug(slug string) (*models.Story, error) {
	var story models.Story
	err := r.withTree(r.db.DB).Where("slug = ?", slug).First(&story).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get story %s: %w", slug, notFound(err, "story"))
	}
	return &story, nil
}

// GetStoryByID retrieves a story with its ordered chapters and steps.
func (r *ContentRepository) GetStoryByID(id uint) (*models.Story, error) {
	var story models.Story
	if err := r.withTree(r.db.DB).First(&story, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get story %d: %w", id, notFound(err, "story"))
	}
	return &story, nil
}

func (r *ContentRepository) withTree(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Category").
		Preload("Chapters", func(db *gorm.DB) *gorm.DB {
			return db.Order("chapters.order_index ASC").Order("chapters.id ASC")
		}).
		Preload("Chapters.Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("steps.order_index ASC").Order("steps.id ASC")
		})
}

// GetStep retrieves a step with its chapter and story.
func (r *ContentRepository) GetStep(id uint) (*models.Step, error) {
	var step models.Step
	if err := r.db.Preload("Chapter.Story").First(&step, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get step %d: %w", id, notFound(err, "step"))
	}
	return &step, nil
}

// GetSlides returns the ordered slides of a step.
func (r *ContentRepository) GetSlides(stepID uint) ([]models.Slide, error) {
	var slides []models.Slide
	err := r.db.Where("step_id = ?", stepID).
		Order("order_index ASC").
		Order("id ASC").
		Find(&slides).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get slides of step %d: %w", stepID, err)
	}
	return slides, nil
}

// GetSlide retrieves a slide by ID.
func (r *ContentRepository) GetSlide(id uint) (*models.Slide, error) {
	var slide models.Slide
	if err := r.db.First(&slide, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get slide %d: %w", id, notFound(err, "slide"))
	}
	return &slide, nil
}

// StoryExists reports whether a story with the slug exists.
func (r *ContentRepository) StoryExists(slug string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.Story{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check story %s: %w", slug, err)
	}
	return count > 0, nil
}

// CreateStoryTree inserts a story with its chapters, steps and slides.
func (r *ContentRepository) CreateStoryTree(story *models.Story) error {
	if err := r.db.Session(&gorm.Session{FullSaveAssociations: true}).Create(story).Error; err != nil {
		return fmt.Errorf("failed to create story %s: %w", story.Slug, err)
	}
	return nil
}
