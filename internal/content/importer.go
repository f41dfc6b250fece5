package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// Defaults applied to course documents that omit a field.
const (
	defaultCategoryIcon = "📚"
	defaultStoryIcon    = "📖"
	defaultDifficulty   = "beginner"
	defaultHours        = 2.0
	defaultStepXP       = 10
)

// CategoryDocument is one entry of categories.json.
type CategoryDocument struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Icon string `json:"icon"`
}

// CourseDocument is a story file under courses/.
type CourseDocument struct {
	Slug           string            `json:"slug"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Icon           string            `json:"icon"`
	Color          string            `json:"color"`
	ThumbnailURL   string            `json:"thumbnail_url"`
	Difficulty     string            `json:"difficulty"`
	EstimatedHours *float64          `json:"estimated_hours,omitempty"`
	IsPublished    *bool             `json:"is_published,omitempty"`
	IsFeatured     bool              `json:"is_featured"`
	OrderIndex     int               `json:"order_index"`
	CategorySlug   string            `json:"category_slug"`
	Chapters       []ChapterDocument `json:"chapters"`
}

// ChapterDocument is a chapter of a course document, or a chapter.json of a course folder.
type ChapterDocument struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Steps       []StepDocument `json:"steps"`
}

// StepDocument is a step with its slides. It is also the output format of the lesson generator.
type StepDocument struct {
	ID          string          `json:"id,omitempty"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	XPReward    *int            `json:"xp_reward,omitempty"`
	Slides      []SlideDocument `json:"slides"`
}

// SlideDocument is an ordered list of typed blocks.
type SlideDocument struct {
	Blocks []models.Block `json:"blocks"`
}

// Validate checks that every block id is present and unique within the step and that
// quiz answers name one of their options.
func (d *StepDocument) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("step title is required")
	}
	seen := make(map[string]bool)
	for i, slide := range d.Slides {
		for _, block := range slide.Blocks {
			if block.ID == "" {
				return fmt.Errorf("slide %d: block without id", i+1)
			}
			if seen[block.ID] {
				return fmt.Errorf("slide %d: duplicate block id %q", i+1, block.ID)
			}
			seen[block.ID] = true

			if block.Kind == models.BlockQuiz && block.Quiz != nil {
				if err := validateQuiz(block.Quiz); err != nil {
					return fmt.Errorf("slide %d: quiz %q: %w", i+1, block.ID, err)
				}
			}
		}
	}
	return nil
}

func validateQuiz(q *models.QuizContent) error {
	if len(q.Options) < 2 {
		return errors.New("needs at least two options")
	}
	for _, o := range q.Options {
		if o.Value == q.Correct {
			return nil
		}
	}
	return fmt.Errorf("correct answer %q is not an option", q.Correct)
}

// Validate checks the course identity and every step of every chapter.
func (d *CourseDocument) Validate() error {
	if d.Slug == "" || d.Title == "" {
		return errors.New("course slug and title are required")
	}
	for c := range d.Chapters {
		for st := range d.Chapters[c].Steps {
			if err := d.Chapters[c].Steps[st].Validate(); err != nil {
				return fmt.Errorf("chapter %d step %d: %w", c+1, st+1, err)
			}
		}
	}
	return nil
}

// ParseStepDocument decodes and validates a step document.
func ParseStepDocument(data []byte) (*StepDocument, error) {
	var doc StepDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode step document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Store persists imported content.
type Store interface {
	GetCategoryBySlug(slug string) (*models.Category, error)
	CreateCategory(category *models.Category) error
	StoryExists(slug string) (bool, error)
	CreateStoryTree(story *models.Story) error
}

// ImportReport counts what an import changed.
type ImportReport struct {
	CategoriesAdded int
	StoriesAdded    int
	StoriesSkipped  int
}

// Importer loads a content directory into the database.
type Importer struct {
	store Store
	log   *logger.Logger
}

// NewImporter creates a new importer.
func NewImporter(repo *repository.ContentRepository, log *logger.Logger) *Importer {
	return &Importer{store: repo, log: log}
}

// NewImporterWithInterfaces creates a new importer with interface dependencies (useful for testing).
func NewImporterWithInterfaces(store Store, log *logger.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import reads dir/categories.json and dir/courses/*.json. Missing categories are
// inserted; stories whose slug already exists are skipped unchanged.
func (im *Importer) Import(dir string) (*ImportReport, error) {
	report := &ImportReport{}

	categories, err := im.importCategories(filepath.Join(dir, "categories.json"))
	if err != nil {
		return nil, err
	}
	report.CategoriesAdded = categories

	files, err := filepath.Glob(filepath.Join(dir, "courses", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	for _, file := range files {
		added, err := im.importCourse(file)
		if err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", filepath.Base(file), err)
		}
		if added {
			report.StoriesAdded++
		} else {
			report.StoriesSkipped++
		}
	}

	im.log.Info().
		Str("dir", dir).
		Int("categories_added", report.CategoriesAdded).
		Int("stories_added", report.StoriesAdded).
		Int("stories_skipped", report.StoriesSkipped).
		Msg("Content import finished")
	return report, nil
}

func (im *Importer) importCategories(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read categories: %w", err)
	}

	var docs []CategoryDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return 0, fmt.Errorf("failed to decode categories: %w", err)
	}

	added := 0
	for _, doc := range docs {
		if doc.Slug == "" || doc.Name == "" {
			return added, fmt.Errorf("category %q: name and slug are required", doc.Slug)
		}
		if _, err := im.store.GetCategoryBySlug(doc.Slug); err == nil {
			continue
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return added, err
		}

		icon := doc.Icon
		if icon == "" {
			icon = defaultCategoryIcon
		}
		if err := im.store.CreateCategory(&models.Category{Name: doc.Name, Slug: doc.Slug, Icon: icon}); err != nil {
			return added, err
		}
		im.log.Debug().Str("category", doc.Slug).Msg("Category added")
		added++
	}
	return added, nil
}

func (im *Importer) importCourse(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read course: %w", err)
	}

	var doc CourseDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to decode course: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return false, err
	}

	exists, err := im.store.StoryExists(doc.Slug)
	if err != nil {
		return false, err
	}
	if exists {
		im.log.Info().Str("story", doc.Slug).Msg("Story already exists, skipping")
		return false, nil
	}

	story, err := im.buildStory(&doc)
	if err != nil {
		return false, err
	}
	if err := im.store.CreateStoryTree(story); err != nil {
		return false, err
	}

	im.log.Info().
		Str("story", story.Slug).
		Int("chapters", len(story.Chapters)).
		Msg("Story imported")
	return true, nil
}

func (im *Importer) buildStory(doc *CourseDocument) (*models.Story, error) {
	story := &models.Story{
		Slug:           doc.Slug,
		Title:          doc.Title,
		Description:    doc.Description,
		Icon:           orDefault(doc.Icon, defaultStoryIcon),
		Color:          doc.Color,
		ThumbnailURL:   doc.ThumbnailURL,
		Difficulty:     orDefault(doc.Difficulty, defaultDifficulty),
		EstimatedHours: defaultHours,
		IsPublished:    true,
		IsFeatured:     doc.IsFeatured,
		OrderIndex:     doc.OrderIndex,
	}
	if doc.EstimatedHours != nil {
		story.EstimatedHours = *doc.EstimatedHours
	}
	if doc.IsPublished != nil {
		story.IsPublished = *doc.IsPublished
	}

	if doc.CategorySlug != "" {
		category, err := im.store.GetCategoryBySlug(doc.CategorySlug)
		switch {
		case err == nil:
			story.CategoryID = &category.ID
		case errors.Is(err, apperr.ErrNotFound):
			im.log.Warn().Str("story", doc.Slug).Str("category", doc.CategorySlug).Msg("Unknown category, importing without one")
		default:
			return nil, err
		}
	}

	for c, ch := range doc.Chapters {
		chapter := models.Chapter{Title: ch.Title, Description: ch.Description, OrderIndex: c}
		for s := range ch.Steps {
			step, err := buildStep(&ch.Steps[s], s)
			if err != nil {
				return nil, fmt.Errorf("chapter %d step %d: %w", c+1, s+1, err)
			}
			chapter.Steps = append(chapter.Steps, *step)
		}
		story.Chapters = append(story.Chapters, chapter)
	}
	return story, nil
}

// buildStep converts a validated step document.
func buildStep(doc *StepDocument, index int) (*models.Step, error) {
	step := &models.Step{
		Slug:        orDefault(doc.Slug, fmt.Sprintf("step-%d", index+1)),
		Title:       doc.Title,
		Description: doc.Description,
		XPReward:    defaultStepXP,
		OrderIndex:  index,
	}
	if doc.XPReward != nil {
		step.XPReward = *doc.XPReward
	}

	for i, sd := range doc.Slides {
		slide := models.Slide{OrderIndex: i}
		if err := slide.SetBlocks(sd.Blocks); err != nil {
			return nil, err
		}
		step.Slides = append(step.Slides, slide)
	}
	return step, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
