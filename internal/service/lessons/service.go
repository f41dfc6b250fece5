// Package lessons serves course content and records step and slide completions.
package lessons

import (
	"context"
	"fmt"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/internal/service/progress"
	"github.com/aimd54/calculus-api/internal/service/streak"
	"github.com/aimd54/calculus-api/pkg/logger"
)

const (
	defaultStoryLimit = 20
	maxStoryLimit     = 100
)

// Ranker ranks a user on the XP leaderboard.
type Ranker interface {
	Rank(user *models.User) (int, error)
}

// AchievementReader builds the progress snapshot achievements are evaluated against
// and counts a user's earned achievements.
type AchievementReader interface {
	Stats(ctx context.Context, user *models.User) (models.UserStats, error)
	CountEarned(ctx context.Context, userID uint) (int, error)
}

// Service handles content reads, enrollment and completion.
type Service struct {
	db           *repository.DB
	content      *repository.ContentRepository
	progressRepo *repository.ProgressRepository
	users        *repository.UserRepository
	aggregator   *progress.Aggregator
	streak       *streak.Engine
	ranker       Ranker
	achievements AchievementReader
	cfg          *config.ProgressConfig
	clock        clock.Clock
	log          *logger.Logger

	// newWeekStore binds the weekly record store to a transaction.
	newWeekStore func(tx *repository.DB) streak.WeekStore
}

// NewService creates a new lessons service.
func NewService(
	db *repository.DB,
	aggregator *progress.Aggregator,
	engine *streak.Engine,
	ranker Ranker,
	achievements AchievementReader,
	cfg *config.ProgressConfig,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		db:           db,
		content:      repository.NewContentRepository(db),
		progressRepo: repository.NewProgressRepository(db),
		users:        repository.NewUserRepository(db),
		aggregator:   aggregator,
		streak:       engine,
		ranker:       ranker,
		achievements: achievements,
		cfg:          cfg,
		clock:        clk,
		log:          log,
		newWeekStore: func(tx *repository.DB) streak.WeekStore {
			return repository.NewStreakRepository(tx)
		},
	}
}

// StoryQuery filters story listings.
type StoryQuery struct {
	Search   string
	Featured bool
	Enrolled bool
	Limit    int
	Offset   int
}

// StorySummary is a story listing row with the caller's progress.
type StorySummary struct {
	ID           uint    `json:"id"`
	Slug         string  `json:"slug"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Icon         string  `json:"icon"`
	Color        string  `json:"color"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Difficulty   string  `json:"difficulty"`
	Hours        float64 `json:"estimated_hours"`
	IsFeatured   bool    `json:"is_featured"`
	CategoryName string  `json:"category_name,omitempty"`
	ChapterCount int     `json:"chapter_count"`
	Progress     int     `json:"progress"`
	IsEnrolled   bool    `json:"is_enrolled"`
	IsCompleted  bool    `json:"is_completed"`
}

// StepView is a step within a story outline.
type StepView struct {
	ID          uint   `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	XPReward    int    `json:"xp_reward"`
	IsCompleted bool   `json:"is_completed"`
	IsCurrent   bool   `json:"is_current"`
}

// ChapterView is a chapter within a story outline.
type ChapterView struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Steps       []StepView `json:"steps"`
}

// StoryDetail is a story outline with the caller's progress.
type StoryDetail struct {
	StorySummary
	Chapters []ChapterView `json:"chapters"`
}

// StepDetail is a single step with its location.
type StepDetail struct {
	ID           uint   `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	XPReward     int    `json:"xp_reward"`
	ChapterTitle string `json:"chapter_title"`
	StorySlug    string `json:"story_slug"`
	IsCompleted  bool   `json:"is_completed"`
}

// SlideView is a slide with typed blocks.
type SlideView struct {
	ID          uint           `json:"id"`
	OrderIndex  int            `json:"order_index"`
	Blocks      []models.Block `json:"blocks"`
	IsCompleted bool           `json:"is_completed"`
}

// ListCategories returns all categories.
func (s *Service) ListCategories(_ context.Context) ([]models.Category, error) {
	return s.content.ListCategories()
}

// ListStories lists published stories with the caller's enrollment and progress.
// userID is 0 for anonymous callers.
func (s *Service) ListStories(ctx context.Context, userID uint, q StoryQuery) ([]StorySummary, error) {
	if q.Enrolled && userID == 0 {
		return nil, apperr.Unauthorized("sign in to list enrolled stories")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultStoryLimit
	}
	if limit > maxStoryLimit {
		limit = maxStoryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	filter := repository.StoryFilter{
		Search:   q.Search,
		Featured: q.Featured,
		Limit:    limit,
		Offset:   offset,
	}
	if q.Enrolled {
		filter.EnrolledBy = userID
	}

	stories, err := s.content.ListStories(filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(stories))
	for _, st := range stories {
		ids = append(ids, st.ID)
	}

	chapters, err := s.content.ChapterCounts(ids)
	if err != nil {
		return nil, err
	}

	enrolled := map[uint]bool{}
	percents := map[uint]int{}
	if userID != 0 {
		if enrolled, err = s.progressRepo.EnrolledStoryIDs(userID, ids); err != nil {
			return nil, err
		}
		if percents, err = s.aggregator.Batch(ctx, userID, ids); err != nil {
			return nil, err
		}
	}

	out := make([]StorySummary, 0, len(stories))
	for i := range stories {
		summary := summarize(&stories[i], int(chapters[stories[i].ID]), enrolled[stories[i].ID], percents[stories[i].ID])
		out = append(out, summary)
	}
	return out, nil
}

func summarize(story *models.Story, chapterCount int, enrolled bool, percent int) StorySummary {
	summary := StorySummary{
		ID:           story.ID,
		Slug:         story.Slug,
		Title:        story.Title,
		Description:  story.Description,
		Icon:         story.Icon,
		Color:        story.Color,
		ThumbnailURL: story.ThumbnailURL,
		Difficulty:   story.Difficulty,
		Hours:        story.EstimatedHours,
		IsFeatured:   story.IsFeatured,
		ChapterCount: chapterCount,
		IsEnrolled:   enrolled,
	}
	if story.Category != nil {
		summary.CategoryName = story.Category.Name
	}
	if enrolled {
		summary.Progress = percent
		summary.IsCompleted = percent == 100
	}
	return summary
}

// GetStory returns the outline of a story. The first incomplete step of an enrolled
// story is marked current.
func (s *Service) GetStory(ctx context.Context, userID uint, slug string) (*StoryDetail, error) {
	story, err := s.content.GetStoryBySlug(slug)
	if err != nil {
		return nil, err
	}
	return s.outline(ctx, userID, story)
}

func (s *Service) outline(ctx context.Context, userID uint, story *models.Story) (*StoryDetail, error) {
	var enrolled bool
	var percent int
	completed := map[uint]bool{}

	if userID != 0 {
		var err error
		if enrolled, err = s.progressRepo.IsEnrolled(userID, story.ID); err != nil {
			return nil, err
		}
		if enrolled {
			if percent, err = s.aggregator.Story(ctx, userID, story.ID); err != nil {
				return nil, err
			}
			if completed, err = s.progressRepo.CompletedStepIDs(userID, story.ID); err != nil {
				return nil, err
			}
		}
	}

	detail := &StoryDetail{
		StorySummary: summarize(story, len(story.Chapters), enrolled, percent),
		Chapters:     make([]ChapterView, 0, len(story.Chapters)),
	}

	foundCurrent := false
	for _, ch := range story.Chapters {
		view := ChapterView{ID: ch.ID, Title: ch.Title, Description: ch.Description, Steps: make([]StepView, 0, len(ch.Steps))}
		for _, st := range ch.Steps {
			done := completed[st.ID]
			current := enrolled && !done && !foundCurrent
			if current {
				foundCurrent = true
			}
			view.Steps = append(view.Steps, StepView{
				ID:          st.ID,
				Slug:        st.Slug,
				Title:       st.Title,
				Description: st.Description,
				XPReward:    st.XPReward,
				IsCompleted: done,
				IsCurrent:   current,
			})
		}
		detail.Chapters = append(detail.Chapters, view)
	}
	return detail, nil
}

// Enroll enrolls the user in a story. Enrolling twice is a conflict.
func (s *Service) Enroll(_ context.Context, userID uint, slug string) error {
	story, err := s.content.GetStoryBySlug(slug)
	if err != nil {
		return err
	}

	created, err := s.progressRepo.Enroll(userID, story.ID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !created {
		return apperr.Conflict("already enrolled")
	}

	s.log.Info().
		Uint("user_id", userID).
		Str("story", story.Slug).
		Msg("User enrolled")
	return nil
}

// GetStep returns a step with its chapter and story references.
func (s *Service) GetStep(_ context.Context, userID, stepID uint) (*StepDetail, error) {
	step, err := s.content.GetStep(stepID)
	if err != nil {
		return nil, err
	}

	detail := &StepDetail{
		ID:          step.ID,
		Slug:        step.Slug,
		Title:       step.Title,
		Description: step.Description,
		XPReward:    step.XPReward,
	}
	if step.Chapter != nil {
		detail.ChapterTitle = step.Chapter.Title
		if step.Chapter.Story != nil {
			detail.StorySlug = step.Chapter.Story.Slug
		}
	}
	if userID != 0 {
		if detail.IsCompleted, err = s.progressRepo.HasCompletedStep(userID, stepID); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// GetSlides returns the ordered slides of a step with decoded blocks.
func (s *Service) GetSlides(_ context.Context, userID, stepID uint) ([]SlideView, error) {
	if _, err := s.content.GetStep(stepID); err != nil {
		return nil, err
	}

	slides, err := s.content.GetSlides(stepID)
	if err != nil {
		return nil, err
	}

	completed := map[uint]bool{}
	if userID != 0 {
		if completed, err = s.progressRepo.CompletedSlideIDs(userID, stepID); err != nil {
			return nil, err
		}
	}

	out := make([]SlideView, 0, len(slides))
	for i := range slides {
		blocks, err := slides[i].DecodeBlocks()
		if err != nil {
			return nil, fmt.Errorf("failed to load step %d: %w", stepID, err)
		}
		out = append(out, SlideView{
			ID:          slides[i].ID,
			OrderIndex:  slides[i].OrderIndex,
			Blocks:      blocks,
			IsCompleted: completed[slides[i].ID],
		})
	}
	return out, nil
}
