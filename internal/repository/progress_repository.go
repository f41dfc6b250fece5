package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/calculus-api/internal/models"
)

// ProgressRepository handles enrollments and completion events.
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Enroll creates an enrollment. Returns false when the user was already enrolled.
func (r *ProgressRepository) Enroll(userID, storyID uint, at time.Time) (bool, error) {
	enrollment := &models.Enrollment{UserID: userID, StoryID: storyID, EnrolledAt: at}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(enrollment)
	if result.Error != nil {
		return false, fmt.Errorf("failed to enroll user %d in story %d: %w", userID, storyID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsEnrolled checks if a user is enrolled in a story.
func (r *ProgressRepository) IsEnrolled(userID, storyID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Enrollment{}).
		Where("user_id = ? AND story_id = ?", userID, storyID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return count > 0, nil
}

// EnrolledStoryIDs returns the subset of storyIDs the user is enrolled in.
func (r *ProgressRepository) EnrolledStoryIDs(userID uint, storyIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool)
	if len(storyIDs) == 0 {
		return out, nil
	}
	var ids []uint
	err := r.db.Model(&models.Enrollment{}).
		Where("user_id = ? AND story_id IN ?", userID, storyIDs).
		Pluck("story_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollments: %w", err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// GetEnrollments returns the user's enrollments, most recent first, with stories preloaded.
func (r *ProgressRepository) GetEnrollments(userID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.
		Preload("Story").
		Preload("Story.Category").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Order("id DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollments of user %d: %w", userID, err)
	}
	return enrollments, nil
}

// CreateStepCompletion appends a step completion unless one exists for (user, step).
// Returns false when the step was already completed.
func (r *ProgressRepository) CreateStepCompletion(completion *models.StepCompletion) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(completion)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record completion of step %d: %w", completion.StepID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CreateSlideCompletion appends a slide completion unless one exists for (user, slide).
// Returns false when the slide was already completed.
func (r *ProgressRepository) CreateSlideCompletion(completion *models.SlideCompletion) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(completion)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record completion of slide %d: %w", completion.SlideID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// HasCompletedStep checks for an existing step completion.
func (r *ProgressRepository) HasCompletedStep(userID, stepID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.StepCompletion{}).
		Where("user_id = ? AND step_id = ?", userID, stepID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check step completion: %w", err)
	}
	return count > 0, nil
}

// CompletedStepIDs returns the steps of a story the user has completed.
func (r *ProgressRepository) CompletedStepIDs(userID, storyID uint) (map[uint]bool, error) {
	var ids []uint
	err := r.db.Model(&models.StepCompletion{}).
		Joins("JOIN steps ON steps.id = step_completions.step_id").
		Joins("JOIN chapters ON chapters.id = steps.chapter_id").
		Where("step_completions.user_id = ? AND chapters.story_id = ?", userID, storyID).
		Pluck("step_completions.step_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get completed steps: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// CompletedSlideIDs returns the slides of a step the user has completed.
func (r *ProgressRepository) CompletedSlideIDs(userID, stepID uint) (map[uint]bool, error) {
	var ids []uint
	err := r.db.Model(&models.SlideCompletion{}).
		Where("user_id = ? AND step_id = ?", userID, stepID).
		Pluck("slide_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get completed slides: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// CountCompletedSteps returns the number of distinct steps the user has completed.
func (r *ProgressRepository) CountCompletedSteps(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.StepCompletion{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count completed steps: %w", err)
	}
	return count, nil
}

type storyCount struct {
	StoryID uint
	Count   int64
}

// StepCountsByStory returns the total number of steps for each story in one query.
func (r *ProgressRepository) StepCountsByStory(storyIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(storyIDs))
	if len(storyIDs) == 0 {
		return out, nil
	}
	var rows []storyCount
	err := r.db.Model(&models.Step{}).
		Select("chapters.story_id AS story_id, COUNT(steps.id) AS count").
		Joins("JOIN chapters ON chapters.id = steps.chapter_id").
		Where("chapters.story_id IN ?", storyIDs).
		Group("chapters.story_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count steps by story: %w", err)
	}
	for _, row := range rows {
		out[row.StoryID] = row.Count
	}
	return out, nil
}

// CompletedCountsByStory returns the number of distinct completed steps per story in one query.
func (r *ProgressRepository) CompletedCountsByStory(userID uint, storyIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(storyIDs))
	if len(storyIDs) == 0 {
		return out, nil
	}
	var rows []storyCount
	err := r.db.Model(&models.StepCompletion{}).
		Select("chapters.story_id AS story_id, COUNT(DISTINCT step_completions.step_id) AS count").
		Joins("JOIN steps ON steps.id = step_completions.step_id").
		Joins("JOIN chapters ON chapters.id = steps.chapter_id").
		Where("step_completions.user_id = ? AND chapters.story_id IN ?", userID, storyIDs).
		Group("chapters.story_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count completed steps by story: %w", err)
	}
	for _, row := range rows {
		out[row.StoryID] = row.Count
	}
	return out, nil
}

// StoriesWithCompletions returns the ids of stories in which the user completed at least one step.
func (r *ProgressRepository) StoriesWithCompletions(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.StepCompletion{}).
		Joins("JOIN steps ON steps.id = step_completions.step_id").
		Joins("JOIN chapters ON chapters.id = steps.chapter_id").
		Where("step_completions.user_id = ?", userID).
		Group("chapters.story_id").
		Pluck("chapters.story_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get stories with completions: %w", err)
	}
	return ids, nil
}

// CompletionTimes returns the instants of all step and slide completions of the user
// within [from, to).
func (r *ProgressRepository) CompletionTimes(userID uint, from, to time.Time) ([]time.Time, error) {
	var stepTimes []time.Time
	err := r.db.Model(&models.StepCompletion{}).
		Where("user_id = ? AND completed_at >= ? AND completed_at < ?", userID, from, to).
		Pluck("completed_at", &stepTimes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get step completion times: %w", err)
	}

	var slideTimes []time.Time
	err = r.db.Model(&models.SlideCompletion{}).
		Where("user_id = ? AND completed_at >= ? AND completed_at < ?", userID, from, to).
		Pluck("completed_at", &slideTimes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get slide completion times: %w", err)
	}

	return append(stepTimes, slideTimes...), nil
}
