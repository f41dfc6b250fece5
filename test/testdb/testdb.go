// Package testdb provides an in-memory SQLite database and fixtures for service tests.
package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
)

// New opens a migrated in-memory database closed at test cleanup.
func New(t *testing.T) *repository.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := repository.Wrap(gdb)
	require.NoError(t, db.AutoMigrate())

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// CreateUser inserts an active user with the given XP.
func CreateUser(t *testing.T, db *repository.DB, username string, xp int) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		XP:           xp,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateStory inserts a published story with one chapter per stepsPerChapter entry.
// Every step is worth xpReward XP.
func CreateStory(t *testing.T, db *repository.DB, slug string, xpReward int, stepsPerChapter ...int) *models.Story {
	t.Helper()

	story := &models.Story{Slug: slug, Title: slug, IsPublished: true}
	for c, n := range stepsPerChapter {
		chapter := models.Chapter{Title: fmt.Sprintf("%s chapter %d", slug, c+1), OrderIndex: c}
		for s := 0; s < n; s++ {
			chapter.Steps = append(chapter.Steps, models.Step{
				Title:      fmt.Sprintf("%s step %d.%d", slug, c+1, s+1),
				XPReward:   xpReward,
				OrderIndex: s,
			})
		}
		story.Chapters = append(story.Chapters, chapter)
	}
	require.NoError(t, repository.NewContentRepository(db).CreateStoryTree(story))
	return story
}

// CreateSlides inserts n text slides for a step.
func CreateSlides(t *testing.T, db *repository.DB, stepID uint, n int) []models.Slide {
	t.Helper()

	slides := make([]models.Slide, 0, n)
	for i := 0; i < n; i++ {
		slide := models.Slide{StepID: stepID, OrderIndex: i}
		require.NoError(t, slide.SetBlocks([]models.Block{{
			ID:   fmt.Sprintf("s%d-b1", i+1),
			Kind: models.BlockText,
			Text: &models.TextContent{Paragraphs: []string{fmt.Sprintf("slide %d", i+1)}},
		}}))
		require.NoError(t, db.Create(&slide).Error)
		slides = append(slides, slide)
	}
	return slides
}

// Enroll enrolls the user in the story.
func Enroll(t *testing.T, db *repository.DB, userID, storyID uint) {
	t.Helper()

	require.NoError(t, db.Create(&models.Enrollment{UserID: userID, StoryID: storyID, EnrolledAt: time.Now()}).Error)
}

// Steps flattens the story's steps in order.
func Steps(story *models.Story) []models.Step {
	var steps []models.Step
	for _, ch := range story.Chapters {
		steps = append(steps, ch.Steps...)
	}
	return steps
}
