package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/calculus-api/internal/models"
)

// AchievementRepository handles achievement catalog and award operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// GetAll retrieves the whole catalog in evaluation order.
func (r *AchievementRepository) GetAll() ([]models.Achievement, error) {
	var achievements []models.Achievement
	if err := r.db.Order("id ASC").Find(&achievements).Error; err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return achievements, nil
}

// GetUnearned retrieves the achievements the user has not earned yet, in evaluation order.
func (r *AchievementRepository) GetUnearned(userID uint) ([]models.Achievement, error) {
	earned := r.db.Model(&models.UserAchievement{}).
		Select("achievement_id").
		Where("user_id = ?", userID)

	var achievements []models.Achievement
	err := r.db.Where("id NOT IN (?)", earned).Order("id ASC").Find(&achievements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unearned achievements of user %d: %w", userID, err)
	}
	return achievements, nil
}

// Award records an earned achievement. Returns false when it was already earned.
func (r *AchievementRepository) Award(userID, achievementID uint, at time.Time) (bool, error) {
	ua := &models.UserAchievement{UserID: userID, AchievementID: achievementID, EarnedAt: at}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(ua)
	if result.Error != nil {
		return false, fmt.Errorf("failed to award achievement %d to user %d: %w", achievementID, userID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetUserAchievements retrieves earned achievements with details, most recent first.
func (r *AchievementRepository) GetUserAchievements(userID uint) ([]models.UserAchievement, error) {
	var earned []models.UserAchievement
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Achievement").
		Order("earned_at DESC").
		Order("id DESC").
		Find(&earned).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements of user %d: %w", userID, err)
	}
	return earned, nil
}

// CountByUser returns the number of achievements the user has earned.
func (r *AchievementRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.UserAchievement{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count achievements of user %d: %w", userID, err)
	}
	return count, nil
}

// SeedCatalog inserts catalog entries whose code is not present yet.
// Returns the number of inserted entries.
func (r *AchievementRepository) SeedCatalog(catalog []models.Achievement) (int, error) {
	inserted := 0
	for i := range catalog {
		result := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&catalog[i])
		if result.Error != nil {
			return inserted, fmt.Errorf("failed to seed achievement %s: %w", catalog[i].Code, result.Error)
		}
		inserted += int(result.RowsAffected)
	}
	return inserted, nil
}
