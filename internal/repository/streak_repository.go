package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/calculus-api/internal/models"
)

// StreakRepository handles weekly streak records.
type StreakRepository struct {
	db *DB
}

// NewStreakRepository creates a new streak repository.
func NewStreakRepository(db *DB) *StreakRepository {
	return &StreakRepository{db: db}
}

// GetWeek returns the record for (user, week start), or nil when none exists.
func (r *StreakRepository) GetWeek(userID uint, weekStart time.Time) (*models.WeeklyStreakRecord, error) {
	var record models.WeeklyStreakRecord
	err := r.db.Where("user_id = ? AND week_start = ?", userID, weekStart).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get week %s of user %d: %w", weekStart.Format("2006-01-02"), userID, err)
	}
	return &record, nil
}

// SaveWeek inserts the record or replaces the days of the existing (user, week start) record.
func (r *StreakRepository) SaveWeek(record *models.WeeklyStreakRecord) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "week_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"days", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save week %s of user %d: %w", record.WeekStart.Format("2006-01-02"), record.UserID, err)
	}
	return nil
}
