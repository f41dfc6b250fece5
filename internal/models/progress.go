package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Enrollment links a user to a story; required before completing its steps.
type Enrollment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_story" json:"user_id"`
	StoryID    uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_story;index" json:"story_id"`
	Story      *Story    `gorm:"foreignKey:StoryID" json:"story,omitempty"`
	EnrolledAt time.Time `gorm:"not null;index" json:"enrolled_at"`
}

// TableName specifies the table name for Enrollment model.
func (Enrollment) TableName() string {
	return "enrollments"
}

// StepCompletion records the first completion of a step by a user.
type StepCompletion struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_step_completion_user_step" json:"user_id"`
	StepID           uint      `gorm:"not null;uniqueIndex:idx_step_completion_user_step;index" json:"step_id"`
	Score            int       `gorm:"not null;default:0" json:"score"`
	TimeSpentSeconds int       `gorm:"not null;default:0" json:"time_spent_seconds"`
	XPEarned         int       `gorm:"column:xp_earned;not null;default:0" json:"xp_earned"`
	CompletedAt      time.Time `gorm:"not null;index" json:"completed_at"`
}

// TableName specifies the table name for StepCompletion model.
func (StepCompletion) TableName() string {
	return "step_completions"
}

// SlideCompletion records the first completion of a slide by a user.
type SlideCompletion struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_slide_completion_user_slide" json:"user_id"`
	SlideID     uint      `gorm:"not null;uniqueIndex:idx_slide_completion_user_slide" json:"slide_id"`
	StepID      uint      `gorm:"not null;index" json:"step_id"`
	XPEarned    int       `gorm:"column:xp_earned;not null;default:0" json:"xp_earned"`
	CompletedAt time.Time `gorm:"not null;index" json:"completed_at"`
}

// TableName specifies the table name for SlideCompletion model.
func (SlideCompletion) TableName() string {
	return "slide_completions"
}

// WeekDays flags activity per day, Monday=0 through Sunday=6.
// Stored as a 7 character string of '0' and '1'.
type WeekDays [7]bool

// Or merges other into a copy of d.
func (d WeekDays) Or(other WeekDays) WeekDays {
	for i := range d {
		d[i] = d[i] || other[i]
	}
	return d
}

// String encodes the flags as "1100000".
func (d WeekDays) String() string {
	b := make([]byte, len(d))
	for i, v := range d {
		if v {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

// Value implements driver.Valuer.
func (d WeekDays) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *WeekDays) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*d = WeekDays{}
		return nil
	default:
		return fmt.Errorf("unsupported week days type %T", src)
	}
	if len(s) != len(d) {
		return fmt.Errorf("invalid week days %q", s)
	}
	var out WeekDays
	for i := range s {
		switch s[i] {
		case '1':
			out[i] = true
		case '0':
		default:
			return fmt.Errorf("invalid week days %q", s)
		}
	}
	*d = out
	return nil
}

// WeeklyStreakRecord stores the activity calendar of one user for one Monday-aligned week.
type WeeklyStreakRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_weekly_streak_user_week" json:"user_id"`
	WeekStart time.Time `gorm:"type:date;not null;uniqueIndex:idx_weekly_streak_user_week" json:"week_start"`
	Days      WeekDays  `gorm:"type:varchar(7);not null" json:"days"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for WeeklyStreakRecord model.
func (WeeklyStreakRecord) TableName() string {
	return "weekly_streak_records"
}
