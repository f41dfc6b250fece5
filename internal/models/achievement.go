// Package models defines domain models for the learning backend.
package models

import (
	"time"
)

// RequirementType names the user statistic an achievement is measured against.
type RequirementType string

// Requirement types.
const (
	RequirementXP      RequirementType = "xp"
	RequirementSteps   RequirementType = "steps"
	RequirementStreak  RequirementType = "streak"
	RequirementStories RequirementType = "stories"
)

// Achievement is a static catalog entry that can be earned once per user.
type Achievement struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Code             string          `gorm:"uniqueIndex;not null;size:100" json:"code"`
	Title            string          `gorm:"not null;size:100" json:"title"`
	Description      string          `gorm:"type:text" json:"description"`
	Icon             string          `gorm:"size:50" json:"icon"`
	Category         string          `gorm:"size:50" json:"category"`
	Rarity           string          `gorm:"size:20;default:common" json:"rarity"`
	XPReward         int             `gorm:"column:xp_reward;not null;default:0" json:"xp_reward"`
	RequirementType  RequirementType `gorm:"size:20;not null" json:"requirement_type"`
	RequirementValue int             `gorm:"not null" json:"requirement_value"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// UserAchievement represents an achievement earned by a user.
type UserAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
	EarnedAt      time.Time   `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}

// UserStats is the snapshot achievements are evaluated against.
type UserStats struct {
	XP               int `json:"xp"`
	CompletedSteps   int `json:"completed_steps"`
	CurrentStreak    int `json:"current_streak"`
	CompletedStories int `json:"completed_stories"`
}

// Metric returns the statistic named by a requirement type.
func (s UserStats) Metric(t RequirementType) (int, bool) {
	switch t {
	case RequirementXP:
		return s.XP, true
	case RequirementSteps:
		return s.CompletedSteps, true
	case RequirementStreak:
		return s.CurrentStreak, true
	case RequirementStories:
		return s.CompletedStories, true
	}
	return 0, false
}

// Meets reports whether the stats satisfy the achievement requirement (inclusive).
func (a *Achievement) Meets(stats UserStats) bool {
	v, ok := stats.Metric(a.RequirementType)
	return ok && v >= a.RequirementValue
}
