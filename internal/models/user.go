package models

import (
	"time"
)

// XPPerLevel is the XP span of a single level.
const XPPerLevel = 100

// User represents a learner account with cumulative progress counters.
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Email          string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash   string     `gorm:"not null;size:255" json:"-"`
	DisplayName    string     `gorm:"size:100" json:"display_name"`
	AvatarURL      string     `gorm:"size:500" json:"avatar_url"`
	XP             int        `gorm:"column:xp;not null;default:0;index" json:"xp"`
	CurrentStreak  int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak  int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// Level derives the presentation level from XP.
func (u *User) Level() int {
	return LevelFor(u.XP)
}

// NextLevelXP is the XP threshold of the next level.
func (u *User) NextLevelXP() int {
	return u.Level() * XPPerLevel
}

// LevelFor returns xp/100 + 1.
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
