package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/calculus-api/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, notFound(err, "user"))
	}
	return &user, nil
}

// GetByLogin retrieves a user by username or email.
func (r *UserRepository) GetByLogin(login string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ? OR email = ?", login, login).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user by login %s: %w", login, notFound(err, "user"))
	}
	return &user, nil
}

// ExistsByUsernameOrEmail reports whether either identifier is taken.
func (r *UserRepository) ExistsByUsernameOrEmail(username, email string) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

// UpdateProfile persists the editable profile fields.
func (r *UserRepository) UpdateProfile(user *models.User) error {
	err := r.db.Model(user).
		Select("display_name", "avatar_url").
		Updates(map[string]any{"display_name": user.DisplayName, "avatar_url": user.AvatarURL}).Error
	if err != nil {
		return fmt.Errorf("failed to update profile of user %d: %w", user.ID, err)
	}
	return nil
}

// AddXP atomically credits XP and returns the new total.
func (r *UserRepository) AddXP(userID uint, amount int) (int, error) {
	if amount != 0 {
		err := r.db.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("xp", gorm.Expr("xp + ?", amount)).Error
		if err != nil {
			return 0, fmt.Errorf("failed to add xp to user %d: %w", userID, err)
		}
	}

	var xp int
	if err := r.db.Model(&models.User{}).Where("id = ?", userID).Pluck("xp", &xp).Error; err != nil {
		return 0, fmt.Errorf("failed to read xp of user %d: %w", userID, err)
	}
	return xp, nil
}

// UpdateStreak persists the streak counters and last activity instant.
func (r *UserRepository) UpdateStreak(user *models.User) error {
	err := r.db.Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumns(map[string]any{
			"current_streak":   user.CurrentStreak,
			"longest_streak":   user.LongestStreak,
			"last_activity_at": user.LastActivityAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update streak of user %d: %w", user.ID, err)
	}
	return nil
}

// Count returns the number of users.
func (r *UserRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountWithXPGreaterThan returns the number of users with strictly more XP.
func (r *UserRepository) CountWithXPGreaterThan(xp int) (int64, error) {
	var count int64
	if err := r.db.Model(&models.User{}).Where("xp > ?", xp).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users above %d xp: %w", xp, err)
	}
	return count, nil
}

// ListByXP returns users ordered by XP descending, ties by id.
func (r *UserRepository) ListByXP(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Order("xp DESC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users by xp: %w", err)
	}
	return users, nil
}
