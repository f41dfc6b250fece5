// Package achievements evaluates and awards catalog achievements against a user's progress snapshot.
package achievements

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/calculus-api/internal/clock"
	prommetrics "github.com/aimd54/calculus-api/internal/metrics"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/internal/service/progress"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// AchievementRepository interface for catalog reads.
type AchievementRepository interface {
	GetAll() ([]models.Achievement, error)
	GetUnearned(userID uint) ([]models.Achievement, error)
	GetUserAchievements(userID uint) ([]models.UserAchievement, error)
	CountByUser(userID uint) (int64, error)
}

// UserRepository interface for user reads.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// ProgressRepository interface for completion counts.
type ProgressRepository interface {
	CountCompletedSteps(userID uint) (int64, error)
	StoriesWithCompletions(userID uint) ([]uint, error)
}

// StoryCounter counts stories at 100% progress.
type StoryCounter interface {
	CountCompleted(ctx context.Context, userID uint, storyIDs []uint) (int, error)
}

// Awarder records earned achievements.
type Awarder interface {
	Award(userID, achievementID uint, at time.Time) (bool, error)
}

// XPCreditor credits XP to a user.
type XPCreditor interface {
	AddXP(userID uint, amount int) (int, error)
}

// UnitOfWork runs fn with an awarder and creditor bound to one transaction.
type UnitOfWork func(fn func(awards Awarder, users XPCreditor) error) error

// Awarded is a newly granted achievement.
type Awarded struct {
	ID       uint   `json:"id"`
	Code     string `json:"code"`
	Title    string `json:"title"`
	Icon     string `json:"icon"`
	Rarity   string `json:"rarity"`
	XPReward int    `json:"xp_reward"`
}

// CheckResult is the outcome of one evaluation pass.
type CheckResult struct {
	NewlyEarned []Awarded `json:"newly_earned"`
	TotalXP     int       `json:"total_xp"`
}

// CatalogEntry is a catalog achievement with the user's earned state.
type CatalogEntry struct {
	models.Achievement
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// Service handles achievement evaluation and awarding.
type Service struct {
	achievementRepo AchievementRepository
	userRepo        UserRepository
	progressRepo    ProgressRepository
	stories         StoryCounter
	uow             UnitOfWork
	clock           clock.Clock
	log             *logger.Logger
}

// NewService creates a new achievement service.
func NewService(
	db *repository.DB,
	aggregator *progress.Aggregator,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		achievementRepo: repository.NewAchievementRepository(db),
		userRepo:        repository.NewUserRepository(db),
		progressRepo:    repository.NewProgressRepository(db),
		stories:         aggregator,
		uow:             Transactional(db),
		clock:           clk,
		log:             log,
	}
}

// NewServiceWithInterfaces creates a new achievement service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	achievementRepo AchievementRepository,
	userRepo UserRepository,
	progressRepo ProgressRepository,
	stories StoryCounter,
	uow UnitOfWork,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		achievementRepo: achievementRepo,
		userRepo:        userRepo,
		progressRepo:    progressRepo,
		stories:         stories,
		uow:             uow,
		clock:           clk,
		log:             log,
	}
}

// Transactional returns a unit of work that runs each call in one database transaction.
func Transactional(db *repository.DB) UnitOfWork {
	return func(fn func(Awarder, XPCreditor) error) error {
		return db.Transaction(func(tx *repository.DB) error {
			return fn(repository.NewAchievementRepository(tx), repository.NewUserRepository(tx))
		})
	}
}

// Stats builds the snapshot achievements are evaluated against.
func (s *Service) Stats(ctx context.Context, user *models.User) (models.UserStats, error) {
	steps, err := s.progressRepo.CountCompletedSteps(user.ID)
	if err != nil {
		return models.UserStats{}, err
	}

	touched, err := s.progressRepo.StoriesWithCompletions(user.ID)
	if err != nil {
		return models.UserStats{}, err
	}
	completedStories, err := s.stories.CountCompleted(ctx, user.ID, touched)
	if err != nil {
		return models.UserStats{}, err
	}

	return models.UserStats{
		XP:               user.XP,
		CompletedSteps:   int(steps),
		CurrentStreak:    user.CurrentStreak,
		CompletedStories: completedStories,
	}, nil
}

// CheckAndAward awards every unearned achievement whose requirement the user meets.
//
// Evaluation is a single pass over the unearned set against one stats snapshot: XP credited
// by an award in this pass does not unlock XP achievements until the next call.
func (s *Service) CheckAndAward(ctx context.Context, userID uint) (*CheckResult, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.Stats(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats: %w", err)
	}

	unearned, err := s.achievementRepo.GetUnearned(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unearned achievements: %w", err)
	}

	result := &CheckResult{NewlyEarned: []Awarded{}, TotalXP: user.XP}
	var granted []*models.Achievement

	// a failed award rolls back the whole pass
	err = s.uow(func(awards Awarder, users XPCreditor) error {
		for i := range unearned {
			achievement := &unearned[i]
			if !achievement.Meets(stats) {
				continue
			}

			ok, err := awards.Award(userID, achievement.ID, s.clock.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to award achievement %s: %w", achievement.Code, err)
			}
			if !ok {
				// granted by a concurrent call
				continue
			}
			total, err := users.AddXP(userID, achievement.XPReward)
			if err != nil {
				return fmt.Errorf("failed to credit xp for achievement %s: %w", achievement.Code, err)
			}
			result.TotalXP = total
			granted = append(granted, achievement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, achievement := range granted {
		prommetrics.RecordAchievementAwarded(achievement.Code, achievement.Rarity, achievement.XPReward)
		s.log.Debug().
			Uint("user_id", userID).
			Str("achievement", achievement.Code).
			Int("xp_reward", achievement.XPReward).
			Msg("Achievement awarded")
		result.NewlyEarned = append(result.NewlyEarned, Awarded{
			ID:       achievement.ID,
			Code:     achievement.Code,
			Title:    achievement.Title,
			Icon:     achievement.Icon,
			Rarity:   achievement.Rarity,
			XPReward: achievement.XPReward,
		})
	}

	if len(result.NewlyEarned) > 0 {
		s.log.Info().
			Uint("user_id", userID).
			Int("awarded", len(result.NewlyEarned)).
			Int("total_xp", result.TotalXP).
			Msg("Achievements awarded")
	}

	return result, nil
}

// ListAchievements returns the whole catalog with the user's earned flags.
func (s *Service) ListAchievements(_ context.Context, userID uint) ([]CatalogEntry, error) {
	catalog, err := s.achievementRepo.GetAll()
	if err != nil {
		return nil, err
	}
	earned, err := s.achievementRepo.GetUserAchievements(userID)
	if err != nil {
		return nil, err
	}

	earnedAt := make(map[uint]time.Time, len(earned))
	for _, ua := range earned {
		earnedAt[ua.AchievementID] = ua.EarnedAt
	}

	out := make([]CatalogEntry, 0, len(catalog))
	for _, a := range catalog {
		entry := CatalogEntry{Achievement: a}
		if at, ok := earnedAt[a.ID]; ok {
			at := at
			entry.Earned = true
			entry.EarnedAt = &at
		}
		out = append(out, entry)
	}
	return out, nil
}

// CountEarned returns the number of achievements the user holds.
func (s *Service) CountEarned(_ context.Context, userID uint) (int, error) {
	count, err := s.achievementRepo.CountByUser(userID)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
