package lessons

import (
	"context"
	"strconv"
	"time"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/clock"
	prommetrics "github.com/aimd54/calculus-api/internal/metrics"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/internal/service/streak"
)

// StepCompletion is the client submission for a finished step.
type StepCompletion struct {
	// Score is optional; nil records the configured default.
	Score            *int `json:"score"`
	TimeSpentSeconds int  `json:"time_spent_seconds"`
}

// StreakInfo is the user's streak state after a completion.
type StreakInfo struct {
	CurrentStreak  int  `json:"current_streak"`
	LongestStreak  int  `json:"longest_streak"`
	TodayCompleted bool `json:"today_completed"`
}

// Bookkeeping reports the secondary writes of a completion. A failed secondary write
// never fails the completion itself.
type Bookkeeping struct {
	// WeekErr is the weekly streak record write failure, if any.
	WeekErr error
}

// Degraded reports whether any secondary write failed.
func (b Bookkeeping) Degraded() bool {
	return b.WeekErr != nil
}

// CompletionResult is the outcome of a step or slide completion.
type CompletionResult struct {
	Success     bool        `json:"success"`
	XPEarned    int         `json:"xp_earned"`
	TotalXP     int         `json:"total_xp"`
	Streak      StreakInfo  `json:"streak"`
	// Recorded is false when the target was already completed.
	Recorded    bool        `json:"-"`
	Bookkeeping Bookkeeping `json:"-"`
}

func (s *Service) requireEnrollment(userID uint, step *models.Step) error {
	if step.Chapter == nil {
		return apperr.NotFound("chapter")
	}
	enrolled, err := s.progressRepo.IsEnrolled(userID, step.Chapter.StoryID)
	if err != nil {
		return err
	}
	if !enrolled {
		return apperr.Forbidden("enroll in the story first")
	}
	return nil
}

// savepoint runs weekly record writes in a nested transaction of tx so that their
// failure leaves tx usable.
func (s *Service) savepoint(tx *repository.DB) streak.Savepoint {
	return func(fn func(streak.WeekStore) error) error {
		return tx.Transaction(func(inner *repository.DB) error {
			return fn(s.newWeekStore(inner))
		})
	}
}

// record runs one completion in a transaction. create appends the completion event and
// reports whether it is new; only new events credit xp and count as activity.
func (s *Service) record(userID uint, xp int, offset clock.Offset, create func(progressRepo *repository.ProgressRepository, at time.Time) (bool, error)) (*CompletionResult, error) {
	now := s.clock.Now().UTC()
	result := &CompletionResult{Success: true}

	err := s.db.Transaction(func(tx *repository.DB) error {
		users := repository.NewUserRepository(tx)

		user, err := users.GetByID(userID)
		if err != nil {
			return err
		}

		created, err := create(repository.NewProgressRepository(tx), now)
		if err != nil {
			return err
		}
		if !created {
			result.TotalXP = user.XP
			result.Streak = streakInfo(user, now, offset)
			return nil
		}

		activity := s.streak.RecordActivity(s.savepoint(tx), user, now, offset)
		result.Bookkeeping.WeekErr = activity.WeekErr

		if err := users.UpdateStreak(user); err != nil {
			return err
		}
		total, err := users.AddXP(userID, xp)
		if err != nil {
			return err
		}

		result.Recorded = true
		result.XPEarned = xp
		result.TotalXP = total
		result.Streak = streakInfo(user, now, offset)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func streakInfo(user *models.User, now time.Time, offset clock.Offset) StreakInfo {
	info := StreakInfo{CurrentStreak: user.CurrentStreak, LongestStreak: user.LongestStreak}
	if user.LastActivityAt != nil {
		info.TodayCompleted = clock.LocalDate(*user.LastActivityAt, offset).Equal(clock.LocalDate(now, offset))
	}
	return info
}

// CompleteStep records the first completion of a step and credits its XP.
// Completing an already completed step earns nothing and reports the current totals.
func (s *Service) CompleteStep(_ context.Context, userID, stepID uint, req StepCompletion, offset clock.Offset) (*CompletionResult, error) {
	step, err := s.content.GetStep(stepID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEnrollment(userID, step); err != nil {
		return nil, err
	}

	score := s.cfg.DefaultScore
	if req.Score != nil {
		score = *req.Score
	}
	if score < 0 || score > 100 {
		return nil, apperr.Validation("score must be between 0 and 100")
	}
	if req.TimeSpentSeconds < 0 {
		return nil, apperr.Validation("time_spent_seconds must not be negative")
	}

	result, err := s.record(userID, step.XPReward, offset, func(progressRepo *repository.ProgressRepository, at time.Time) (bool, error) {
		return progressRepo.CreateStepCompletion(&models.StepCompletion{
			UserID:           userID,
			StepID:           stepID,
			Score:            score,
			TimeSpentSeconds: req.TimeSpentSeconds,
			XPEarned:         step.XPReward,
			CompletedAt:      at,
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Recorded {
		prommetrics.RecordStepCompleted(strconv.FormatUint(uint64(step.Chapter.StoryID), 10), result.XPEarned)
	}
	s.log.Info().
		Uint("user_id", userID).
		Uint("step_id", stepID).
		Int("xp_earned", result.XPEarned).
		Int("total_xp", result.TotalXP).
		Int("current_streak", result.Streak.CurrentStreak).
		Bool("bookkeeping_degraded", result.Bookkeeping.Degraded()).
		Msg("Step completed")

	return result, nil
}

// CompleteSlide records the first completion of a slide of a step and credits slide XP.
func (s *Service) CompleteSlide(_ context.Context, userID, stepID, slideID uint, offset clock.Offset) (*CompletionResult, error) {
	step, err := s.content.GetStep(stepID)
	if err != nil {
		return nil, err
	}
	slide, err := s.content.GetSlide(slideID)
	if err != nil {
		return nil, err
	}
	if slide.StepID != step.ID {
		return nil, apperr.NotFound("slide")
	}
	if err := s.requireEnrollment(userID, step); err != nil {
		return nil, err
	}

	xp := s.cfg.SlideXP
	result, err := s.record(userID, xp, offset, func(progressRepo *repository.ProgressRepository, at time.Time) (bool, error) {
		return progressRepo.CreateSlideCompletion(&models.SlideCompletion{
			UserID:      userID,
			SlideID:     slideID,
			StepID:      stepID,
			XPEarned:    xp,
			CompletedAt: at,
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Recorded {
		prommetrics.RecordSlideCompleted(result.XPEarned)
	}
	s.log.Debug().
		Uint("user_id", userID).
		Uint("slide_id", slideID).
		Int("xp_earned", result.XPEarned).
		Msg("Slide completed")

	return result, nil
}
