// Package streak maintains per-user daily activity streaks and the weekly activity calendar.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/calculus-api/internal/clock"
	prommetrics "github.com/aimd54/calculus-api/internal/metrics"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// WeekStore reads and writes weekly activity records.
type WeekStore interface {
	GetWeek(userID uint, weekStart time.Time) (*models.WeeklyStreakRecord, error)
	SaveWeek(record *models.WeeklyStreakRecord) error
}

// ActivitySource lists completion instants from the event store.
type ActivitySource interface {
	CompletionTimes(userID uint, from, to time.Time) ([]time.Time, error)
}

// UserStore persists streak counters.
type UserStore interface {
	UpdateStreak(user *models.User) error
}

// Transaction runs fn with a week store and user store bound to one transaction.
type Transaction func(fn func(weeks WeekStore, users UserStore) error) error

// Savepoint runs fn against a week store whose writes roll back independently
// of the surrounding transaction.
type Savepoint func(fn func(WeekStore) error) error

// Activity is the outcome of recording one completion event.
type Activity struct {
	Today clock.Date
	// WeekErr is the best-effort weekly record write failure, if any.
	WeekErr error
}

// WeekView is the reconstructed calendar of one week.
type WeekView struct {
	WeekStart      clock.Date      `json:"week_start"`
	Days           models.WeekDays `json:"days"`
	CurrentStreak  int             `json:"current_streak"`
	LongestStreak  int             `json:"longest_streak"`
	TodayIndex     int             `json:"today_index"`
	TodayCompleted bool            `json:"today_completed"`
}

// Engine reconciles stored streak counters with weekly records and completion events.
type Engine struct {
	weeks    WeekStore
	activity ActivitySource
	tx       Transaction
	clock    clock.Clock
	log      *logger.Logger
}

// NewEngine creates a new streak engine.
func NewEngine(db *repository.DB, clk clock.Clock, log *logger.Logger) *Engine {
	return &Engine{
		weeks:    repository.NewStreakRepository(db),
		activity: repository.NewProgressRepository(db),
		tx:       Transactional(db),
		clock:    clk,
		log:      log,
	}
}

// NewEngineWithInterfaces creates a new streak engine with interface dependencies (useful for testing).
func NewEngineWithInterfaces(weeks WeekStore, activity ActivitySource, tx Transaction, clk clock.Clock, log *logger.Logger) *Engine {
	return &Engine{weeks: weeks, activity: activity, tx: tx, clock: clk, log: log}
}

// Transactional returns a Transaction that runs each call in its own database transaction.
func Transactional(db *repository.DB) Transaction {
	return func(fn func(WeekStore, UserStore) error) error {
		return db.Transaction(func(tx *repository.DB) error {
			return fn(repository.NewStreakRepository(tx), repository.NewUserRepository(tx))
		})
	}
}

// NextStreak applies the day-counter rule.
//
// No previous activity starts a streak of 1. Activity earlier the same day keeps the
// streak. Activity yesterday extends it. Any other gap, including a last activity in
// the future, restarts at 1.
func NextStreak(current int, last *clock.Date, today clock.Date) int {
	switch {
	case last == nil:
		return 1
	case last.Equal(today):
		return current
	case last.Equal(today.AddDays(-1)):
		return current + 1
	default:
		return 1
	}
}

// Advance updates the user's counters in memory for activity at now.
func Advance(user *models.User, now time.Time, offset clock.Offset) clock.Date {
	today := clock.LocalDate(now, offset)

	var last *clock.Date
	if user.LastActivityAt != nil {
		d := clock.LocalDate(*user.LastActivityAt, offset)
		last = &d
	}

	user.CurrentStreak = NextStreak(user.CurrentStreak, last, today)
	if user.CurrentStreak > user.LongestStreak {
		user.LongestStreak = user.CurrentStreak
	}
	at := now.UTC()
	user.LastActivityAt = &at
	return today
}

// MarkDay sets the day's slot in the record of its week, creating the record if needed.
// Slots are never cleared.
func MarkDay(store WeekStore, userID uint, day clock.Date) error {
	weekStart := day.WeekStart()
	record, err := store.GetWeek(userID, weekStart.Time())
	if err != nil {
		return err
	}
	if record == nil {
		record = &models.WeeklyStreakRecord{UserID: userID, WeekStart: weekStart.Time()}
	}

	idx := day.MondayIndex()
	if record.Days[idx] {
		return nil
	}
	record.Days[idx] = true
	return store.SaveWeek(record)
}

// RecordActivity marks the local day of now in the weekly calendar and advances the user's
// counters. A failed calendar write is logged and reported in Activity.WeekErr; the
// counters are advanced regardless. The caller persists the user.
func (e *Engine) RecordActivity(sp Savepoint, user *models.User, now time.Time, offset clock.Offset) Activity {
	today := clock.LocalDate(now, offset)

	weekErr := sp(func(weeks WeekStore) error {
		return MarkDay(weeks, user.ID, today)
	})
	if weekErr != nil {
		e.log.Warn().
			Err(weekErr).
			Uint("user_id", user.ID).
			Str("day", today.String()).
			Msg("Failed to update weekly streak record")
		prommetrics.RecordStreakBookkeepingFailure()
	}

	Advance(user, now, offset)

	return Activity{Today: today, WeekErr: weekErr}
}

// CountBackward counts consecutive active days ending at anchor. When the run reaches
// Monday it continues into prev, the preceding week, and stops there.
// A negative anchor counts nothing.
func CountBackward(days models.WeekDays, anchor int, prev models.WeekDays) int {
	if anchor < 0 {
		return 0
	}
	if anchor > 6 {
		anchor = 6
	}

	count := 0
	for i := anchor; i >= 0; i-- {
		if !days[i] {
			return count
		}
		count++
	}
	for i := 6; i >= 0; i-- {
		if !prev[i] {
			break
		}
		count++
	}
	return count
}

// anchorIndex is the slot counting starts from: today for the current week,
// Sunday for past weeks, none for future weeks.
func anchorIndex(weekStart, today clock.Date) int {
	current := today.WeekStart()
	switch {
	case weekStart.Equal(current):
		return today.MondayIndex()
	case weekStart.Before(current):
		return 6
	default:
		return -1
	}
}

// GetWeekView reconstructs a week from the persisted record OR-merged with completion events.
// weekStart may be any day of the wanted week; nil selects the current week.
func (e *Engine) GetWeekView(_ context.Context, user *models.User, weekStart *clock.Date, offset clock.Offset) (*WeekView, error) {
	today := clock.LocalDate(e.clock.Now(), offset)
	ws := today.WeekStart()
	if weekStart != nil {
		ws = weekStart.WeekStart()
	}

	persisted, err := e.loadDays(user.ID, ws)
	if err != nil {
		return nil, err
	}
	derived, err := e.derivedDays(user.ID, ws, offset)
	if err != nil {
		return nil, err
	}
	merged := persisted.Or(derived)

	prev, err := e.loadDays(user.ID, ws.AddDays(-7))
	if err != nil {
		return nil, err
	}

	computed := CountBackward(merged, anchorIndex(ws, today), prev)
	return e.view(user, ws, merged, computed, today, offset), nil
}

// SaveWeek stores client asserted days for a week. Days backed by completion events stay set.
// When the week is the current one the user's counters are recomputed from the stored days.
// The record and the counters are written in one transaction.
func (e *Engine) SaveWeek(_ context.Context, user *models.User, weekStart clock.Date, days models.WeekDays, offset clock.Offset) (*WeekView, error) {
	today := clock.LocalDate(e.clock.Now(), offset)
	ws := weekStart.WeekStart()

	derived, err := e.derivedDays(user.ID, ws, offset)
	if err != nil {
		return nil, err
	}
	stored := days.Or(derived)

	prev, err := e.loadDays(user.ID, ws.AddDays(-7))
	if err != nil {
		return nil, err
	}

	anchor := anchorIndex(ws, today)
	isCurrent := ws.Equal(today.WeekStart())
	if isCurrent {
		if last := lastActive(stored); last > anchor {
			anchor = last
		}
	}
	computed := CountBackward(stored, anchor, prev)

	updated := *user
	if isCurrent {
		updated.CurrentStreak = computed
		if computed > updated.LongestStreak {
			updated.LongestStreak = computed
		}
	}

	err = e.tx(func(weeks WeekStore, users UserStore) error {
		record := &models.WeeklyStreakRecord{UserID: user.ID, WeekStart: ws.Time(), Days: stored}
		if err := weeks.SaveWeek(record); err != nil {
			return fmt.Errorf("failed to save week: %w", err)
		}
		if !isCurrent {
			return nil
		}
		if err := users.UpdateStreak(&updated); err != nil {
			return fmt.Errorf("failed to update streak counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isCurrent {
		user.CurrentStreak = updated.CurrentStreak
		user.LongestStreak = updated.LongestStreak
		e.log.Info().
			Uint("user_id", user.ID).
			Str("week_start", ws.String()).
			Int("current_streak", computed).
			Msg("Recomputed streak from asserted week")
	}

	return e.view(user, ws, stored, computed, today, offset), nil
}

func lastActive(days models.WeekDays) int {
	for i := 6; i >= 0; i-- {
		if days[i] {
			return i
		}
	}
	return -1
}

func (e *Engine) view(user *models.User, ws clock.Date, days models.WeekDays, computed int, today clock.Date, offset clock.Offset) *WeekView {
	current := computed
	// the stored running counter wins over the calendar reconstruction
	if current < user.CurrentStreak {
		current = user.CurrentStreak
	}
	longest := user.LongestStreak
	if current > longest {
		longest = current
	}

	todayIdx := today.MondayIndex()
	todayCompleted := ws.Equal(today.WeekStart()) && days[todayIdx]
	if !todayCompleted && user.LastActivityAt != nil {
		todayCompleted = clock.LocalDate(*user.LastActivityAt, offset).Equal(today)
	}

	return &WeekView{
		WeekStart:      ws,
		Days:           days,
		CurrentStreak:  current,
		LongestStreak:  longest,
		TodayIndex:     todayIdx,
		TodayCompleted: todayCompleted,
	}
}

func (e *Engine) loadDays(userID uint, ws clock.Date) (models.WeekDays, error) {
	record, err := e.weeks.GetWeek(userID, ws.Time())
	if err != nil {
		return models.WeekDays{}, fmt.Errorf("failed to load week %s: %w", ws, err)
	}
	if record == nil {
		return models.WeekDays{}, nil
	}
	return record.Days, nil
}

// derivedDays flags the days of the week on which completion events exist, in local time.
func (e *Engine) derivedDays(userID uint, ws clock.Date, offset clock.Offset) (models.WeekDays, error) {
	var days models.WeekDays

	// one day of margin on each side covers every accepted offset
	from := ws.AddDays(-1).Time()
	to := ws.AddDays(8).Time()
	times, err := e.activity.CompletionTimes(userID, from, to)
	if err != nil {
		return days, fmt.Errorf("failed to load completion activity: %w", err)
	}

	for _, t := range times {
		idx := clock.LocalDate(t, offset).DaysSince(ws)
		if idx >= 0 && idx < 7 {
			days[idx] = true
		}
	}
	return days, nil
}
