package streak

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/pkg/logger"
	"github.com/aimd54/calculus-api/test/testdb"
)

// Wednesday 2024-01-17 10:00 UTC; the week starts Monday 2024-01-15.
var wednesday = time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC)

type weekKey struct {
	userID uint
	week   string
}

type mockWeekStore struct {
	records map[weekKey]*models.WeeklyStreakRecord
	saves   int
	saveErr error
}

func newMockWeekStore() *mockWeekStore {
	return &mockWeekStore{records: make(map[weekKey]*models.WeeklyStreakRecord)}
}

func (m *mockWeekStore) GetWeek(userID uint, weekStart time.Time) (*models.WeeklyStreakRecord, error) {
	rec, ok := m.records[weekKey{userID, weekStart.Format("2006-01-02")}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockWeekStore) SaveWeek(record *models.WeeklyStreakRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	cp := *record
	m.records[weekKey{record.UserID, record.WeekStart.Format("2006-01-02")}] = &cp
	return nil
}

func (m *mockWeekStore) put(userID uint, weekStart string, days models.WeekDays) {
	ws, _ := clock.ParseDate(weekStart)
	m.records[weekKey{userID, weekStart}] = &models.WeeklyStreakRecord{UserID: userID, WeekStart: ws.Time(), Days: days}
}

func (m *mockWeekStore) days(userID uint, weekStart string) models.WeekDays {
	rec, ok := m.records[weekKey{userID, weekStart}]
	if !ok {
		return models.WeekDays{}
	}
	return rec.Days
}

type mockActivity struct {
	times []time.Time
}

func (m *mockActivity) CompletionTimes(userID uint, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range m.times {
		if !t.Before(from) && t.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockUsers struct {
	updates int
	err     error
}

func (m *mockUsers) UpdateStreak(user *models.User) error {
	if m.err != nil {
		return m.err
	}
	m.updates++
	return nil
}

// rollbackOnError restores the week records when fn fails.
func rollbackOnError(weeks *mockWeekStore, users *mockUsers) Transaction {
	return func(fn func(WeekStore, UserStore) error) error {
		saved := make(map[weekKey]*models.WeeklyStreakRecord, len(weeks.records))
		for k, v := range weeks.records {
			saved[k] = v
		}
		if err := fn(weeks, users); err != nil {
			weeks.records = saved
			return err
		}
		return nil
	}
}

func setupTestEngine(now time.Time) (*Engine, *mockWeekStore, *mockActivity, *mockUsers) {
	weeks := newMockWeekStore()
	activity := &mockActivity{}
	users := &mockUsers{}
	log := logger.New("debug", "text", "stdout")
	return NewEngineWithInterfaces(weeks, activity, rollbackOnError(weeks, users), clock.Fixed{At: now}, log), weeks, activity, users
}

func direct(store WeekStore) Savepoint {
	return func(fn func(WeekStore) error) error { return fn(store) }
}

func date(s string) clock.Date {
	d, err := clock.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr(d clock.Date) *clock.Date { return &d }

func TestNextStreak(t *testing.T) {
	today := date("2024-01-17")

	tests := []struct {
		name    string
		current int
		last    *clock.Date
		want    int
	}{
		{"first activity", 0, nil, 1},
		{"same day keeps", 4, ptr(today), 4},
		{"yesterday extends", 4, ptr(today.AddDays(-1)), 5},
		{"two day gap resets to one", 4, ptr(today.AddDays(-2)), 1},
		{"three days ago resets to one", 9, ptr(today.AddDays(-3)), 1},
		{"future resets to one", 4, ptr(today.AddDays(1)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStreak(tt.current, tt.last, today))
		})
	}
}

func TestAdvance(t *testing.T) {
	yesterday := wednesday.Add(-24 * time.Hour)
	threeDaysAgo := wednesday.Add(-72 * time.Hour)

	t.Run("continuity", func(t *testing.T) {
		user := &models.User{CurrentStreak: 3, LongestStreak: 3, LastActivityAt: &yesterday}
		Advance(user, wednesday, clock.UTC)
		assert.Equal(t, 4, user.CurrentStreak)
		assert.Equal(t, 4, user.LongestStreak)
		assert.True(t, wednesday.Equal(*user.LastActivityAt))
	})

	t.Run("reset is one not zero", func(t *testing.T) {
		user := &models.User{CurrentStreak: 8, LongestStreak: 10, LastActivityAt: &threeDaysAgo}
		Advance(user, wednesday, clock.UTC)
		assert.Equal(t, 1, user.CurrentStreak)
		assert.Equal(t, 10, user.LongestStreak)
	})

	t.Run("same day twice", func(t *testing.T) {
		user := &models.User{CurrentStreak: 2, LongestStreak: 2, LastActivityAt: &yesterday}
		Advance(user, wednesday, clock.UTC)
		Advance(user, wednesday.Add(3*time.Hour), clock.UTC)
		assert.Equal(t, 3, user.CurrentStreak)
	})

	t.Run("offset decides the calendar day", func(t *testing.T) {
		// 20:00 and 01:00 UTC are the same afternoon at UTC-5 but different days in UTC
		last := time.Date(2024, 1, 16, 20, 0, 0, 0, time.UTC)
		now := time.Date(2024, 1, 17, 1, 0, 0, 0, time.UTC)

		local := &models.User{CurrentStreak: 2, LastActivityAt: &last}
		Advance(local, now, clock.Minutes(-300))
		assert.Equal(t, 2, local.CurrentStreak)

		utc := &models.User{CurrentStreak: 2, LastActivityAt: &last}
		Advance(utc, now, clock.UTC)
		assert.Equal(t, 3, utc.CurrentStreak)
	})
}

func TestMarkDayIsIdempotent(t *testing.T) {
	weeks := newMockWeekStore()

	require.NoError(t, MarkDay(weeks, 1, date("2024-01-17")))
	require.NoError(t, MarkDay(weeks, 1, date("2024-01-17")))
	require.NoError(t, MarkDay(weeks, 1, date("2024-01-21")))

	assert.Equal(t, models.WeekDays{false, false, true, false, false, false, true}, weeks.days(1, "2024-01-15"))
	assert.Equal(t, 2, weeks.saves)
}

func TestRecordActivity(t *testing.T) {
	engine, weeks, _, _ := setupTestEngine(wednesday)
	yesterday := wednesday.Add(-24 * time.Hour)
	user := &models.User{ID: 1, CurrentStreak: 1, LongestStreak: 1, LastActivityAt: &yesterday}

	activity := engine.RecordActivity(direct(weeks), user, wednesday, clock.UTC)

	require.NoError(t, activity.WeekErr)
	assert.Equal(t, "2024-01-17", activity.Today.String())
	assert.Equal(t, 2, user.CurrentStreak)
	assert.True(t, weeks.days(1, "2024-01-15")[2])
}

func TestRecordActivityWeekFailureIsSwallowed(t *testing.T) {
	engine, weeks, _, _ := setupTestEngine(wednesday)
	weeks.saveErr = errors.New("disk full")
	user := &models.User{ID: 1}

	activity := engine.RecordActivity(direct(weeks), user, wednesday, clock.UTC)

	assert.Error(t, activity.WeekErr)
	assert.Equal(t, 1, user.CurrentStreak)
	assert.Equal(t, 1, user.LongestStreak)
	require.NotNil(t, user.LastActivityAt)
}

func TestCountBackward(t *testing.T) {
	full := models.WeekDays{true, true, true, true, true, true, true}

	tests := []struct {
		name   string
		days   models.WeekDays
		anchor int
		prev   models.WeekDays
		want   int
	}{
		{"today inactive", models.WeekDays{true, true}, 2, full, 0},
		{"run inside week", models.WeekDays{false, true, true}, 2, full, 2},
		{"chains into previous week", models.WeekDays{true, true}, 1, models.WeekDays{false, false, false, false, true, true, true}, 5},
		{"previous week broken on sunday", models.WeekDays{true}, 0, models.WeekDays{true, true, true, true, true, true, false}, 1},
		{"single week lookback", full, 6, full, 14},
		{"no anchor", full, -1, full, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountBackward(tt.days, tt.anchor, tt.prev))
		})
	}
}

func TestGetWeekViewStoredCounterWins(t *testing.T) {
	engine, weeks, _, _ := setupTestEngine(wednesday)
	weeks.put(1, "2024-01-15", models.WeekDays{true, true})
	tuesday := wednesday.Add(-24 * time.Hour)
	user := &models.User{ID: 1, CurrentStreak: 2, LongestStreak: 2, LastActivityAt: &tuesday}

	view, err := engine.GetWeekView(context.Background(), user, nil, clock.UTC)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", view.WeekStart.String())
	assert.Equal(t, 2, view.TodayIndex)
	assert.Equal(t, 2, view.CurrentStreak)
	assert.Equal(t, 2, view.LongestStreak)
	assert.False(t, view.TodayCompleted)
	assert.Equal(t, models.WeekDays{true, true}, view.Days)
}

func TestGetWeekViewMergesEventActivity(t *testing.T) {
	engine, weeks, activity, _ := setupTestEngine(wednesday)
	weeks.put(1, "2024-01-15", models.WeekDays{true})
	// Tuesday and Wednesday completions are missing from the persisted record
	activity.times = []time.Time{
		time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 17, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 30, 8, 0, 0, 0, time.UTC),
	}
	user := &models.User{ID: 1}

	view, err := engine.GetWeekView(context.Background(), user, nil, clock.UTC)
	require.NoError(t, err)

	assert.Equal(t, models.WeekDays{true, true, true}, view.Days)
	assert.Equal(t, 3, view.CurrentStreak)
	assert.Equal(t, 3, view.LongestStreak)
	assert.True(t, view.TodayCompleted)
}

func TestGetWeekViewAppliesOffsetToEvents(t *testing.T) {
	engine, _, activity, _ := setupTestEngine(wednesday)
	// Sunday 23:30 UTC is Monday 00:30 at UTC+1
	activity.times = []time.Time{time.Date(2024, 1, 14, 23, 30, 0, 0, time.UTC)}
	user := &models.User{ID: 1}

	utc, err := engine.GetWeekView(context.Background(), user, nil, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, models.WeekDays{}, utc.Days)

	plusOne, err := engine.GetWeekView(context.Background(), user, nil, clock.Minutes(60))
	require.NoError(t, err)
	assert.Equal(t, models.WeekDays{true}, plusOne.Days)
}

func TestGetWeekViewChainsPreviousWeek(t *testing.T) {
	monday := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	engine, weeks, _, _ := setupTestEngine(monday)
	weeks.put(1, "2024-01-22", models.WeekDays{true})
	weeks.put(1, "2024-01-15", models.WeekDays{false, false, false, true, true, true, true})
	user := &models.User{ID: 1}

	view, err := engine.GetWeekView(context.Background(), user, nil, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0, view.TodayIndex)
	assert.Equal(t, 5, view.CurrentStreak)
}

func TestGetWeekViewPastWeek(t *testing.T) {
	engine, weeks, _, _ := setupTestEngine(wednesday)
	weeks.put(1, "2024-01-08", models.WeekDays{false, false, false, false, true, true, true})
	user := &models.User{ID: 1}

	// any day of the wanted week selects it
	thursday := date("2024-01-11")
	view, err := engine.GetWeekView(context.Background(), user, &thursday, clock.UTC)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-08", view.WeekStart.String())
	assert.Equal(t, 3, view.CurrentStreak)
	assert.False(t, view.TodayCompleted)
}

func TestGetWeekViewFutureWeekCountsNothing(t *testing.T) {
	engine, weeks, _, _ := setupTestEngine(wednesday)
	weeks.put(1, "2024-01-22", models.WeekDays{true, true})
	user := &models.User{ID: 1}

	next := date("2024-01-22")
	view, err := engine.GetWeekView(context.Background(), user, &next, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0, view.CurrentStreak)
}

func TestGetWeekViewTodayCompletedFallback(t *testing.T) {
	engine, _, _, _ := setupTestEngine(wednesday)
	earlier := wednesday.Add(-2 * time.Hour)
	user := &models.User{ID: 1, CurrentStreak: 1, LongestStreak: 1, LastActivityAt: &earlier}

	view, err := engine.GetWeekView(context.Background(), user, nil, clock.UTC)
	require.NoError(t, err)
	assert.False(t, view.Days[2])
	assert.True(t, view.TodayCompleted)
}

func TestSaveWeekFullCurrentWeek(t *testing.T) {
	engine, weeks, _, users := setupTestEngine(wednesday)
	user := &models.User{ID: 1}
	full := models.WeekDays{true, true, true, true, true, true, true}

	view, err := engine.SaveWeek(context.Background(), user, date("2024-01-15"), full, clock.UTC)
	require.NoError(t, err)

	assert.Equal(t, 7, view.CurrentStreak)
	assert.Equal(t, 7, view.LongestStreak)
	assert.Equal(t, 7, user.CurrentStreak)
	assert.Equal(t, 1, users.updates)
	assert.Equal(t, full, weeks.days(1, "2024-01-15"))
}

func TestSaveWeekContinuesIntoFullPreviousWeek(t *testing.T) {
	engine, weeks, _, _ := setupTestEngine(wednesday)
	full := models.WeekDays{true, true, true, true, true, true, true}
	weeks.put(1, "2024-01-08", full)
	user := &models.User{ID: 1}

	view, err := engine.SaveWeek(context.Background(), user, date("2024-01-17"), full, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, 14, view.CurrentStreak)
}

func TestSaveWeekPartialCurrentWeek(t *testing.T) {
	engine, _, _, _ := setupTestEngine(wednesday)
	user := &models.User{ID: 1, CurrentStreak: 9, LongestStreak: 9}

	view, err := engine.SaveWeek(context.Background(), user, date("2024-01-15"), models.WeekDays{false, true, true}, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, user.CurrentStreak)
	assert.Equal(t, 9, user.LongestStreak)
	assert.Equal(t, 2, view.CurrentStreak)
}

func TestSaveWeekKeepsEventBackedDays(t *testing.T) {
	engine, weeks, activity, _ := setupTestEngine(wednesday)
	activity.times = []time.Time{time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	user := &models.User{ID: 1}

	_, err := engine.SaveWeek(context.Background(), user, date("2024-01-15"), models.WeekDays{}, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, models.WeekDays{true}, weeks.days(1, "2024-01-15"))
}

func TestSaveWeekPastWeekKeepsCounters(t *testing.T) {
	engine, weeks, _, users := setupTestEngine(wednesday)
	user := &models.User{ID: 1, CurrentStreak: 4, LongestStreak: 6}

	_, err := engine.SaveWeek(context.Background(), user, date("2024-01-08"), models.WeekDays{true, true}, clock.UTC)
	require.NoError(t, err)
	assert.Equal(t, 4, user.CurrentStreak)
	assert.Equal(t, 0, users.updates)
	assert.Equal(t, models.WeekDays{true, true}, weeks.days(1, "2024-01-08"))
}

func TestSaveWeekCounterFailureKeepsPreviousWeek(t *testing.T) {
	engine, weeks, _, users := setupTestEngine(wednesday)
	weeks.put(1, "2024-01-15", models.WeekDays{true})
	users.err = errors.New("disk full")
	user := &models.User{ID: 1, CurrentStreak: 1, LongestStreak: 1}

	_, err := engine.SaveWeek(context.Background(), user, date("2024-01-15"), models.WeekDays{true, true, true}, clock.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update streak counters")

	assert.Equal(t, models.WeekDays{true}, weeks.days(1, "2024-01-15"))
	assert.Equal(t, 1, user.CurrentStreak)
}

func TestSaveWeekRollsBackRecordInDatabase(t *testing.T) {
	db := testdb.New(t)
	log := logger.New("debug", "text", "stdout")
	engine := NewEngine(db, clock.Fixed{At: wednesday}, log)
	user := testdb.CreateUser(t, db, "erin", 0)

	require.NoError(t, db.Exec(`CREATE TRIGGER fail_streak_update BEFORE UPDATE OF current_streak ON users
BEGIN SELECT RAISE(ABORT, 'disk full'); END`).Error)

	_, err := engine.SaveWeek(context.Background(), user, date("2024-01-15"), models.WeekDays{true, true, true}, clock.UTC)
	require.Error(t, err)

	var records int64
	require.NoError(t, db.Model(&models.WeeklyStreakRecord{}).Count(&records).Error)
	assert.Zero(t, records)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Zero(t, stored.CurrentStreak)
	assert.Zero(t, user.CurrentStreak)
}
