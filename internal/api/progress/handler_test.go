//nolint:noctx // Test file uses http.NewRequest for simplicity
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/calculus-api/internal/api/middleware"
	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/service/achievements"
	"github.com/aimd54/calculus-api/internal/service/leaderboard"
	"github.com/aimd54/calculus-api/internal/service/lessons"
	"github.com/aimd54/calculus-api/internal/service/streak"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// Mock Dashboard Service
type mockDashboardService struct {
	dashboards map[uint]*lessons.Dashboard
	err        error
}

func (m *mockDashboardService) Dashboard(_ context.Context, userID uint) (*lessons.Dashboard, error) {
	if m.err != nil {
		return nil, m.err
	}
	dash, exists := m.dashboards[userID]
	if !exists {
		return nil, apperr.NotFound("user")
	}
	return dash, nil
}

func (m *mockDashboardService) Stats(_ context.Context, userID uint) (*lessons.Stats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &lessons.Stats{TotalXP: 42, Rank: 3}, nil
}

// Mock Streak Service
type mockStreakService struct {
	lastWeekStart *clock.Date
	lastOffset    clock.Offset
	saved         *models.WeekDays
}

func (m *mockStreakService) GetWeekView(_ context.Context, _ *models.User, weekStart *clock.Date, offset clock.Offset) (*streak.WeekView, error) {
	m.lastWeekStart = weekStart
	m.lastOffset = offset
	return &streak.WeekView{WeekStart: clock.NewDate(2024, 1, 15), CurrentStreak: 2, TodayIndex: 2}, nil
}

func (m *mockStreakService) SaveWeek(_ context.Context, _ *models.User, weekStart clock.Date, days models.WeekDays, _ clock.Offset) (*streak.WeekView, error) {
	m.saved = &days
	return &streak.WeekView{WeekStart: weekStart.WeekStart(), Days: days, CurrentStreak: 7}, nil
}

// Mock Leaderboard Service
type mockLeaderboardService struct {
	lastUserID uint
	lastQuery  leaderboard.Query
}

func (m *mockLeaderboardService) GetPage(_ context.Context, userID uint, q leaderboard.Query) (*leaderboard.Page, error) {
	m.lastUserID = userID
	m.lastQuery = q
	page := &leaderboard.Page{
		Entries:    []leaderboard.Entry{{Rank: 1, UserID: 7, Username: "alice", XP: 100, Level: 2}},
		TotalCount: 1,
	}
	if userID != 0 {
		rank := 1
		page.CurrentUserRank = &rank
	}
	return page, nil
}

// Mock Achievement Service
type mockAchievementService struct {
	checks int
}

func (m *mockAchievementService) ListAchievements(_ context.Context, _ uint) ([]achievements.CatalogEntry, error) {
	return []achievements.CatalogEntry{{Achievement: models.Achievement{Code: "xp-100"}, Earned: true}}, nil
}

func (m *mockAchievementService) CheckAndAward(_ context.Context, _ uint) (*achievements.CheckResult, error) {
	m.checks++
	if m.checks > 1 {
		return &achievements.CheckResult{NewlyEarned: []achievements.Awarded{}, TotalXP: 110}, nil
	}
	return &achievements.CheckResult{
		NewlyEarned: []achievements.Awarded{{Code: "xp-100", XPReward: 10}},
		TotalXP:     110,
	}, nil
}

type fixture struct {
	router       *gin.Engine
	dashboard    *mockDashboardService
	streaks      *mockStreakService
	leaderboard  *mockLeaderboardService
	achievements *mockAchievementService
}

// Test Setup
func setupTestRouter(user *models.User) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		dashboard: &mockDashboardService{dashboards: map[uint]*lessons.Dashboard{
			7: {InProgress: []lessons.StorySummary{}, TotalXP: 15, Level: 1, NextLevelXP: 100},
		}},
		streaks:      &mockStreakService{},
		leaderboard:  &mockLeaderboardService{},
		achievements: &mockAchievementService{},
	}
	handler := NewHandlerWithInterfaces(f.dashboard, f.streaks, f.leaderboard, f.achievements, logger.New("debug", "text", "stdout"))

	router := gin.New()
	router.Use(middleware.Timezone())
	if user != nil {
		router.Use(func(c *gin.Context) { middleware.SetUser(c, user) })
	}
	api := router.Group("/api/progress")
	api.GET("/dashboard", handler.GetDashboard)
	api.GET("/stats", handler.GetStats)
	api.GET("/streak-week", handler.GetStreakWeek)
	api.POST("/streak-week", handler.SaveStreakWeek)
	api.GET("/leaderboard", handler.GetLeaderboard)
	api.GET("/achievements", handler.ListAchievements)
	api.POST("/achievements/check", handler.CheckAchievements)

	f.router = router
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGetDashboard(t *testing.T) {
	f := setupTestRouter(&models.User{ID: 7})

	w := f.do(t, http.MethodGet, "/api/progress/dashboard", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(15), body["total_xp"])
	assert.Equal(t, float64(1), body["level"])
	assert.Equal(t, float64(100), body["next_level_xp"])
	assert.Nil(t, body["current_story"])
	assert.Equal(t, []any{}, body["in_progress_stories"])
}

func TestGetDashboardErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := setupTestRouter(&models.User{ID: 99})
		w := f.do(t, http.MethodGet, "/api/progress/dashboard", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "user not found", decode(t, w)["error"])
	})

	t.Run("internal", func(t *testing.T) {
		f := setupTestRouter(&models.User{ID: 7})
		f.dashboard.err = errors.New("connection reset")
		w := f.do(t, http.MethodGet, "/api/progress/stats", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal server error", decode(t, w)["error"])
	})
}

func TestGetStreakWeek(t *testing.T) {
	f := setupTestRouter(&models.User{ID: 7})

	w := f.do(t, http.MethodGet, "/api/progress/streak-week?week_start=2024-01-17", nil, map[string]string{middleware.OffsetHeader: "-300"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.streaks.lastWeekStart)
	assert.Equal(t, "2024-01-17", f.streaks.lastWeekStart.String())
	assert.Equal(t, clock.Minutes(-300), f.streaks.lastOffset)

	body := decode(t, w)
	assert.Equal(t, "2024-01-15", body["week_start"])
	assert.Equal(t, float64(2), body["current_streak"])
}

func TestGetStreakWeekDefaultsAndOffsetFallback(t *testing.T) {
	f := setupTestRouter(&models.User{ID: 7})

	w := f.do(t, http.MethodGet, "/api/progress/streak-week?tz_offset=abc", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.streaks.lastWeekStart)
	assert.False(t, f.streaks.lastOffset.Valid)

	w = f.do(t, http.MethodGet, "/api/progress/streak-week?week_start=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveStreakWeek(t *testing.T) {
	f := setupTestRouter(&models.User{ID: 7})

	days := []bool{true, true, true, true, true, true, true}
	w := f.do(t, http.MethodPost, "/api/progress/streak-week", map[string]any{"week_start": "2024-01-15", "days": days}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.streaks.saved)
	assert.Equal(t, models.WeekDays{true, true, true, true, true, true, true}, *f.streaks.saved)
	assert.Equal(t, float64(7), decode(t, w)["current_streak"])
}

func TestSaveStreakWeekValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"short days", map[string]any{"week_start": "2024-01-15", "days": []bool{true}}},
		{"missing week", map[string]any{"days": []bool{true, true, true, true, true, true, true}}},
		{"bad date", map[string]any{"week_start": "15/01/2024", "days": []bool{true, true, true, true, true, true, true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestRouter(&models.User{ID: 7})
			w := f.do(t, http.MethodPost, "/api/progress/streak-week", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, f.streaks.saved)
		})
	}
}

func TestGetLeaderboard(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		f := setupTestRouter(nil)
		w := f.do(t, http.MethodGet, "/api/progress/leaderboard", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, leaderboard.Query{Start: 1}, f.leaderboard.lastQuery)

		body := decode(t, w)
		_, hasRank := body["current_user_rank"]
		assert.False(t, hasRank)
		assert.Equal(t, float64(1), body["total_count"])
	})

	t.Run("around", func(t *testing.T) {
		f := setupTestRouter(&models.User{ID: 7})
		w := f.do(t, http.MethodGet, "/api/progress/leaderboard?start=5&limit=10&around=true", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, uint(7), f.leaderboard.lastUserID)
		assert.Equal(t, leaderboard.Query{Start: 5, Limit: 10, Around: true}, f.leaderboard.lastQuery)
		assert.Equal(t, float64(1), decode(t, w)["current_user_rank"])
	})

	t.Run("bad limit", func(t *testing.T) {
		f := setupTestRouter(nil)
		w := f.do(t, http.MethodGet, "/api/progress/leaderboard?limit=ten", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAchievements(t *testing.T) {
	f := setupTestRouter(&models.User{ID: 7})

	w := f.do(t, http.MethodGet, "/api/progress/achievements", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "xp-100", entries[0]["code"])
	assert.Equal(t, true, entries[0]["earned"])

	w = f.do(t, http.MethodPost, "/api/progress/achievements/check", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["newly_earned"], 1)

	w = f.do(t, http.MethodPost, "/api/progress/achievements/check", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["newly_earned"])
}
