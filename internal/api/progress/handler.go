// Package progress provides REST API handlers for the learner dashboard, streaks,
// the leaderboard and achievements.
package progress

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/calculus-api/internal/api/middleware"
	"github.com/aimd54/calculus-api/internal/api/response"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/service/achievements"
	"github.com/aimd54/calculus-api/internal/service/leaderboard"
	"github.com/aimd54/calculus-api/internal/service/lessons"
	"github.com/aimd54/calculus-api/internal/service/streak"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// DashboardService interface for learner summaries.
type DashboardService interface {
	Dashboard(ctx context.Context, userID uint) (*lessons.Dashboard, error)
	Stats(ctx context.Context, userID uint) (*lessons.Stats, error)
}

// StreakService interface for the weekly calendar.
type StreakService interface {
	GetWeekView(ctx context.Context, user *models.User, weekStart *clock.Date, offset clock.Offset) (*streak.WeekView, error)
	SaveWeek(ctx context.Context, user *models.User, weekStart clock.Date, days models.WeekDays, offset clock.Offset) (*streak.WeekView, error)
}

// LeaderboardService interface for ranking pages.
type LeaderboardService interface {
	GetPage(ctx context.Context, userID uint, q leaderboard.Query) (*leaderboard.Page, error)
}

// AchievementService interface for achievement operations.
type AchievementService interface {
	ListAchievements(ctx context.Context, userID uint) ([]achievements.CatalogEntry, error)
	CheckAndAward(ctx context.Context, userID uint) (*achievements.CheckResult, error)
}

// Handler handles progress API requests.
type Handler struct {
	dashboard    DashboardService
	streaks      StreakService
	leaderboard  LeaderboardService
	achievements AchievementService
	log          *logger.Logger
}

// NewHandler creates a new progress handler.
func NewHandler(
	lessonService *lessons.Service,
	engine *streak.Engine,
	leaderboardService *leaderboard.Service,
	achievementService *achievements.Service,
	log *logger.Logger,
) *Handler {
	return &Handler{
		dashboard:    lessonService,
		streaks:      engine,
		leaderboard:  leaderboardService,
		achievements: achievementService,
		log:          log,
	}
}

// NewHandlerWithInterfaces creates a new progress handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	dashboard DashboardService,
	streaks StreakService,
	leaderboardService LeaderboardService,
	achievementService AchievementService,
	log *logger.Logger,
) *Handler {
	return &Handler{
		dashboard:    dashboard,
		streaks:      streaks,
		leaderboard:  leaderboardService,
		achievements: achievementService,
		log:          log,
	}
}

type weekRequest struct {
	WeekStart clock.Date `json:"week_start"`
	Days      []bool     `json:"days"`
}

// GetDashboard returns the learner home screen.
// GET /api/progress/dashboard.
func (h *Handler) GetDashboard(c *gin.Context) {
	dash, err := h.dashboard.Dashboard(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to get dashboard")
		return
	}
	c.JSON(http.StatusOK, dash)
}

// GetStats returns the learner's totals.
// GET /api/progress/stats.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to get stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetStreakWeek returns one week of the activity calendar.
// GET /api/progress/streak-week?week_start=2024-01-15.
func (h *Handler) GetStreakWeek(c *gin.Context) {
	var weekStart *clock.Date
	if raw := c.Query("week_start"); raw != "" {
		d, err := clock.ParseDate(raw)
		if err != nil {
			response.BadRequest(c, fmt.Sprintf("invalid week_start: %s", raw))
			return
		}
		weekStart = &d
	}

	view, err := h.streaks.GetWeekView(c.Request.Context(), middleware.CurrentUser(c), weekStart, middleware.Offset(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to get streak week")
		return
	}
	c.JSON(http.StatusOK, view)
}

// SaveStreakWeek stores a client asserted week.
// POST /api/progress/streak-week.
func (h *Handler) SaveStreakWeek(c *gin.Context) {
	var req weekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.WeekStart.IsZero() {
		response.BadRequest(c, "week_start is required")
		return
	}
	if len(req.Days) != 7 {
		response.BadRequest(c, "days must have exactly 7 entries")
		return
	}

	var days models.WeekDays
	copy(days[:], req.Days)

	view, err := h.streaks.SaveWeek(c.Request.Context(), middleware.CurrentUser(c), req.WeekStart, days, middleware.Offset(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to save streak week")
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetLeaderboard returns a leaderboard window.
// GET /api/progress/leaderboard?start=1&limit=30&around=true.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	var q leaderboard.Query
	var err error
	if q.Start, err = h.parseInt(c, "start", 1); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.Limit, err = h.parseInt(c, "limit", 0); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q.Around = c.Query("around") == "true"

	page, err := h.leaderboard.GetPage(c.Request.Context(), middleware.UserID(c), q)
	if err != nil {
		response.Error(c, h.log, err, "Failed to get leaderboard")
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListAchievements returns the catalog with the user's earned flags.
// GET /api/progress/achievements.
func (h *Handler) ListAchievements(c *gin.Context) {
	entries, err := h.achievements.ListAchievements(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to list achievements")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// CheckAchievements awards every achievement the user now qualifies for.
// POST /api/progress/achievements/check.
func (h *Handler) CheckAchievements(c *gin.Context) {
	result, err := h.achievements.CheckAndAward(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to check achievements")
		return
	}
	c.JSON(http.StatusOK, result)
}

// parseInt extracts an integer query parameter.
func (h *Handler) parseInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return v, nil
}
