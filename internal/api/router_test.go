//nolint:noctx // Test file uses http.NewRequest for simplicity
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authapi "github.com/aimd54/calculus-api/internal/api/auth"
	contentapi "github.com/aimd54/calculus-api/internal/api/content"
	"github.com/aimd54/calculus-api/internal/api/middleware"
	progressapi "github.com/aimd54/calculus-api/internal/api/progress"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/content"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/internal/service/achievements"
	"github.com/aimd54/calculus-api/internal/service/auth"
	"github.com/aimd54/calculus-api/internal/service/leaderboard"
	"github.com/aimd54/calculus-api/internal/service/lessons"
	"github.com/aimd54/calculus-api/internal/service/progress"
	"github.com/aimd54/calculus-api/internal/service/streak"
	"github.com/aimd54/calculus-api/pkg/logger"
	"github.com/aimd54/calculus-api/test/testdb"
)

// Wednesday 2024-01-17 23:30 UTC; Thursday at UTC+1.
var now = time.Date(2024, 1, 17, 23, 30, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	db     *repository.DB
}

func setupTestServer(t *testing.T, checks map[string]HealthCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testdb.New(t)
	log := logger.New("debug", "text", "stdout")
	clk := clock.Fixed{At: now}
	cfg := &config.Config{
		Server:      config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Auth:        config.AuthConfig{JWTSecret: "test-secret", TokenTTLHours: 24, CookieName: "access_token"},
		Progress:    config.ProgressConfig{SlideXP: 2, DefaultScore: 100},
		Leaderboard: config.LeaderboardConfig{DefaultLimit: 30, MaxLimit: 200},
		Metrics:     config.MetricsConfig{Prometheus: config.PrometheusConfig{Enabled: true, Path: "/metrics"}},
	}

	_, err := content.SeedAchievements(repository.NewAchievementRepository(db), log)
	require.NoError(t, err)

	users := repository.NewUserRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	agg := progress.NewAggregator(progressRepo)
	engine := streak.NewEngine(db, clk, log)
	ranker := leaderboard.NewService(users, nil, &cfg.Leaderboard, log)
	earned := achievements.NewService(db, agg, clk, log)
	lessonService := lessons.NewService(db, agg, engine, ranker, earned, &cfg.Progress, clk, log)
	authService := auth.NewService(users, &cfg.Auth, clk, log)

	router := NewRouter(RouterConfig{
		Server:   &cfg.Server,
		Metrics:  &cfg.Metrics,
		Auth:     middleware.NewAuth(authService, cfg.Auth.CookieName),
		Accounts: authapi.NewHandler(authService, &cfg.Auth, log),
		Content:  contentapi.NewHandler(lessonService, log),
		Progress: progressapi.NewHandler(lessonService, engine, ranker, earned, log),
		Checks:   checks,
		Log:      log,
	})
	return &testServer{router: router, db: db}
}

type request struct {
	method string
	path   string
	body   any
	token  string
	header map[string]string
	cookie *http.Cookie
}

func (s *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}
	req, err := http.NewRequest(r.method, r.path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signUp registers and logs in a learner, returning the access token.
func (s *testServer) signUp(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"username": username,
		"password": "secret123",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["access_token"].(string)
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t, map[string]HealthCheck{
		"database": func() error { return nil },
	})
	w := s.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	down := setupTestServer(t, map[string]HealthCheck{
		"redis": func() error { return errors.New("connection refused") },
	})
	w = down.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	s.do(t, request{method: http.MethodGet, path: "/api/categories"})

	w := s.do(t, request{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}

func TestAuthFlow(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.signUp(t, "alice")

	w := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"username": "alice", "email": "other@example.com", "password": "secret123",
	}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "username or email already registered", decode(t, w)["error"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/me", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/me", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, float64(1), me["level"])
	_, leaked := me["password_hash"]
	assert.False(t, leaked)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/me", cookie: &http.Cookie{Name: "access_token", Value: token}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodPut, path: "/api/auth/profile", token: token, body: map[string]string{"display_name": "Alice A."}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice A.", decode(t, w)["display_name"])
}

func TestLoginSetsCookie(t *testing.T) {
	s := setupTestServer(t, nil)
	s.signUp(t, "alice")

	w := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"login": "alice", "password": "secret123",
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "access_token" {
			found = true
			assert.True(t, c.HttpOnly)
			assert.NotEmpty(t, c.Value)
		}
	}
	assert.True(t, found)

	w = s.do(t, request{method: http.MethodPost, path: "/api/auth/logout"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Result().Cookies())
	assert.Equal(t, "", w.Result().Cookies()[0].Value)
}

func TestLearningFlow(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.signUp(t, "alice")
	story := testdb.CreateStory(t, s.db, "limits", 15, 2)
	step := testdb.Steps(story)[0]
	slides := testdb.CreateSlides(t, s.db, step.ID, 1)
	stepPath := "/api/steps/" + itoa(step.ID)

	w := s.do(t, request{method: http.MethodPost, path: stepPath + "/complete", token: token})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "enroll in the story first", decode(t, w)["error"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/stories/limits/enroll", token: token})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, request{method: http.MethodPost, path: "/api/stories/limits/enroll", token: token})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: stepPath + "/complete", token: token, body: map[string]int{"score": 90}})
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)
	assert.Equal(t, float64(15), first["xp_earned"])
	assert.Equal(t, float64(15), first["total_xp"])
	assert.Equal(t, float64(1), first["streak"].(map[string]any)["current_streak"])

	w = s.do(t, request{method: http.MethodPost, path: stepPath + "/complete", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	again := decode(t, w)
	assert.Equal(t, float64(0), again["xp_earned"])
	assert.Equal(t, float64(15), again["total_xp"])

	w = s.do(t, request{method: http.MethodPost, path: stepPath + "/slides/" + itoa(slides[0].ID) + "/complete", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(17), decode(t, w)["total_xp"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/stories/limits", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(50), decode(t, w)["progress"])

	w = s.do(t, request{method: http.MethodGet, path: stepPath + "/slides", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, true, views[0]["is_completed"])
	blocks := views[0]["blocks"].([]any)
	assert.Equal(t, "text", blocks[0].(map[string]any)["type"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/progress/dashboard", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode(t, w)
	assert.Equal(t, float64(17), dash["total_xp"])
	assert.Equal(t, "limits", dash["current_story"].(map[string]any)["slug"])
}

func TestCompletionErrors(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.signUp(t, "alice")

	w := s.do(t, request{method: http.MethodPost, path: "/api/steps/9999/complete", token: token})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "step not found", decode(t, w)["error"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/steps/abc/complete", token: token})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/steps/1/complete"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreakWeekUsesTimezoneHeader(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.signUp(t, "alice")

	w := s.do(t, request{method: http.MethodGet, path: "/api/progress/streak-week", token: token, header: map[string]string{middleware.OffsetHeader: "60"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(3), body["today_index"])
	assert.Equal(t, "2024-01-15", body["week_start"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/progress/streak-week?tz_offset=0", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["today_index"])
}

func TestLeaderboardAndAchievements(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.signUp(t, "alice")
	testdb.CreateUser(t, s.db, "bob", 150)

	w := s.do(t, request{method: http.MethodGet, path: "/api/progress/leaderboard"})
	require.Equal(t, http.StatusOK, w.Code)
	board := decode(t, w)
	assert.Equal(t, float64(2), board["total_count"])
	_, hasRank := board["current_user_rank"]
	assert.False(t, hasRank)

	w = s.do(t, request{method: http.MethodGet, path: "/api/progress/leaderboard", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["current_user_rank"])

	require.NoError(t, s.db.Model(&models.User{}).Where("username = ?", "alice").Update("xp", 100).Error)
	w = s.do(t, request{method: http.MethodPost, path: "/api/progress/achievements/check", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	check := decode(t, w)
	require.Len(t, check["newly_earned"], 1)
	assert.Equal(t, "xp-100", check["newly_earned"].([]any)[0].(map[string]any)["code"])
	assert.Equal(t, float64(110), check["total_xp"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/progress/stats", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["achievements_earned"])
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
