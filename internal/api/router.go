// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "github.com/aimd54/calculus-api/internal/api/auth"
	contentapi "github.com/aimd54/calculus-api/internal/api/content"
	"github.com/aimd54/calculus-api/internal/api/middleware"
	progressapi "github.com/aimd54/calculus-api/internal/api/progress"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func() error

// RouterConfig holds the handlers and middleware mounted by NewRouter.
type RouterConfig struct {
	Server   *config.ServerConfig
	Metrics  *config.MetricsConfig
	Auth     *middleware.Auth
	Accounts *authapi.Handler
	Content  *contentapi.Handler
	Progress *progressapi.Handler
	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthCheck
	Log    *logger.Logger
}

// NewRouter builds the gin engine with every API route under /api.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(middleware.Timezone())

	router.GET("/health", health(cfg.Checks))
	if cfg.Metrics != nil && cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	requireAuth := cfg.Auth.RequireAuth()
	optionalAuth := cfg.Auth.OptionalAuth()

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", cfg.Accounts.Register)
		auth.POST("/login", cfg.Accounts.Login)
		auth.POST("/logout", cfg.Accounts.Logout)
		auth.GET("/me", requireAuth, cfg.Accounts.Me)
		auth.PUT("/profile", requireAuth, cfg.Accounts.UpdateProfile)

		api.GET("/categories", cfg.Content.ListCategories)
		api.GET("/stories", optionalAuth, cfg.Content.ListStories)
		api.GET("/stories/:slug", optionalAuth, cfg.Content.GetStory)
		api.POST("/stories/:slug/enroll", requireAuth, cfg.Content.Enroll)
		api.GET("/steps/:id", optionalAuth, cfg.Content.GetStep)
		api.GET("/steps/:id/slides", optionalAuth, cfg.Content.GetSlides)
		api.POST("/steps/:id/complete", requireAuth, cfg.Content.CompleteStep)
		api.POST("/steps/:id/slides/:slide_id/complete", requireAuth, cfg.Content.CompleteSlide)

		progress := api.Group("/progress")
		progress.GET("/leaderboard", optionalAuth, cfg.Progress.GetLeaderboard)

		learner := progress.Group("", requireAuth)
		learner.GET("/dashboard", cfg.Progress.GetDashboard)
		learner.GET("/stats", cfg.Progress.GetStats)
		learner.GET("/streak-week", cfg.Progress.GetStreakWeek)
		learner.POST("/streak-week", cfg.Progress.SaveStreakWeek)
		learner.GET("/achievements", cfg.Progress.ListAchievements)
		learner.POST("/achievements/check", cfg.Progress.CheckAchievements)
	}

	return router
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		components := gin.H{}
		for name, check := range checks {
			if err := check(); err != nil {
				status = http.StatusServiceUnavailable
				components[name] = err.Error()
				continue
			}
			components[name] = "ok"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		c.JSON(status, gin.H{"status": overall, "components": components})
	}
}
