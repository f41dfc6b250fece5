// Command server runs the calculus learning API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aimd54/calculus-api/internal/api"
	authapi "github.com/aimd54/calculus-api/internal/api/auth"
	contentapi "github.com/aimd54/calculus-api/internal/api/content"
	"github.com/aimd54/calculus-api/internal/api/middleware"
	progressapi "github.com/aimd54/calculus-api/internal/api/progress"
	"github.com/aimd54/calculus-api/internal/cache"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/content"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/internal/service/achievements"
	authsvc "github.com/aimd54/calculus-api/internal/service/auth"
	"github.com/aimd54/calculus-api/internal/service/leaderboard"
	"github.com/aimd54/calculus-api/internal/service/lessons"
	"github.com/aimd54/calculus-api/internal/service/progress"
	"github.com/aimd54/calculus-api/internal/service/streak"
	"github.com/aimd54/calculus-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(cfg.Database.Driver, log); err != nil {
			return err
		}
	}
	if _, err := content.SeedAchievements(repository.NewAchievementRepository(db), log); err != nil {
		return err
	}

	checks := map[string]api.HealthCheck{"database": db.Health}

	// A nil interface disables leaderboard page caching.
	var pageCache cache.Cache
	if cfg.Database.CacheEnabled() {
		redisCache, err := cache.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			return err
		}
		defer redisCache.Close()

		pageCache = redisCache
		checks["redis"] = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisCache.Health(pingCtx)
		}
		log.Info().Str("host", cfg.Database.Redis.Host).Msg("Leaderboard cache enabled")
	}

	clk := clock.System{}
	userRepo := repository.NewUserRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	aggregator := progress.NewAggregator(progressRepo)
	engine := streak.NewEngine(db, clk, log.Component("streak"))
	ranking := leaderboard.NewService(userRepo, pageCache, &cfg.Leaderboard, log.Component("leaderboard"))
	earned := achievements.NewService(db, aggregator, clk, log.Component("achievements"))
	lessonService := lessons.NewService(db, aggregator, engine, ranking, earned, &cfg.Progress, clk, log.Component("lessons"))
	accounts := authsvc.NewService(userRepo, &cfg.Auth, clk, log.Component("auth"))

	router := api.NewRouter(api.RouterConfig{
		Server:   &cfg.Server,
		Metrics:  &cfg.Metrics,
		Auth:     middleware.NewAuth(accounts, cfg.Auth.CookieName),
		Accounts: authapi.NewHandler(accounts, &cfg.Auth, log),
		Content:  contentapi.NewHandler(lessonService, log),
		Progress: progressapi.NewHandler(lessonService, engine, ranking, earned, log),
		Checks:   checks,
		Log:      log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Server.Environment).Msg("Server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
