// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// Wrap wraps an existing gorm handle, such as one bound to a transaction.
func Wrap(db *gorm.DB) *DB {
	return &DB{db}
}

// NewDB creates a new database connection for the configured driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	gormLogLevel := gormlogger.Warn
	if log.DebugEnabled() {
		gormLogLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Postgres.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == "postgres" {
		log.Info().
			Str("host", cfg.Postgres.Host).
			Int("port", cfg.Postgres.Port).
			Str("database", cfg.Postgres.Database).
			Msg("Connected to PostgreSQL")
	} else {
		log.Info().Str("path", cfg.SQLitePath).Msg("Connected to SQLite")
	}

	return &DB{db}, nil
}

// AutoMigrate creates or updates tables for all models.
// Used for SQLite databases and tests; PostgreSQL uses RunMigrations.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Story{},
		&models.Chapter{},
		&models.Step{},
		&models.Slide{},
		&models.Enrollment{},
		&models.StepCompletion{},
		&models.SlideCompletion{},
		&models.WeeklyStreakRecord{},
		&models.Achievement{},
		&models.UserAchievement{},
	)
}

// Transaction runs fn inside a transaction. Calling Transaction on a DB that is
// already bound to a transaction opens a savepoint.
func (db *DB) Transaction(fn func(tx *DB) error) error {
	return db.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&DB{tx})
	})
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// notFound converts gorm.ErrRecordNotFound into a typed NotFound error.
func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource)
	}
	return err
}
