package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"brigadas-analytics/internal/config"
	"brigadas-analytics/internal/models"
)

const defaultSQLiteURL = "sqlite://./brigadas.db"

// Init opens the database selected by cfg.URL, configures the pool and runs auto-migration
func Init(cfg config.Database, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dialector, err := dialectorFor(cfg.URL, log)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.Debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info("Database connection pool configured",
		zap.Int("max_open", cfg.MaxOpenConns),
		zap.Int("max_idle", cfg.MaxIdleConns),
		zap.Duration("max_lifetime", cfg.ConnMaxLifetime))

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	log.Info("Database initialized")
	return db, nil
}

func dialectorFor(databaseURL string, log *zap.Logger) (gorm.Dialector, error) {
	if databaseURL == "" {
		databaseURL = defaultSQLiteURL
	}

	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")

		// The default file lives in the user config directory
		if databaseURL == defaultSQLiteURL {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user config directory: %w", err)
			}

			appDir := filepath.Join(configDir, "brigadas-analytics")
			if err := os.MkdirAll(appDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create app directory: %w", err)
			}

			dbPath = filepath.Join(appDir, "brigadas.db")
			log.Info("Using SQLite database", zap.String("path", dbPath))
		}
		return sqlite.Open(dbPath), nil

	case strings.HasPrefix(databaseURL, "postgresql://"), strings.HasPrefix(databaseURL, "postgres://"):
		return postgres.Open(databaseURL), nil

	default:
		return nil, fmt.Errorf("unsupported database URL format: %s", databaseURL)
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Leader{},
		&models.BrigadeMember{},
		&models.Mobilizer{},
		&models.Citizen{},
		&models.ConnectionProfile{},
		&models.ScheduledJob{},
		&models.StatsSnapshot{},
	)
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
