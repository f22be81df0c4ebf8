package database

import (
	"fmt"
	"log/slog"

	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the application-role pool used by every request path.
func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	db, err := open(cfg.DSN(), cfg.SSLMode, 100)
	if err != nil {
		return nil, err
	}

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name, "role", cfg.User)
	return db, nil
}

// ConnectService opens the elevated pool. Only auth.Provisioner receives it.
func ConnectService(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	db, err := open(cfg.ServiceDSN(), cfg.SSLMode, 5)
	if err != nil {
		return nil, err
	}

	role := cfg.ServiceUser
	if role == "" {
		log.Warn("DATABASE_SERVICE_USER not set, provisioning runs as the application role")
		role = cfg.User
	}
	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name, "role", role)
	return db, nil
}

func open(dsn, sslMode string, maxOpen int) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if sslMode == "disable" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(maxOpen)

	return db, nil
}

// AutoMigrate is used by tests against SQLite. Postgres deployments run the
// SQL files in migrations/ instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.CloudAccount{},
		&models.ScanResult{},
		&models.ComplianceReport{},
	)
}

func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
