package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leok974/ApplyLens-sub019/config"
	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// Open connects to the configured database and runs migrations for the
// governance tables.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var db *gorm.DB
	var err error
	switch cfg.DBType {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.DBType, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	slog.Info("Connected to database", "type", cfg.DBType)
	return db, nil
}

// Migrate creates or updates the governance tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.PolicySnapshot{},
		&models.ApprovalRequest{},
		&models.AuditRecord{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
