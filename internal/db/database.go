package db

import (
	"fmt"

	"zap-backend/internal/config"
	"zap-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to postgres and migrates the deposit history schema.
// The database is optional: with no DSN configured the service runs without
// persistence.
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		logrus.Info("database not configured, running without deposit history")
		return nil
	}

	dsn := config.AppConfig.Database.DSN

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	if err := DB.AutoMigrate(&models.DepositRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	logrus.Info("database connected and migrated")
	return nil
}
