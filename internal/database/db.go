package database

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fleet-dashboard/internal/models"
)

var DB *gorm.DB

func Init(dsn string, logger *zap.Logger) {
	var err error

	const maxAttempts = 10
	for i := 1; i <= maxAttempts; i++ {
		logger.Info("connecting to DB", zap.Int("attempt", i), zap.Int("max_attempts", maxAttempts))

		DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			logger.Info("connected to DB")
			break
		}

		logger.Warn("failed to connect to DB", zap.Error(err))
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		logger.Fatal("failed to connect to DB", zap.Int("attempts", maxAttempts), zap.Error(err))
	}

	// миграции
	if err := Migrate(DB); err != nil {
		logger.Fatal("failed to migrate", zap.Error(err))
	}
}

// Migrate creates the session storage and audit tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.StorageEntry{},
		&models.AuditLog{},
	)
}
