package db

import (
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm opens the MySQL-backed item store connection.
func OpenGorm(dsn string, logLevel slog.Level) (*gorm.DB, error) {
	return OpenGormWithDialector(mysql.Open(dsn), logLevel)
}

func OpenGormWithDialector(dial gorm.Dialector, logLevel slog.Level) (*gorm.DB, error) {
	// pinged explicitly below, after pool limits are applied
	cfg := &gorm.Config{
		Logger:               logger.Default.LogMode(gormLevel(logLevel)),
		TranslateError:       true,
		DisableAutomaticPing: true,
	}
	db, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	slog.Info("gorm: connected", "dialect", dial.Name())
	return db, nil
}

func gormLevel(l slog.Level) logger.LogLevel {
	switch {
	case l <= slog.LevelDebug:
		return logger.Info
	case l <= slog.LevelWarn:
		return logger.Warn
	default:
		return logger.Error
	}
}
