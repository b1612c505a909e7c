package database

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/tagnotes/internal/entities"
)

// Models lists every entity managed by AutoMigrate.
var Models = []any{
	&entities.User{},
	&entities.NormalizationSettings{},
	&entities.Record{},
	&entities.ImportSession{},
	&entities.ImportErrorEntry{},
	&entities.ImportPayload{},
	&entities.AuditEvent{},
}

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the SQLite database at dbPath, migrates the schema and
// seeds the default user. logLevel is one of silent, error, warn, info.
func NewDatabase(dbPath string, logLevel string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(DSN(dbPath)), &gorm.Config{
		Logger:         logger.Default.LogMode(ParseLogLevel(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if _, err := database.DefaultUser(); err != nil {
		return nil, fmt.Errorf("failed to seed default user: %w", err)
	}

	zap.L().Info("database initialized", zap.String("path", dbPath))

	return database, nil
}

// DSN appends the connection options the import pipeline relies on.
// A busy timeout lets async audit writes wait for a chunk transaction instead
// of failing with "database is locked".
func DSN(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_busy_timeout=5000&_foreign_keys=on"
}

// ParseLogLevel maps a config string onto a gorm log level.
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the underlying connection is alive.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DefaultUser returns the seeded single-user owner, creating it on first use.
func (d *Database) DefaultUser() (*entities.User, error) {
	var user entities.User
	err := d.DB.Where("username = ?", entities.DefaultUsername).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = entities.User{Username: entities.DefaultUsername}
		if err := d.DB.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create default user: %w", err)
		}
		zap.L().Info("created default user", zap.Uint("user_id", user.ID))
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
