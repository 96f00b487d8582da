package database

import (
	"offline-sync-agent/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens the agent's durable store and runs migrations. The returned
// handle is injected into each component; there is no package-level instance.
func Open(path string) (*gorm.DB, error) {
	// Using glebarez/sqlite which is a pure Go implementation (no CGO required)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the schema (it will create tables if they don't exist)
	if err := db.AutoMigrate(
		&models.CacheEntry{},
		&models.CacheMeta{},
		&models.QueueItem{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
