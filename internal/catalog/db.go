package catalog

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN keeps the catalog for the lifetime of the process only.
const MemoryDSN = ":memory:"

// OpenDB opens the catalog database and migrates its schema. Each in-memory
// database is private to the returned handle.
func OpenDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// every pooled connection to :memory: would get its own empty database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&SharedFile{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return db, nil
}
