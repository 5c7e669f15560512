// Package db opens and migrates each room's SQLite database.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RoomPath builds the database path for a room under dataDir. One database
// file per room; rooms never share state.
func RoomPath(dataDir, roomID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("room_%s.db", roomID))
}

// Open opens a GORM connection to the SQLite database at path, creating the
// parent directory if needed. The busy timeout keeps short lock contention
// inside SQLite instead of surfacing it to every caller.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create data dir %s: %w", dir, err)
		}
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	return gdb, nil
}

// OpenMemory opens an in-memory database, used by tests. The pool is capped
// at one connection because each SQLite memory connection is its own
// database.
func OpenMemory() (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open in-memory: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open in-memory: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}
