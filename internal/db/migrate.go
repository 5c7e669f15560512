package db

import (
	"fmt"

	"github.com/fabler/fabler/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model managed by migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Game{},
		&models.Item{},
		&models.WorldItem{},
		&models.InventoryItem{},
		&models.Message{},
		&models.Reaction{},
		&models.CustomRule{},
		&models.Objective{},
		&models.SchemaVersion{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Seed inserts the rows every room database starts with: the narrator
// pseudo-user, the first game epoch, and the schema version marker. All
// inserts are idempotent so Seed is safe to run on every startup.
func Seed(gdb *gorm.DB) error {
	// Raw insert: GORM treats a zero primary key as unset and would let
	// sqlite autoassign, but the narrator must live at a fixed id.
	err := gdb.Exec(
		"INSERT OR IGNORE INTO users (id, name, upstream_id, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		models.NarratorUserID, "Narrator", "0",
	).Error
	if err != nil {
		return fmt.Errorf("db: seed narrator user: %w", err)
	}

	var games int64
	if err := gdb.Model(&models.Game{}).Count(&games).Error; err != nil {
		return fmt.Errorf("db: count games: %w", err)
	}
	if games == 0 {
		if err := gdb.Create(&models.Game{}).Error; err != nil {
			return fmt.Errorf("db: seed first game: %w", err)
		}
	}

	version := models.SchemaVersion{Version: models.CurrentSchemaVersion}
	if err := gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&version).Error; err != nil {
		return fmt.Errorf("db: seed schema version: %w", err)
	}
	return nil
}

// Version reads the schema version marker.
func Version(gdb *gorm.DB) (uint, error) {
	var v models.SchemaVersion
	if err := gdb.First(&v).Error; err != nil {
		return 0, fmt.Errorf("db: read schema version: %w", err)
	}
	return v.Version, nil
}

// Setup runs migration and seeding in order. Every entry point that opens a
// room database goes through here.
func Setup(gdb *gorm.DB) error {
	if err := AutoMigrate(gdb); err != nil {
		return err
	}
	return Seed(gdb)
}
