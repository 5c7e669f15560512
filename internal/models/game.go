package models

import "time"

// Game is a single play-through epoch. World state, inventories, messages,
// and objectives are scoped to the active game; clearing the game creates a
// new row and older epochs stay queryable but inactive.
type Game struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
}

// SchemaVersion is a single-row marker for future migrations.
type SchemaVersion struct {
	Version uint `gorm:"primaryKey"`
}

// CurrentSchemaVersion is the version written by Seed.
const CurrentSchemaVersion uint = 1
