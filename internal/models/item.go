package models

import "time"

// Item interns an arbitrary free-text world fact or inventory descriptor.
// Uniqueness is by exact string content; world state and inventories share
// this dictionary.
type Item struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:text;not null;uniqueIndex:,length:256"`
	CreatedAt time.Time
}

// WorldItem marks an item as currently true of the shared world within a
// game epoch. Presence is the whole payload; add/remove are set operations.
type WorldItem struct {
	ItemID    uint `gorm:"primaryKey"`
	GameID    uint `gorm:"primaryKey;index"`
	CreatedAt time.Time
}

// InventoryItem marks an item as held by a player within a game epoch.
type InventoryItem struct {
	UserID    uint `gorm:"primaryKey"`
	ItemID    uint `gorm:"primaryKey"`
	GameID    uint `gorm:"primaryKey;index"`
	CreatedAt time.Time
}
