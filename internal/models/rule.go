package models

import "time"

// CustomRule is a player-authored rule injected into the narrative prompt.
// Rules are soft-deleted via Removed so the audit history survives. Secret
// rules are still fed to the narrator but hidden from public listings.
type CustomRule struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Rule      string `gorm:"type:text;not null"`
	CreatorID uint   `gorm:"not null"`
	Secret    bool   `gorm:"default:false"`
	Removed   bool   `gorm:"default:false;index"`
	CreatedAt time.Time
}
