package models

import "time"

// Objective is a player's registered goal for the current epoch. Score is
// mutated by task-success bookkeeping, not by the session core.
type Objective struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Text      string `gorm:"type:text;not null"`
	UserID    uint   `gorm:"not null;index"`
	Score     int    `gorm:"not null;default:0"`
	GameID    uint   `gorm:"not null;index"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}
