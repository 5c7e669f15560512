// Package models defines the GORM models persisted in each room's database.
package models

import "time"

// NarratorUserID is the reserved sender ID for messages authored by the
// narrative engine itself. The row is seeded at migration time.
const NarratorUserID uint = 0

// User is a player known to the room. Users persist across game epochs.
type User struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:64;not null"`
	UpstreamID string `gorm:"size:64;not null;uniqueIndex"` // platform identity
	CreatedAt  time.Time
}
