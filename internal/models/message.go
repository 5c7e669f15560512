package models

import "time"

// Message statuses. The zero value (empty string) means the message is an
// ordinary, active part of the narrative.
const (
	StatusFiltered   = "filtered"   // dropped by the relevance classifier
	StatusUnfiltered = "unfiltered" // filter verdict overridden by a player
	StatusIrrelevant = "irrelevant" // manually excluded from context
	StatusSudo       = "sudo"       // game-designer edit, hidden from context
)

// Message is one entry in the room's append-only narrative log. UpstreamID
// is the platform's message identifier and is nullable: narrative replies
// are inserted before the platform send, then marked sent once the platform
// assigns an ID (two-phase commit).
type Message struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	UpstreamID *string `gorm:"size:64;uniqueIndex"`
	SenderID   uint    `gorm:"not null;index"`
	Content    string  `gorm:"type:text;not null"`
	ReplyToID  *uint   `gorm:"index"`
	Status     string  `gorm:"size:16"`
	GameID     uint    `gorm:"not null;index"`
	CreatedAt  time.Time

	Sender  User     `gorm:"foreignKey:SenderID"`
	ReplyTo *Message `gorm:"foreignKey:ReplyToID"`
}

// Reaction records a user's reaction symbol on a message. The composite key
// gives duplicate adds insert-ignore semantics.
type Reaction struct {
	MessageID uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"primaryKey"`
	Symbol    string `gorm:"primaryKey;size:32"`
	CreatedAt time.Time
}
