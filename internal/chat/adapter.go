// Package chat bridges game rooms to chat platforms (Discord, Slack, etc.).
package chat

import "context"

// EventKind discriminates normalized inbound events.
type EventKind string

const (
	// EventMessage is a plain channel message.
	EventMessage EventKind = "message"
	// EventReaction is a reaction added to or removed from a message.
	EventReaction EventKind = "reaction"
	// EventCommand is a slash command invocation.
	EventCommand EventKind = "command"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management and event delivery
// for a single chat platform, scoped to one game channel.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundEvent, error)

	// Send delivers a message to the game channel and returns the
	// platform-assigned message id.
	Send(ctx context.Context, msg OutboundMessage) (string, error)

	// Typing signals that a reply is being generated. Best-effort.
	Typing(ctx context.Context) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundEvent is a normalized event from the chat platform.
type InboundEvent struct {
	Kind     EventKind
	UserID   string // platform-specific user identifier
	UserName string // human-readable display name

	// Message fields.
	Text      string
	MessageID string
	ReplyToID string // platform id of the replied-to message, if any
	ForceFeed bool   // direct reply or mention: bypass the classifier

	// Reaction fields.
	Symbol  string
	Removed bool

	// Command fields.
	Command string
	Args    map[string]string
	// Respond answers the command invocation. Private replies are visible
	// only to the invoking user where the platform supports it.
	Respond func(text string, private bool) error
}

// OutboundMessage is a message to be sent to the game channel.
type OutboundMessage struct {
	Text      string
	ReplyToID string // platform id of the message to thread against, if any
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}
