// Package slack implements the chat Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/fabler/fabler/internal/chat"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements chat.Adapter for Slack Socket Mode.
type Adapter struct {
	client      slackClient
	socket      socketClient
	postWebhook func(url string, msg *slackapi.WebhookMessage) error
	botUserID   string
	appToken    string
	botToken    string
	channelID   string // the game channel

	mu           sync.Mutex
	connected    bool
	closed       bool
	inbound      chan chat.InboundEvent
	cancelFunc   context.CancelFunc
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken  string // xapp-... Slack app-level token for Socket Mode
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // game channel to play in
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}

	a := &Adapter{
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		channelID:    opts.ChannelID,
		postWebhook:  slackapi.PostWebhook,
		inbound:      make(chan chat.InboundEvent, 100),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Socket != nil {
		a.socket = opts.Socket
	}
	return a, nil
}

// Connect establishes the Socket Mode WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	// Bot user ID is needed for self-message filtering.
	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID

	a.connected = true
	return nil
}

// Listen returns a channel of inbound events. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundEvent, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelFunc = cancel
	a.mu.Unlock()

	go a.runWithReconnect(listenCtx)
	go a.pumpEvents(listenCtx)

	return a.inbound, nil
}

// Send posts a message to the game channel and returns its timestamp id.
// A ReplyToID threads the message under the original.
func (a *Adapter) Send(ctx context.Context, msg chat.OutboundMessage) (string, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return "", fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	options := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if msg.ReplyToID != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ReplyToID))
	}

	var timestamp string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		_, timestamp, postErr = a.client.PostMessage(a.channelID, options...)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return timestamp, nil
}

// Typing is a no-op. The Slack Web API has no typing indicator for bots.
func (a *Adapter) Typing(ctx context.Context) error {
	return nil
}

// Close shuts down the adapter and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when Run() returns an error.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.Run()
		if err == nil {
			return // clean shutdown
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v, reconnecting in %v",
			attempt+1, a.maxReconnect, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", a.maxReconnect)
}

// pumpEvents reads Socket Mode events and converts them to inbound events.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(eventsAPIEvent)

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slackapi.SlashCommand)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleSlashCommand(cmd)

	case socketmode.EventTypeConnecting:
		log.Printf("slack: connecting to Socket Mode...")

	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)

	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI processes Events API callbacks.
func (a *Adapter) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		a.handleMessage(ev)
	case *slackevents.AppMentionEvent:
		a.handleAppMention(ev)
	case *slackevents.ReactionAddedEvent:
		a.handleReaction(ev.Item.Channel, ev.User, ev.Item.Timestamp, ev.Reaction, false)
	case *slackevents.ReactionRemovedEvent:
		a.handleReaction(ev.Item.Channel, ev.User, ev.Item.Timestamp, ev.Reaction, true)
	}
}

// handleMessage converts a Slack message event to an inbound event. Replies
// threaded under one of the bot's messages force-feed past the classifier.
func (a *Adapter) handleMessage(ev *slackevents.MessageEvent) {
	if ev.Channel != a.channelID {
		return
	}
	if ev.User == a.botUserID || ev.BotID != "" || ev.SubType != "" {
		return
	}

	forceFeed := false
	if ev.ParentUserId == a.botUserID {
		forceFeed = true
	}

	a.inbound <- chat.InboundEvent{
		Kind:      chat.EventMessage,
		UserID:    ev.User,
		UserName:  a.resolveUserName(ev.User),
		Text:      ev.Text,
		MessageID: ev.TimeStamp,
		ReplyToID: ev.ThreadTimeStamp,
		ForceFeed: forceFeed,
	}
}

// handleAppMention converts an @mention into a force-fed inbound event.
func (a *Adapter) handleAppMention(ev *slackevents.AppMentionEvent) {
	if ev.Channel != a.channelID || ev.User == a.botUserID {
		return
	}

	a.inbound <- chat.InboundEvent{
		Kind:      chat.EventMessage,
		UserID:    ev.User,
		UserName:  a.resolveUserName(ev.User),
		Text:      stripMention(ev.Text, a.botUserID),
		MessageID: ev.TimeStamp,
		ReplyToID: ev.ThreadTimeStamp,
		ForceFeed: true,
	}
}

// handleReaction converts a reaction toggle into an inbound event.
func (a *Adapter) handleReaction(channelID, userID, messageID, name string, removed bool) {
	if channelID != a.channelID || userID == a.botUserID {
		return
	}

	a.inbound <- chat.InboundEvent{
		Kind:      chat.EventReaction,
		UserID:    userID,
		UserName:  a.resolveUserName(userID),
		MessageID: messageID,
		Symbol:    name,
		Removed:   removed,
	}
}

// handleSlashCommand converts a slash command invocation into an inbound
// event carrying a respond callback bound to the command's response URL.
func (a *Adapter) handleSlashCommand(cmd slackapi.SlashCommand) {
	name := strings.TrimPrefix(cmd.Command, "/")
	responseURL := cmd.ResponseURL

	a.inbound <- chat.InboundEvent{
		Kind:     chat.EventCommand,
		UserID:   cmd.UserID,
		UserName: cmd.UserName,
		Command:  name,
		Args:     parseCommandArgs(name, cmd.Text),
		Respond: func(text string, private bool) error {
			responseType := "in_channel"
			if private {
				responseType = "ephemeral"
			}
			return a.postWebhook(responseURL, &slackapi.WebhookMessage{
				Text:         text,
				ResponseType: responseType,
			})
		},
	}
}

// parseCommandArgs maps a slash command's free text onto the named argument
// each command expects.
func parseCommandArgs(command, text string) map[string]string {
	args := make(map[string]string)
	text = strings.TrimSpace(text)

	switch command {
	case "register":
		args["objective"] = text
	case "bid":
		args["value"] = text
	case "sudo":
		args["text"] = text
	case "show":
		args["what"] = text
	case "rule":
		// "/rule add <text> [secret]" or "/rule remove <ids>"
		action, rest, _ := strings.Cut(text, " ")
		args["action"] = action
		switch action {
		case "add":
			if trimmed, found := strings.CutSuffix(rest, " secret"); found {
				args["rule"] = strings.TrimSpace(trimmed)
				args["secret"] = "true"
			} else {
				args["rule"] = strings.TrimSpace(rest)
			}
		case "remove":
			args["ids"] = strings.TrimSpace(rest)
		}
	}
	return args
}

// stripMention removes the leading bot mention from message text.
func stripMention(text, botUserID string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", ""))
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
