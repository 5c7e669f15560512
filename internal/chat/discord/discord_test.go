package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/fabler/fabler/internal/chat"
)

// --- Mock Discord session ---

type mockSession struct {
	mu           sync.Mutex
	opened       bool
	closeCalled  bool
	openErr      error
	sendErr      error
	sentMessages []sentMessage
	typingCalls  []string
	registered   []*discordgo.ApplicationCommand
	responses    []*discordgo.InteractionResponse
	handlers     []interface{}
	removeCount  int
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func newMockSession() *mockSession {
	return &mockSession{}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sentMessages = append(m.sentMessages, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", len(m.sentMessages))}, nil
}

func (m *mockSession) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typingCalls = append(m.typingCalls, channelID)
	return nil
}

func (m *mockSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = commands
	return commands, nil
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockSession) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sentMessages)
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentMessages[len(m.sentMessages)-1]
}

// --- Helper to create a connected adapter ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()

	a, err := New(AdapterOpts{
		Session:   sess,
		ChannelID: "C_GAME",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID("BOT_USER_ID")
	return a, sess
}

func listen(t *testing.T, a *Adapter) <-chan chat.InboundEvent {
	t.Helper()
	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ch
}

func receive(t *testing.T, ch <-chan chat.InboundEvent) chat.InboundEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound event")
		return chat.InboundEvent{}
	}
}

// --- New tests ---

func TestNew_RequiresBotToken(t *testing.T) {
	_, err := New(AdapterOpts{ChannelID: "C1"})
	if err == nil {
		t.Fatal("expected error for missing bot token")
	}
	if !strings.Contains(err.Error(), "bot token") {
		t.Errorf("error = %q, want to mention bot token", err.Error())
	}
}

func TestNew_RequiresChannelID(t *testing.T) {
	_, err := New(AdapterOpts{Session: newMockSession()})
	if err == nil {
		t.Fatal("expected error for missing channel id")
	}
}

// --- Connect tests ---

func TestConnect_Success(t *testing.T) {
	_, sess := newTestAdapter(t)
	if !sess.opened {
		t.Error("expected session to be opened")
	}
}

func TestConnect_OpenError(t *testing.T) {
	sess := newMockSession()
	sess.openErr = fmt.Errorf("gateway error")

	a, _ := New(AdapterOpts{Session: sess, ChannelID: "C1"})
	err := a.Connect(context.Background())
	if err == nil {
		t.Fatal("expected open error")
	}
	if !strings.Contains(err.Error(), "open gateway") {
		t.Errorf("error = %q, want open gateway error", err.Error())
	}
}

func TestConnect_AlreadyClosed(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.Close()
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected error for closed adapter")
	}
}

func TestConnect_Idempotent(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("second connect should not error: %v", err)
	}
}

// --- Message handler tests ---

func TestHandleMessage_DeliversInbound(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "100",
			ChannelID: "C_GAME",
			Content:   "I open the door",
			Author:    &discordgo.User{ID: "U_ALICE", Username: "alice", GlobalName: "Alice"},
		},
	})

	ev := receive(t, ch)
	if ev.Kind != chat.EventMessage {
		t.Errorf("kind = %q, want message", ev.Kind)
	}
	if ev.UserID != "U_ALICE" {
		t.Errorf("user id = %q, want U_ALICE", ev.UserID)
	}
	if ev.UserName != "Alice" {
		t.Errorf("username = %q, want Alice", ev.UserName)
	}
	if ev.Text != "I open the door" {
		t.Errorf("text = %q", ev.Text)
	}
	if ev.ForceFeed {
		t.Error("plain message should not force feed")
	}
}

func TestHandleMessage_FiltersSelfAndBots(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "200", ChannelID: "C_GAME", Content: "self",
			Author: &discordgo.User{ID: "BOT_USER_ID"},
		},
	})
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "201", ChannelID: "C_GAME", Content: "other bot",
			Author: &discordgo.User{ID: "OTHER_BOT", Bot: true},
		},
	})
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "202", ChannelID: "C_GAME", Content: "human",
			Author: &discordgo.User{ID: "U_BOB", Username: "bob"},
		},
	})

	ev := receive(t, ch)
	if ev.Text != "human" {
		t.Errorf("expected human message, got %q", ev.Text)
	}
}

func TestHandleMessage_IgnoresOtherChannels(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "300", ChannelID: "C_OTHER", Content: "elsewhere",
			Author: &discordgo.User{ID: "U1", Username: "u1"},
		},
	})
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "301", ChannelID: "C_GAME", Content: "here",
			Author: &discordgo.User{ID: "U1", Username: "u1"},
		},
	})

	ev := receive(t, ch)
	if ev.Text != "here" {
		t.Errorf("expected in-channel message, got %q", ev.Text)
	}
}

func TestHandleMessage_ReplyToBotForceFeeds(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "400", ChannelID: "C_GAME", Content: "actually, yes I did",
			Author:           &discordgo.User{ID: "U1", Username: "u1"},
			MessageReference: &discordgo.MessageReference{MessageID: "350"},
			ReferencedMessage: &discordgo.Message{
				ID:     "350",
				Author: &discordgo.User{ID: "BOT_USER_ID"},
			},
		},
	})

	ev := receive(t, ch)
	if !ev.ForceFeed {
		t.Error("reply to the bot should force feed")
	}
	if ev.ReplyToID != "350" {
		t.Errorf("reply to id = %q, want 350", ev.ReplyToID)
	}
}

func TestHandleMessage_MentionForceFeeds(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "500", ChannelID: "C_GAME", Content: "hey narrator",
			Author:   &discordgo.User{ID: "U1", Username: "u1"},
			Mentions: []*discordgo.User{{ID: "BOT_USER_ID"}},
		},
	})

	ev := receive(t, ch)
	if !ev.ForceFeed {
		t.Error("mentioning the bot should force feed")
	}
}

func TestHandleMessage_NilAuthor(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{ID: "600", ChannelID: "C_GAME", Content: "no author"},
	})
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID: "601", ChannelID: "C_GAME", Content: "real",
			Author: &discordgo.User{ID: "U1", Username: "u1"},
		},
	})

	ev := receive(t, ch)
	if ev.Text != "real" {
		t.Errorf("expected real message, got %q", ev.Text)
	}
}

// --- Reaction handler tests ---

func TestHandleReaction_AddAndRemove(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleReaction(&discordgo.MessageReaction{
		UserID: "U1", MessageID: "700", ChannelID: "C_GAME",
		Emoji: discordgo.Emoji{Name: "👍"},
	}, nil, false)
	a.handleReaction(&discordgo.MessageReaction{
		UserID: "U1", MessageID: "700", ChannelID: "C_GAME",
		Emoji: discordgo.Emoji{Name: "👍"},
	}, nil, true)

	first := receive(t, ch)
	if first.Kind != chat.EventReaction || first.Removed {
		t.Errorf("first event = %+v, want reaction add", first)
	}
	if first.Symbol != "👍" {
		t.Errorf("symbol = %q", first.Symbol)
	}
	second := receive(t, ch)
	if !second.Removed {
		t.Error("second event should be a removal")
	}
}

func TestHandleReaction_IgnoresBotAndOtherChannels(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleReaction(&discordgo.MessageReaction{
		UserID: "BOT_USER_ID", MessageID: "800", ChannelID: "C_GAME",
	}, nil, false)
	a.handleReaction(&discordgo.MessageReaction{
		UserID: "U1", MessageID: "801", ChannelID: "C_OTHER",
	}, nil, false)
	a.handleReaction(&discordgo.MessageReaction{
		UserID: "U1", MessageID: "802", ChannelID: "C_GAME",
		Emoji: discordgo.Emoji{Name: "🎲"},
	}, nil, false)

	ev := receive(t, ch)
	if ev.MessageID != "802" {
		t.Errorf("message id = %q, want 802", ev.MessageID)
	}
}

// --- Interaction handler tests ---

func TestHandleInteraction_CommandWithArgs(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch := listen(t, a)

	a.handleInteraction(&discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "bid",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "value", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(5)},
				},
			},
			Member: &discordgo.Member{
				Nick: "Sir Alice",
				User: &discordgo.User{ID: "U_ALICE", Username: "alice"},
			},
		},
	})

	ev := receive(t, ch)
	if ev.Kind != chat.EventCommand {
		t.Fatalf("kind = %q, want command", ev.Kind)
	}
	if ev.Command != "bid" {
		t.Errorf("command = %q, want bid", ev.Command)
	}
	if ev.Args["value"] != "5" {
		t.Errorf("args[value] = %q, want 5", ev.Args["value"])
	}
	if ev.UserName != "Sir Alice" {
		t.Errorf("username = %q, want guild nickname", ev.UserName)
	}

	if err := ev.Respond("Bid accepted.", true); err != nil {
		t.Fatalf("respond: %v", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.responses) != 1 {
		t.Fatalf("expected 1 interaction response, got %d", len(sess.responses))
	}
	resp := sess.responses[0]
	if resp.Data.Content != "Bid accepted." {
		t.Errorf("response content = %q", resp.Data.Content)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("private response should be ephemeral")
	}
}

func TestHandleInteraction_PublicRespond(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch := listen(t, a)

	a.handleInteraction(&discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: "start"},
			User: &discordgo.User{ID: "U1", Username: "u1"},
		},
	})

	ev := receive(t, ch)
	if err := ev.Respond("Game on!", false); err != nil {
		t.Fatalf("respond: %v", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.responses[0].Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
		t.Error("public response should not be ephemeral")
	}
}

func TestHandleInteraction_IgnoresNonCommands(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch := listen(t, a)

	a.handleInteraction(&discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{Type: discordgo.InteractionMessageComponent},
	})
	a.handleInteraction(&discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: "points"},
			User: &discordgo.User{ID: "U1", Username: "u1"},
		},
	})

	ev := receive(t, ch)
	if ev.Command != "points" {
		t.Errorf("command = %q, want points", ev.Command)
	}
}

// --- Send tests ---

func TestSend_Plain(t *testing.T) {
	a, sess := newTestAdapter(t)

	id, err := a.Send(context.Background(), chat.OutboundMessage{Text: "The door creaks open."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("id = %q, want msg-1", id)
	}
	last := sess.lastSent()
	if last.channelID != "C_GAME" {
		t.Errorf("channel = %q, want C_GAME", last.channelID)
	}
	if last.data.Reference != nil {
		t.Error("expected no message reference")
	}
}

func TestSend_ThreadedReply(t *testing.T) {
	a, sess := newTestAdapter(t)

	_, err := a.Send(context.Background(), chat.OutboundMessage{
		Text:      "You take the sword.",
		ReplyToID: "900",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := sess.lastSent()
	if last.data.Reference == nil || last.data.Reference.MessageID != "900" {
		t.Errorf("reference = %+v, want reply to 900", last.data.Reference)
	}
}

func TestSend_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession(), ChannelID: "C1"})
	if _, err := a.Send(context.Background(), chat.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error for not connected")
	}
}

func TestSend_PostError(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.sendErr = fmt.Errorf("channel not found")
	if _, err := a.Send(context.Background(), chat.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected send error")
	}
}

// --- Typing tests ---

func TestTyping(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Typing(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.typingCalls) != 1 || sess.typingCalls[0] != "C_GAME" {
		t.Errorf("typing calls = %v", sess.typingCalls)
	}
}

// --- Close tests ---

func TestClose_Success(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.closeCalled {
		t.Error("expected session Close() to be called")
	}
}

func TestClose_Idempotent(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.Close()
	if err := a.Close(); err != nil {
		t.Fatalf("second close should not error: %v", err)
	}
}

func TestClose_RemovesListenHandlers(t *testing.T) {
	a, sess := newTestAdapter(t)
	listen(t, a)
	a.Close()

	sess.mu.Lock()
	removed := sess.removeCount
	sess.mu.Unlock()
	if removed != 4 {
		t.Errorf("expected 4 handlers removed, got %d", removed)
	}
}

// --- retryOnRateLimit tests ---

func TestRetryOnRateLimit_NonRateLimitError(t *testing.T) {
	a, _ := newTestAdapter(t)
	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return fmt.Errorf("some other error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("should not retry non-rate-limit errors, calls = %d", calls)
	}
}

func TestRetryOnRateLimit_RetriesAndSucceeds(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 10 * time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 10 * time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxRetries+1 {
		t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.retryOnRateLimit(ctx, func() error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Command definition sanity ---

func TestCommandDefs_CoverDaemonSurface(t *testing.T) {
	want := []string{
		"register", "start", "bid", "points", "leaderboard",
		"toggle-bidding", "state", "show", "rule", "sudo", "clear",
	}
	names := make(map[string]bool, len(commandDefs))
	for _, def := range commandDefs {
		names[def.Name] = true
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing command definition %q", name)
		}
	}
}

// --- Verify Adapter interface compliance ---

var _ chat.Adapter = (*Adapter)(nil)
