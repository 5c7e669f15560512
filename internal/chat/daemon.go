package chat

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fabler/fabler/internal/config"
	"github.com/fabler/fabler/internal/session"
)

// Daemon is the main room process. It connects to a chat platform via an
// Adapter, pumps inbound events into the session engine, and posts the
// engine's replies and announcements back to the game channel.
type Daemon struct {
	cfg     *config.Config
	engine  *session.Engine
	adapter Adapter
	out     io.Writer

	// nextFire computes the wait until the digest schedule fires next;
	// injectable so scheduler tests need not wait out a real cron slot.
	nextFire func(expr string) time.Duration
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Config  *config.Config
	Engine  *session.Engine
	Adapter Adapter
	Out     io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("chat: config is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("chat: engine is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("chat: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		cfg:      opts.Config,
		engine:   opts.Engine,
		adapter:  opts.Adapter,
		out:      out,
		nextFire: nextDigestDelay,
	}, nil
}

// digestParser accepts standard 5-field cron expressions (minute, hour,
// day of month, month, day of week).
var digestParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextDigestDelay returns the wait until expr next fires. Unparseable
// expressions yield 0, which the scheduler treats as a bad schedule.
func nextDigestDelay(expr string) time.Duration {
	sched, err := digestParser.Parse(expr)
	if err != nil {
		return 0
	}
	if d := time.Until(sched.Next(time.Now())); d > 0 {
		return d
	}
	return 0
}

// Run starts the daemon. It connects the adapter, starts the engine's
// message queue and the digest scheduler, and blocks pumping inbound events
// until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Fabler connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("chat: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("chat: listen: %w", err)
	}

	if d.cfg.Digest.Enabled {
		go d.runDigestScheduler(ctx)
	}

	fmt.Fprintf(d.out, "Fabler online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Fabler shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("chat: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Fabler stopped\n")
			return nil

		case ev, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Fabler inbound channel closed\n")
				return nil
			}
			if botUserID != "" && ev.UserID == botUserID {
				continue
			}
			d.route(ctx, ev)
		}
	}
}

// route dispatches one inbound event. Messages are handled on their own
// goroutine because generation is slow; the engine's queue serializes the
// actual processing.
func (d *Daemon) route(ctx context.Context, ev InboundEvent) {
	switch ev.Kind {
	case EventMessage:
		go d.handleMessage(ctx, ev)
	case EventReaction:
		d.handleReaction(ctx, ev)
	case EventCommand:
		go d.handleCommand(ctx, ev)
	}
}

// handleMessage runs one chat message through the engine and posts the
// narrative reply.
func (d *Daemon) handleMessage(ctx context.Context, ev InboundEvent) {
	if err := d.adapter.Typing(ctx); err != nil {
		log.Printf("chat: typing: %v", err)
	}

	resp, err := d.engine.ProcessMessage(ctx, session.Inbound{
		UserID:    ev.UserID,
		UserName:  ev.UserName,
		Text:      ev.Text,
		MessageID: ev.MessageID,
		ReplyToID: ev.ReplyToID,
		ForceFeed: ev.ForceFeed,
	})
	if err != nil {
		log.Printf("chat: process message: %v", err)
		return
	}
	if resp == nil {
		return
	}

	d.deliver(ctx, resp, ev.MessageID)
}

// deliver posts a narrative reply and completes the two-phase send with the
// platform-assigned id.
func (d *Daemon) deliver(ctx context.Context, resp *session.Response, replyToID string) {
	sentID, err := d.adapter.Send(ctx, OutboundMessage{
		Text:      resp.Text,
		ReplyToID: replyToID,
	})
	if err != nil {
		log.Printf("chat: send reply: %v", err)
		return
	}
	if err := resp.MarkResponded(sentID); err != nil {
		log.Printf("chat: mark responded: %v", err)
	}
}

// Reaction symbols with gameplay meaning. Discord delivers the emoji itself,
// Slack its short name.
var (
	irrelevantSymbols = map[string]bool{"❌": true, "x": true}
	replaySymbols     = map[string]bool{"📤": true, "outbox_tray": true}
)

func (d *Daemon) handleReaction(ctx context.Context, ev InboundEvent) {
	if !ev.Removed {
		switch {
		case irrelevantSymbols[ev.Symbol]:
			if err := d.engine.MarkIrrelevant(ev.MessageID); err != nil {
				log.Printf("chat: mark irrelevant: %v", err)
			}
			return
		case replaySymbols[ev.Symbol]:
			go d.replayFiltered(ctx, ev)
			return
		}
	}

	var err error
	if ev.Removed {
		err = d.engine.RemoveReaction(ev.MessageID, ev.UserID, ev.UserName, ev.Symbol)
	} else {
		err = d.engine.AddReaction(ev.MessageID, ev.UserID, ev.UserName, ev.Symbol)
	}
	if err != nil {
		log.Printf("chat: reaction: %v", err)
	}
}

// replayFiltered pushes a filtered message back through the engine and posts
// the resulting reply threaded on the original.
func (d *Daemon) replayFiltered(ctx context.Context, ev InboundEvent) {
	resp, err := d.engine.ReplayFiltered(ctx, ev.MessageID)
	if err != nil {
		log.Printf("chat: replay filtered: %v", err)
		return
	}
	if resp == nil {
		return
	}
	d.deliver(ctx, resp, ev.MessageID)
}

// runDigestScheduler posts the leaderboard to the game channel on the
// configured cron schedule.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	expr := d.cfg.Digest.Cron
	if expr == "" {
		return
	}
	next := d.nextFire(expr)
	if next <= 0 {
		log.Printf("chat: digest: bad cron expression %q", expr)
		return
	}
	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fireDigest(ctx)
			if next := d.nextFire(expr); next > 0 {
				timer.Reset(next)
			}
		}
	}
}

// fireDigest sends a single leaderboard digest. Empty boards are suppressed.
func (d *Daemon) fireDigest(ctx context.Context) {
	board := d.engine.Leaderboard()
	if board == "" {
		return
	}
	if _, err := d.adapter.Send(ctx, OutboundMessage{
		Text: "Daily leaderboard:\n" + board,
	}); err != nil {
		log.Printf("chat: send digest: %v", err)
	}
}
