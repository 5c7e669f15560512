// Package session is the per-room façade over storage, bidding, and the
// narrator. One Engine owns one room: its sqlite file, its auction state,
// and its in-memory game caches. All message processing for a room funnels
// through a single queue goroutine so no two mutations interleave.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fabler/fabler/internal/bidding"
	"github.com/fabler/fabler/internal/config"
	"github.com/fabler/fabler/internal/models"
	"github.com/fabler/fabler/internal/narrator"
	"github.com/fabler/fabler/internal/store"
)

// diceFailureDelay postpones the auction forced by a failed skill check so
// the narrative reply describing the failure lands first.
const diceFailureDelay = 10 * time.Second

// Inbound is a normalized player message from a chat adapter.
type Inbound struct {
	UserID    string // platform user id
	UserName  string // display name
	Text      string
	MessageID string // platform message id
	ReplyToID string // platform id of the replied-to message, if any
	Sudo      bool   // game-designer world edit
	ForceFeed bool   // bypass the relevance classifier
}

// Response is a narrative reply pending delivery. After the adapter posts
// it, MarkResponded records the platform-assigned id so later replies can
// thread against it.
type Response struct {
	Text string

	messageID uint
	engine    *Engine
}

// MarkResponded completes the two-phase send with the platform's id for the
// delivered reply.
func (r *Response) MarkResponded(upstreamReplyID string) error {
	return r.engine.st.Tx(func(c *store.Conn) error {
		return c.MarkMessageSent(r.messageID, upstreamReplyID)
	})
}

// Engine coordinates one room.
type Engine struct {
	st     *store.Store
	interp *narrator.Interpreter
	bids   *bidding.Coordinator
	send   func(text string)
	window int

	queue      chan task
	stop       chan struct{}
	stopOnce   sync.Once
	startGrace time.Duration

	mu          sync.Mutex
	started     bool
	world       map[string]struct{}
	inventories map[uint]map[string]struct{}
	rules       []models.CustomRule
	objectives  map[string][]models.Objective

	// diceCoin overrides the skill-check roll; tests inject a fixed coin.
	diceCoin func() bool
}

type task struct {
	ctx context.Context
	in  Inbound
	out chan<- taskResult
}

type taskResult struct {
	resp *Response
	err  error
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Store       *store.Store
	Interpreter *narrator.Interpreter
	Send        func(text string) // required: posts to the game channel
	Bidding     config.BiddingConfig
	Window      int // context window, defaults to store.DefaultContextWindow

	// DiceCoin overrides the skill-check roll. Optional.
	DiceCoin func() bool
	// Pick overrides the auction tie-break. Optional.
	Pick func(n int) int
}

// New creates an Engine and rebuilds its caches from storage. Auction state
// is deliberately not rebuilt: bids never survive a restart, only point
// seeds derived from registered objectives do.
func New(opts Opts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	if opts.Interpreter == nil {
		return nil, fmt.Errorf("session: interpreter is required")
	}
	if opts.Send == nil {
		return nil, fmt.Errorf("session: send is required")
	}
	window := opts.Window
	if window == 0 {
		window = store.DefaultContextWindow
	}

	bids, err := bidding.New(bidding.Opts{
		Config: bidding.Config{
			StartingPoints: opts.Bidding.StartingPoints,
			PointCap:       opts.Bidding.PointCap,
			AuctionTimeout: time.Duration(opts.Bidding.AuctionTimeoutSec) * time.Second,
			LastCall:       time.Duration(opts.Bidding.LastCallSec) * time.Second,
			TurnTimeout:    time.Duration(opts.Bidding.TurnTimeoutSec) * time.Second,
			TurnThreshold:  opts.Bidding.TurnMessageThreshold,
			RampWidth:      opts.Bidding.TurnRampWidth,
		},
		Announce: opts.Send,
		Pick:     opts.Pick,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	e := &Engine{
		st:          opts.Store,
		interp:      opts.Interpreter,
		bids:        bids,
		send:        opts.Send,
		window:      window,
		queue:       make(chan task),
		stop:        make(chan struct{}),
		startGrace:  time.Duration(opts.Bidding.StartGraceSec) * time.Second,
		inventories: make(map[uint]map[string]struct{}),
		diceCoin:    opts.DiceCoin,
	}
	if err := e.reloadCaches(); err != nil {
		return nil, err
	}

	// Objective owners are the player roster; re-seed their balances so a
	// restarted room can auction immediately.
	e.mu.Lock()
	for owner := range e.objectives {
		e.bids.AddPlayer(owner)
	}
	e.mu.Unlock()

	go e.loop()
	return e, nil
}

// loop drains the message queue. It is the only goroutine that executes
// message pipelines, which is what serializes all mutations for the room.
func (e *Engine) loop() {
	for {
		select {
		case <-e.stop:
			return
		case t := <-e.queue:
			resp, err := e.handle(t.ctx, t.in)
			t.out <- taskResult{resp: resp, err: err}
		}
	}
}

// Close stops the queue goroutine and cancels all auction timers. The
// Engine must not be used afterwards.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.bids.Reset(false)
	})
}

// ProcessMessage queues one inbound message and waits for its outcome. A
// nil Response with nil error means the message was silently dropped:
// either it was not the sender's turn or the classifier filtered it.
func (e *Engine) ProcessMessage(ctx context.Context, in Inbound) (*Response, error) {
	out := make(chan taskResult, 1)
	select {
	case e.queue <- task{ctx: ctx, in: in, out: out}:
	case <-e.stop:
		return nil, fmt.Errorf("session: engine closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-out:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handle runs the full pipeline for one message on the queue goroutine.
func (e *Engine) handle(ctx context.Context, in Inbound) (*Response, error) {
	if !in.Sudo && !e.bids.IsMessageAllowed(in.UserID) {
		return nil, nil
	}

	if !in.ForceFeed && !in.Sudo {
		ok, err := e.interp.IsGameAction(ctx, in.Text)
		if err != nil {
			return nil, fmt.Errorf("session: classify message: %w", err)
		}
		if !ok {
			if err := e.recordFiltered(in); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}

	var (
		userID    uint
		userName  string
		messageID uint
		msgCtx    []store.SimpleMessage
	)
	err := e.st.Tx(func(c *store.Conn) error {
		user, err := c.GetOrCreateUser(in.UserID, in.UserName)
		if err != nil {
			return err
		}
		userID = user.ID
		userName = user.Name

		messageID, err = e.ensureMessageRow(c, in, userID)
		if err != nil {
			return err
		}

		msgCtx, err = c.MessageContext(messageID, e.window)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session: record message: %w", err)
	}

	inventory, err := e.playerInventory(userID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	material := narrator.PromptMaterial{
		PlayerName:  userName,
		Sudo:        in.Sudo,
		WorldState:  copySet(e.world),
		Inventory:   inventory,
		CustomRules: append([]models.CustomRule(nil), e.rules...),
		Objectives:  append([]models.Objective(nil), e.objectives[in.UserID]...),
		Context:     msgCtx,
	}
	e.mu.Unlock()

	dice := &narrator.DiceRoller{
		Coin: e.diceCoin,
		OnFailure: func() {
			e.bids.StartBidding(diceFailureDelay)
		},
	}
	modelResp, err := e.interp.ProcessAction(ctx, in.Text, material, dice)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	var replyID uint
	err = e.st.Tx(func(c *store.Conn) error {
		if err := c.UpdateGameState(userID, modelResp.WorldStateUpdates, modelResp.PlayerInventoryUpdates); err != nil {
			return err
		}
		replyID, err = c.AddMessage(modelResp.Response, models.NarratorUserID, store.AddMessageOpts{
			ReplyToID: &messageID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session: persist reply: %w", err)
	}

	e.applyPatches(userID, modelResp)
	e.bids.IncrementTurnProgress()

	return &Response{Text: modelResp.Response, messageID: replyID, engine: e}, nil
}

// recordFiltered persists a classifier-rejected message so force-feeding it
// later can resurrect it instead of losing it.
func (e *Engine) recordFiltered(in Inbound) error {
	err := e.st.Tx(func(c *store.Conn) error {
		user, err := c.GetOrCreateUser(in.UserID, in.UserName)
		if err != nil {
			return err
		}
		if existing, err := c.GetMessage(in.MessageID); err != nil {
			return err
		} else if existing != nil {
			return nil
		}
		opts := store.AddMessageOpts{Filtered: true}
		if in.MessageID != "" {
			opts.UpstreamID = &in.MessageID
		}
		_, err = c.AddMessage(in.Text, user.ID, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("session: record filtered message: %w", err)
	}
	return nil
}

// ensureMessageRow finds or inserts the inbound message's row. Replays of
// an already-stored message reuse the row; force-feed resurrects a row the
// classifier had filtered.
func (e *Engine) ensureMessageRow(c *store.Conn, in Inbound, userID uint) (uint, error) {
	if in.MessageID != "" {
		existing, err := c.GetMessage(in.MessageID)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			if existing.Status == models.StatusFiltered && in.ForceFeed {
				if err := c.UnfilterMessage(existing.ID); err != nil {
					return 0, err
				}
			}
			return existing.ID, nil
		}
	}

	opts := store.AddMessageOpts{Sudo: in.Sudo}
	if in.MessageID != "" {
		opts.UpstreamID = &in.MessageID
	}
	if in.ReplyToID != "" {
		replyTo, err := c.GetMessage(in.ReplyToID)
		if err != nil {
			return 0, err
		}
		if replyTo != nil {
			opts.ReplyToID = &replyTo.ID
		}
	}
	return c.AddMessage(in.Text, userID, opts)
}

// applyPatches folds the model's world and inventory deltas into the caches.
func (e *Engine) applyPatches(userID uint, resp *narrator.ModelResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for item, add := range resp.WorldStateUpdates {
		if add {
			e.world[item] = struct{}{}
		} else {
			delete(e.world, item)
		}
	}
	if inv, ok := e.inventories[userID]; ok {
		for item, add := range resp.PlayerInventoryUpdates {
			if add {
				inv[item] = struct{}{}
			} else {
				delete(inv, item)
			}
		}
	}
}

// playerInventory returns the cached inventory for a user, loading it from
// storage on first use.
func (e *Engine) playerInventory(userID uint) (map[string]struct{}, error) {
	e.mu.Lock()
	if inv, ok := e.inventories[userID]; ok {
		out := copySet(inv)
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	var inv map[string]struct{}
	err := e.st.Tx(func(c *store.Conn) error {
		var err error
		inv, err = c.LoadPlayerInventory(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session: load inventory: %w", err)
	}

	e.mu.Lock()
	e.inventories[userID] = inv
	out := copySet(inv)
	e.mu.Unlock()
	return out, nil
}

// reloadCaches rebuilds every in-memory cache from the active epoch.
func (e *Engine) reloadCaches() error {
	var (
		world      map[string]struct{}
		rules      []models.CustomRule
		objectives map[string][]models.Objective
	)
	err := e.st.Tx(func(c *store.Conn) error {
		var err error
		if world, err = c.LoadWorldState(); err != nil {
			return err
		}
		if rules, err = c.LoadCustomRules(); err != nil {
			return err
		}
		objectives, err = c.LoadObjectives()
		return err
	})
	if err != nil {
		return fmt.Errorf("session: load caches: %w", err)
	}

	e.mu.Lock()
	e.world = world
	e.rules = rules
	e.objectives = objectives
	e.inventories = make(map[uint]map[string]struct{})
	e.mu.Unlock()
	return nil
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for item := range set {
		out[item] = struct{}{}
	}
	return out
}
