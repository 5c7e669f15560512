// Package bidding arbitrates write access to the narrative with a sealed-bid
// auction. One player at a time holds control; everyone else waits for the
// next auction. All state is in-memory and scoped to a single room; auctions
// deliberately do not survive restarts.
package bidding

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// State is the coordinator's turn-taking state.
type State string

const (
	// StateIdle: no game started, nobody may act.
	StateIdle State = "idle"
	// StateOpen: an auction is accepting bids.
	StateOpen State = "open"
	// StateResolving: a winner is being picked.
	StateResolving State = "resolving"
	// StateControlled: one player holds exclusive command rights.
	StateControlled State = "controlled"
)

// nagGrace is how long the active player gets after the turn-timeout nag
// before a new auction is forced.
const nagGrace = 30 * time.Second

// turnProgressDelay lets the narrative reply render before an auction
// triggered by the turn-length heuristic opens.
const turnProgressDelay = 1 * time.Second

// Config tunes one coordinator. Zero values fall back to defaults.
type Config struct {
	StartingPoints int           // points seeded per player
	PointCap       int           // passive regeneration ceiling
	AuctionTimeout time.Duration // deadline for an open auction
	LastCall       time.Duration // grace after the last-call notice
	TurnTimeout    time.Duration // quiet time before the active player is nagged
	TurnThreshold  int           // messages per turn before auctions ramp up
	RampWidth      float64       // messages past threshold until an auction is certain
}

func (c *Config) applyDefaults() {
	if c.StartingPoints == 0 {
		c.StartingPoints = 10
	}
	if c.PointCap == 0 {
		c.PointCap = 10
	}
	if c.AuctionTimeout == 0 {
		c.AuctionTimeout = 70 * time.Second
	}
	if c.LastCall == 0 {
		c.LastCall = 10 * time.Second
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = 150 * time.Second
	}
	if c.TurnThreshold == 0 {
		c.TurnThreshold = 4
	}
	if c.RampWidth == 0 {
		c.RampWidth = 4
	}
}

// Coordinator is the turn-taking state machine for one room. All methods are
// safe for concurrent use; announcements are delivered outside the lock.
type Coordinator struct {
	cfg      Config
	announce func(text string)

	// pick selects a winner index among n tied bidders; injectable so
	// tie-breaks are deterministic in tests.
	pick func(n int) int
	// chance drives the probabilistic turn-length ramp.
	chance func() float64

	mu             sync.Mutex
	state          State
	disabled       bool
	activePlayer   string
	points         map[string]int
	bids           map[string]int
	messagesInTurn int

	// generation versions the pending timer. Every transition that
	// supersedes a timer cancels it and bumps the generation; callbacks
	// re-check their generation before acting, which closes the race
	// between a firing timer and the cancel.
	generation uint64
	timer      *time.Timer
}

// Opts holds parameters for creating a Coordinator.
type Opts struct {
	Config   Config
	Announce func(text string) // required: posts to the game channel
	Pick     func(n int) int   // optional: tie-break, defaults to math/rand
	Chance   func() float64    // optional: ramp roll, defaults to math/rand
}

// New creates a Coordinator.
func New(opts Opts) (*Coordinator, error) {
	if opts.Announce == nil {
		return nil, fmt.Errorf("bidding: announce is required")
	}
	cfg := opts.Config
	cfg.applyDefaults()
	pick := opts.Pick
	if pick == nil {
		pick = rand.Intn
	}
	chance := opts.Chance
	if chance == nil {
		chance = rand.Float64
	}
	return &Coordinator{
		cfg:      cfg,
		announce: opts.Announce,
		pick:     pick,
		chance:   chance,
		state:    StateIdle,
		points:   make(map[string]int),
		bids:     make(map[string]int),
	}, nil
}

// State returns the current turn-taking state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disabled reports whether auction mechanics are suspended.
func (c *Coordinator) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// ActivePlayer returns the player currently in control, or "" if none.
func (c *Coordinator) ActivePlayer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activePlayer
}

// InProgress reports whether an auction is currently open or resolving.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen || c.state == StateResolving
}

// AddPlayer seeds a player's point balance if unseeded. Idempotent.
func (c *Coordinator) AddPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.points[playerID]; !ok {
		c.points[playerID] = c.cfg.StartingPoints
	}
}

// PlayerPoints returns a player's balance, or the starting balance if the
// player is unseeded.
func (c *Coordinator) PlayerPoints(playerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pts, ok := c.points[playerID]; ok {
		return pts
	}
	return c.cfg.StartingPoints
}

// IsMessageAllowed reports whether a player may issue commands right now.
// Free-for-all when disabled; nobody mid-auction; only the active player
// while controlled.
func (c *Coordinator) IsMessageAllowed(playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return true
	}
	switch c.state {
	case StateControlled:
		return playerID == c.activePlayer
	default:
		return false
	}
}

// StartBidding opens a new auction. A non-zero delay postpones the public
// announcement so a preceding narrative message can display first. Refuses
// when disabled or when an auction is already open.
func (c *Coordinator) StartBidding(delay time.Duration) string {
	c.mu.Lock()
	if c.disabled || c.state == StateOpen || c.state == StateResolving {
		c.mu.Unlock()
		return "Bidding is disabled or already in progress."
	}

	c.resetLocked(false)
	c.state = StateOpen
	c.regeneratePointsLocked()
	gen := c.armTimerLocked(c.cfg.AuctionTimeout, c.lastCall)

	c.mu.Unlock()

	if delay > 0 {
		time.AfterFunc(delay, func() {
			if c.generationCurrent(gen) {
				c.announce("Bidding is now open! Use /bid to take control.")
			}
		})
	} else {
		c.announce("Bidding is now open! Use /bid to take control.")
	}
	return "Starting bidding auction."
}

// AddBid submits or overwrites a player's sealed bid. Returns whether the
// bid was accepted and a message for the bidder. When the full seeded set
// has bid, resolution triggers immediately.
func (c *Coordinator) AddBid(value int, playerID string) (bool, string) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return false, "Bidding is closed."
	}
	available, seeded := c.points[playerID]
	if !seeded {
		c.mu.Unlock()
		return false, "You need to register an objective first."
	}
	if value < 0 {
		c.mu.Unlock()
		return false, "Invalid bid. Please enter a non-negative value."
	}
	if value > available {
		c.mu.Unlock()
		return false, fmt.Sprintf("Insufficient points. You have %d points available.", available)
	}

	_, rebid := c.bids[playerID]
	c.bids[playerID] = value

	// A partial set just waits: the deadline armed at StartBidding stays
	// armed for the whole auction, re-armed by lastCall when no bids are in.
	var winnerNotice string
	if len(c.bids) == len(c.points) {
		// The set is complete: cancel the deadline so it cannot fire
		// during resolution, then resolve under the same lock hold.
		c.cancelTimerLocked()
		winnerNotice = c.resolveLocked()
	}
	c.mu.Unlock()

	if !rebid {
		c.announce(fmt.Sprintf("<@%s> submitted a bid!", playerID))
	}
	if winnerNotice != "" {
		c.announce(winnerNotice)
	}
	return true, fmt.Sprintf("Bid %d accepted.", value)
}

// ResolveBidding closes the auction and declares a winner. With no bids it
// reports and changes nothing.
func (c *Coordinator) ResolveBidding() string {
	c.mu.Lock()
	if c.state != StateOpen && c.state != StateResolving {
		c.mu.Unlock()
		return "Bidding is closed."
	}
	if len(c.bids) == 0 {
		c.mu.Unlock()
		return "No bids."
	}
	notice := c.resolveLocked()
	c.mu.Unlock()

	c.announce(notice)
	return "Bidding resolved."
}

// resolveLocked picks the winner, charges them, and hands over control.
// Caller holds the lock and must have verified bids exist. Returns the
// public winner announcement.
func (c *Coordinator) resolveLocked() string {
	c.state = StateResolving

	maxBid := 0
	for _, bid := range c.bids {
		if bid > maxBid {
			maxBid = bid
		}
	}
	var tied []string
	for player, bid := range c.bids {
		if bid == maxBid {
			tied = append(tied, player)
		}
	}
	// Map order is random; sort so the injected pick is deterministic.
	sort.Strings(tied)
	winner := tied[c.pick(len(tied))]

	// Sealed-bid: the winner pays their bid, losers pay nothing.
	c.points[winner] -= c.bids[winner]

	c.resetLocked(false)
	c.state = StateControlled
	c.activePlayer = winner
	c.armTimerLocked(c.cfg.TurnTimeout, c.turnTimeout)

	return fmt.Sprintf("<@%s> takes control!", winner)
}

// lastCall fires at the auction deadline. With no bids it re-arms a fresh
// deadline so an abandoned auction keeps polling instead of hanging open
// forever. With a partial set it posts a last-call notice and resolves
// after the grace period.
func (c *Coordinator) lastCall(gen uint64) {
	c.mu.Lock()
	if !c.generationCurrentLocked(gen) || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	if len(c.bids) == 0 {
		c.armTimerLocked(c.cfg.AuctionTimeout, c.lastCall)
		c.mu.Unlock()
		return
	}

	// A complete set resolves straight from AddBid, so reaching here
	// means some seeded player has not bid yet.
	c.armTimerLocked(c.cfg.LastCall, func(g uint64) {
		c.mu.Lock()
		if !c.generationCurrentLocked(g) || c.state != StateOpen {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		var notice string
		if len(c.bids) > 0 {
			notice = c.resolveLocked()
		}
		c.mu.Unlock()
		if notice != "" {
			c.announce(notice)
		}
	})
	c.mu.Unlock()

	c.announce(fmt.Sprintf("Last call! Bidding closes in %d seconds.", int(c.cfg.LastCall.Seconds())))
}

// turnTimeout nags the active player, then forces a new auction if they
// stay quiet through the grace period.
func (c *Coordinator) turnTimeout(gen uint64) {
	c.mu.Lock()
	if !c.generationCurrentLocked(gen) || c.state != StateControlled {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	player := c.activePlayer
	c.armTimerLocked(nagGrace, func(g uint64) {
		if c.generationCurrent(g) {
			c.StartBidding(0)
		}
	})
	c.mu.Unlock()

	c.announce(fmt.Sprintf("Hurry up <@%s>! Your turn will end in %d seconds.", player, int(nagGrace.Seconds())))
}

// IncrementTurnProgress advances the turn-length heuristic. Past the
// threshold, each further message opens a new auction with probability
// ramping linearly from 0 to 1 over RampWidth messages.
func (c *Coordinator) IncrementTurnProgress() {
	c.mu.Lock()
	if c.disabled {
		c.mu.Unlock()
		return
	}
	c.messagesInTurn++
	over := c.messagesInTurn - c.cfg.TurnThreshold
	gen := c.generation
	c.mu.Unlock()

	if over <= 0 {
		return
	}
	p := float64(over) / c.cfg.RampWidth
	if p < 1 && c.chance() >= p {
		return
	}
	time.AfterFunc(turnProgressDelay, func() {
		if c.generationCurrent(gen) {
			c.StartBidding(0)
		}
	})
}

// Toggle flips the disabled flag. Disabling cancels any auction in progress
// and clears control; re-enabling opens a fresh auction when the room has a
// started game. Returns the new disabled value.
func (c *Coordinator) Toggle(gameStarted bool) bool {
	c.mu.Lock()
	c.disabled = !c.disabled
	disabled := c.disabled
	if disabled {
		c.resetLocked(false)
	}
	c.mu.Unlock()

	if !disabled && gameStarted {
		c.StartBidding(0)
	}
	return disabled
}

// Reset clears auction state. A hard reset also wipes point balances, used
// when the game itself is cleared.
func (c *Coordinator) Reset(hard bool) {
	c.mu.Lock()
	c.resetLocked(hard)
	c.mu.Unlock()
}

// resetLocked clears bids, control, and pending timers. Caller holds the lock.
func (c *Coordinator) resetLocked(hard bool) {
	if hard {
		c.points = make(map[string]int)
	}
	c.bids = make(map[string]int)
	c.messagesInTurn = 0
	c.activePlayer = ""
	c.state = StateIdle
	c.cancelTimerLocked()
}

// regeneratePointsLocked applies the passive +1 per auction cycle, capped.
func (c *Coordinator) regeneratePointsLocked() {
	for player, pts := range c.points {
		if pts < c.cfg.PointCap {
			c.points[player] = pts + 1
		}
	}
}

// armTimerLocked cancels any pending timer and schedules fn after d. The
// returned generation identifies the scheduled callback.
func (c *Coordinator) armTimerLocked(d time.Duration, fn func(gen uint64)) uint64 {
	c.cancelTimerLocked()
	gen := c.generation
	c.timer = time.AfterFunc(d, func() { fn(gen) })
	return gen
}

// cancelTimerLocked stops the pending timer, if any, and bumps the
// generation so an already-fired callback sees itself as stale.
func (c *Coordinator) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
}

func (c *Coordinator) generationCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generationCurrentLocked(gen)
}

func (c *Coordinator) generationCurrentLocked(gen uint64) bool {
	return gen == c.generation
}

// Points returns a copy of all seeded balances.
func (c *Coordinator) Points() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.points))
	for player, pts := range c.points {
		out[player] = pts
	}
	return out
}

// DescribeState renders a human-readable state dump for admin commands.
func (c *Coordinator) DescribeState() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", c.state)
	fmt.Fprintf(&b, "Disabled: %t\n", c.disabled)
	fmt.Fprintf(&b, "Active player: %s\n", orNone(c.activePlayer))
	fmt.Fprintf(&b, "Messages in turn: %d\n", c.messagesInTurn)
	fmt.Fprintf(&b, "Bids in: %d/%d\n", len(c.bids), len(c.points))

	players := make([]string, 0, len(c.points))
	for player := range c.points {
		players = append(players, player)
	}
	sort.Strings(players)
	for _, player := range players {
		fmt.Fprintf(&b, "  %s: %d points\n", player, c.points[player])
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
