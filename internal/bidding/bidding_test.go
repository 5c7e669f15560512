package bidding

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// testConfig uses deadlines long enough that no timer fires during a test.
func testConfig() Config {
	return Config{
		StartingPoints: 10,
		PointCap:       10,
		AuctionTimeout: time.Hour,
		LastCall:       time.Hour,
		TurnTimeout:    time.Hour,
		TurnThreshold:  4,
		RampWidth:      4,
	}
}

type recorder struct {
	mu      sync.Mutex
	notices []string
}

func (r *recorder) announce(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

func (r *recorder) contains(t *testing.T, substr string) {
	t.Helper()
	notices := r.all()
	for _, n := range notices {
		if strings.Contains(n, substr) {
			return
		}
	}
	t.Fatalf("no notice containing %q in %v", substr, notices)
}

func newTestCoordinator(t *testing.T, pick func(n int) int) (*Coordinator, *recorder) {
	t.Helper()
	rec := &recorder{}
	c, err := New(Opts{
		Config:   testConfig(),
		Announce: rec.announce,
		Pick:     pick,
		Chance:   func() float64 { return 1 }, // never trips the ramp by chance
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, rec
}

func firstPick(n int) int { return 0 }

func TestNew_RequiresAnnounce(t *testing.T) {
	if _, err := New(Opts{Config: testConfig()}); err == nil {
		t.Fatal("expected error for missing announce")
	}
}

func TestAddPlayer_SeedsOnce(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)

	c.AddPlayer("alice")
	if got := c.PlayerPoints("alice"); got != 10 {
		t.Fatalf("points = %d, want 10", got)
	}

	// Spend some points, then re-add; the balance must survive.
	c.AddPlayer("bob")
	c.StartBidding(0)
	c.AddBid(3, "alice")
	c.AddBid(1, "bob")
	c.AddPlayer("alice")
	// Alice won under firstPick and paid 3; she had regenerated to 10
	// before bidding (already at cap).
	if got := c.PlayerPoints("alice"); got != 7 {
		t.Fatalf("points after win = %d, want 7", got)
	}
}

func TestIsMessageAllowed_Gating(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	// Idle: nobody may act.
	if c.IsMessageAllowed("alice") {
		t.Fatal("idle should block messages")
	}

	c.StartBidding(0)
	if c.IsMessageAllowed("alice") {
		t.Fatal("open auction should block messages")
	}

	c.AddBid(2, "alice")
	c.AddBid(1, "bob")
	if !c.IsMessageAllowed("alice") {
		t.Fatal("winner should be allowed")
	}
	if c.IsMessageAllowed("bob") {
		t.Fatal("loser should be blocked")
	}
}

func TestIsMessageAllowed_DisabledIsFreeForAll(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.Toggle(false)

	if !c.IsMessageAllowed("alice") || !c.IsMessageAllowed("stranger") {
		t.Fatal("disabled coordinator should allow everyone")
	}
}

func TestStartBidding_RefusesWhenOpenOrDisabled(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")

	c.StartBidding(0)
	if msg := c.StartBidding(0); !strings.Contains(msg, "disabled or already") {
		t.Fatalf("second StartBidding = %q", msg)
	}

	c.Reset(false)
	c.Toggle(false)
	if msg := c.StartBidding(0); !strings.Contains(msg, "disabled or already") {
		t.Fatalf("disabled StartBidding = %q", msg)
	}
}

func TestStartBidding_RegeneratesPointsCapped(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	// Alice spends down to 5, bob stays at cap.
	c.StartBidding(0)
	c.AddBid(5, "alice")
	c.AddBid(0, "bob")

	c.StartBidding(0)
	if got := c.PlayerPoints("alice"); got != 6 {
		t.Fatalf("alice = %d, want 6", got)
	}
	if got := c.PlayerPoints("bob"); got != 10 {
		t.Fatalf("bob = %d, want 10 (capped)", got)
	}
	c.Reset(false)
}

func TestAddBid_Validation(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	if ok, msg := c.AddBid(1, "alice"); ok || !strings.Contains(msg, "closed") {
		t.Fatalf("bid before auction: ok=%t msg=%q", ok, msg)
	}

	c.StartBidding(0)
	defer c.Reset(false)

	if ok, msg := c.AddBid(1, "stranger"); ok || !strings.Contains(msg, "objective") {
		t.Fatalf("unseeded bid: ok=%t msg=%q", ok, msg)
	}
	if ok, _ := c.AddBid(-1, "alice"); ok {
		t.Fatal("negative bid accepted")
	}
	if ok, msg := c.AddBid(99, "alice"); ok || !strings.Contains(msg, "Insufficient") {
		t.Fatalf("overspend: ok=%t msg=%q", ok, msg)
	}
	if ok, _ := c.AddBid(3, "alice"); !ok {
		t.Fatal("valid bid rejected")
	}
}

func TestAddBid_OverwriteKeepsLatest(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	c.StartBidding(0)
	c.AddBid(1, "alice")
	c.AddBid(4, "alice")
	c.AddBid(2, "bob")

	if got := c.ActivePlayer(); got != "alice" {
		t.Fatalf("active = %q, want alice", got)
	}
	if got := c.PlayerPoints("alice"); got != 6 {
		t.Fatalf("alice = %d, want 10-4=6", got)
	}
}

func TestAddBid_AllInResolvesImmediately(t *testing.T) {
	c, rec := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	c.StartBidding(0)
	c.AddBid(2, "alice")
	if c.State() != StateOpen {
		t.Fatal("partial set should keep auction open")
	}
	c.AddBid(5, "bob")

	if got := c.State(); got != StateControlled {
		t.Fatalf("state = %q, want controlled", got)
	}
	if got := c.ActivePlayer(); got != "bob" {
		t.Fatalf("active = %q, want bob", got)
	}
	if got := c.PlayerPoints("bob"); got != 5 {
		t.Fatalf("bob = %d, want 5", got)
	}
	// Loser pays nothing.
	if got := c.PlayerPoints("alice"); got != 10 {
		t.Fatalf("alice = %d, want 10", got)
	}
	rec.contains(t, "takes control")
}

func TestResolveBidding_NoBidsIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")

	c.StartBidding(0)
	defer c.Reset(false)
	if msg := c.ResolveBidding(); msg != "No bids." {
		t.Fatalf("resolve = %q", msg)
	}
	if c.State() != StateOpen {
		t.Fatal("auction should stay open with no bids")
	}
}

func TestResolveBidding_TieBreakUsesPick(t *testing.T) {
	c, _ := newTestCoordinator(t, func(n int) int {
		if n != 2 {
			panic("expected two tied bidders")
		}
		return 1
	})
	c.AddPlayer("alice")
	c.AddPlayer("bob")
	c.AddPlayer("carol")

	c.StartBidding(0)
	c.AddBid(3, "alice")
	c.AddBid(3, "bob")
	c.AddBid(1, "carol")

	// Tied players sorted: alice, bob. pick returns index 1.
	if got := c.ActivePlayer(); got != "bob" {
		t.Fatalf("active = %q, want bob", got)
	}
}

func TestResolveBidding_PartialSet(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	c.StartBidding(0)
	c.AddBid(2, "alice")
	if msg := c.ResolveBidding(); msg != "Bidding resolved." {
		t.Fatalf("resolve = %q", msg)
	}
	if got := c.ActivePlayer(); got != "alice" {
		t.Fatalf("active = %q, want alice", got)
	}
}

func TestAddBid_PartialSetResolvesAtStandingDeadline(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig()
	cfg.AuctionTimeout = 30 * time.Millisecond
	cfg.LastCall = 20 * time.Millisecond
	c, err := New(Opts{
		Config:   cfg,
		Announce: rec.announce,
		Pick:     firstPick,
		Chance:   func() float64 { return 1 },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	c.StartBidding(0)
	defer c.Reset(false)

	// An early lone bid rides the deadline armed at StartBidding; no fresh
	// timer is needed for the partial set.
	if ok, _ := c.AddBid(2, "alice"); !ok {
		t.Fatal("bid rejected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateControlled {
		if time.Now().After(deadline) {
			t.Fatal("partial-set auction never resolved")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.ActivePlayer(); got != "alice" {
		t.Fatalf("active = %q, want alice", got)
	}
	rec.contains(t, "Last call")
}

func TestLastCall_NoBidsReArmsDeadline(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")

	c.StartBidding(0)
	defer c.Reset(false)

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	c.lastCall(gen)

	if c.State() != StateOpen {
		t.Fatal("auction should stay open after empty deadline")
	}
	c.mu.Lock()
	reArmed := c.timer != nil && c.generation != gen
	c.mu.Unlock()
	if !reArmed {
		t.Fatal("deadline should be re-armed with a new generation")
	}
}

func TestLastCall_PartialSetAnnouncesGrace(t *testing.T) {
	c, rec := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.AddPlayer("bob")

	c.StartBidding(0)
	defer c.Reset(false)
	c.AddBid(2, "alice")

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.lastCall(gen)

	rec.contains(t, "Last call")
	if c.State() != StateOpen {
		t.Fatal("bids must stay open through the last-call grace")
	}
}

func TestLastCall_StaleGenerationIsIgnored(t *testing.T) {
	c, rec := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")

	c.StartBidding(0)
	c.mu.Lock()
	stale := c.generation
	c.mu.Unlock()

	// Superseding transition: resolve via a bid from a fresh player set.
	c.AddBid(1, "alice")

	before := len(rec.all())
	c.lastCall(stale)
	if len(rec.all()) != before {
		t.Fatal("stale callback should do nothing")
	}
}

func TestTurnTimeout_NagsActivePlayer(t *testing.T) {
	c, rec := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")

	c.StartBidding(0)
	c.AddBid(1, "alice")

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.turnTimeout(gen)

	rec.contains(t, "Hurry up")
	if got := c.ActivePlayer(); got != "alice" {
		t.Fatalf("active = %q, want alice through the grace period", got)
	}
	c.Reset(false)
}

func TestToggle_DisableCancelsAuction(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")

	c.StartBidding(0)
	c.AddBid(1, "alice")

	if disabled := c.Toggle(true); !disabled {
		t.Fatal("toggle should disable")
	}
	if got := c.ActivePlayer(); got != "" {
		t.Fatalf("active = %q, want cleared", got)
	}

	// Re-enabling with a started game opens a fresh auction.
	if disabled := c.Toggle(true); disabled {
		t.Fatal("toggle should re-enable")
	}
	if c.State() != StateOpen {
		t.Fatal("re-enable should reopen bidding")
	}
	c.Reset(false)
}

func TestReset_HardWipesPoints(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.StartBidding(0)
	c.AddBid(4, "alice")

	c.Reset(true)

	if got := len(c.Points()); got != 0 {
		t.Fatalf("points after hard reset = %d entries, want 0", got)
	}
	if c.State() != StateIdle {
		t.Fatal("hard reset should return to idle")
	}
}

func TestIncrementTurnProgress_BelowThresholdNeverTriggers(t *testing.T) {
	rec := &recorder{}
	c, err := New(Opts{
		Config:   testConfig(),
		Announce: rec.announce,
		Pick:     firstPick,
		Chance:   func() float64 { return 0 }, // always trips once past threshold
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddPlayer("alice")
	c.StartBidding(0)
	c.AddBid(1, "alice")

	for i := 0; i < 4; i++ {
		c.IncrementTurnProgress()
	}
	if c.State() != StateControlled {
		t.Fatal("threshold messages alone must not end the turn")
	}
	c.Reset(false)
}

func TestIncrementTurnProgress_DisabledIsInert(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.Toggle(false)
	for i := 0; i < 20; i++ {
		c.IncrementTurnProgress()
	}
	if c.State() != StateIdle {
		t.Fatal("disabled coordinator must not start auctions")
	}
}

func TestDescribeState(t *testing.T) {
	c, _ := newTestCoordinator(t, firstPick)
	c.AddPlayer("alice")
	c.StartBidding(0)
	c.AddBid(2, "alice")

	got := c.DescribeState()
	for _, want := range []string{"State: controlled", "Active player: alice", "alice: 8 points"} {
		if !strings.Contains(got, want) {
			t.Fatalf("DescribeState missing %q:\n%s", want, got)
		}
	}
	c.Reset(false)
}
