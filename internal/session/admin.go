package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fabler/fabler/internal/models"
	"github.com/fabler/fabler/internal/store"
)

// StartGame begins play. It refuses when the game is already running or
// when nobody has registered an objective yet, and opens the first auction
// once the grace period lets players read the kickoff message.
func (e *Engine) StartGame() (bool, string) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return false, "The game has already started."
	}
	if len(e.objectives) == 0 {
		e.mu.Unlock()
		return false, "No objectives registered. Use /register first."
	}
	e.started = true
	owners := make([]string, 0, len(e.objectives))
	for owner := range e.objectives {
		owners = append(owners, owner)
	}
	e.mu.Unlock()

	for _, owner := range owners {
		e.bids.AddPlayer(owner)
	}
	e.bids.StartBidding(e.startGrace)
	return true, "Game on!"
}

// Started reports whether play has begun since the last start or clear.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// ClearGame opens a fresh epoch. Prior rows stay in storage under the old
// game id; every cache and auction balance resets to empty.
func (e *Engine) ClearGame() error {
	if _, err := e.st.NewEpoch(); err != nil {
		return fmt.Errorf("session: clear game: %w", err)
	}

	e.bids.Reset(true)
	if err := e.reloadCaches(); err != nil {
		return err
	}
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	return nil
}

// AddObjective registers a player objective and seeds the player into the
// auction roster.
func (e *Engine) AddObjective(userID, userName, text string) error {
	var obj *models.Objective
	err := e.st.Tx(func(c *store.Conn) error {
		user, err := c.GetOrCreateUser(userID, userName)
		if err != nil {
			return err
		}
		if obj, err = c.AddObjective(text, user.ID); err != nil {
			return err
		}
		obj.User = *user
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: add objective: %w", err)
	}

	e.mu.Lock()
	e.objectives[userID] = append(e.objectives[userID], *obj)
	e.mu.Unlock()
	e.bids.AddPlayer(userID)
	return nil
}

// LeaderboardRow is one player's summed objective score.
type LeaderboardRow struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// LeaderboardRows returns per-player objective scores, highest first.
func (e *Engine) LeaderboardRows() []LeaderboardRow {
	e.mu.Lock()
	rows := make([]LeaderboardRow, 0, len(e.objectives))
	for _, objs := range e.objectives {
		if len(objs) == 0 {
			continue
		}
		r := LeaderboardRow{Name: objs[0].User.Name}
		for _, obj := range objs {
			r.Score += obj.Score
		}
		rows = append(rows, r)
	}
	e.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// Leaderboard renders per-player objective scores, highest first.
func (e *Engine) Leaderboard() string {
	rows := e.LeaderboardRows()
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range rows {
		fmt.Fprintf(&b, "%d. %s: %d\n", i+1, r.Name, r.Score)
	}
	return b.String()
}

// AddCustomRule records a rule that the narrator must honor from now on.
// Secret rules are still fed to the model but hidden from public listings.
func (e *Engine) AddCustomRule(rule, creatorID, creatorName string, secret bool) error {
	var created *models.CustomRule
	err := e.st.Tx(func(c *store.Conn) error {
		user, err := c.GetOrCreateUser(creatorID, creatorName)
		if err != nil {
			return err
		}
		created, err = c.AddCustomRule(rule, user.ID, secret)
		return err
	})
	if err != nil {
		return fmt.Errorf("session: add custom rule: %w", err)
	}

	e.mu.Lock()
	e.rules = append(e.rules, *created)
	e.mu.Unlock()
	return nil
}

// RemoveCustomRules soft-deletes the given rules and refreshes the cache.
func (e *Engine) RemoveCustomRules(ruleIDs []uint) error {
	err := e.st.Tx(func(c *store.Conn) error {
		for _, id := range ruleIDs {
			if err := c.RemoveCustomRule(id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: remove custom rules: %w", err)
	}

	var rules []models.CustomRule
	err = e.st.Tx(func(c *store.Conn) error {
		var err error
		rules, err = c.LoadCustomRules()
		return err
	})
	if err != nil {
		return fmt.Errorf("session: reload custom rules: %w", err)
	}

	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// CustomRules lists active rules. Secret rules are omitted unless asked for.
func (e *Engine) CustomRules(includeSecret bool) []models.CustomRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.CustomRule, 0, len(e.rules))
	for _, rule := range e.rules {
		if rule.Secret && !includeSecret {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// WorldState lists the current world facts in stable order.
func (e *Engine) WorldState() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.world))
	for item := range e.world {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// PlayerInventory lists a player's items in stable order. Unknown players
// have empty inventories.
func (e *Engine) PlayerInventory(userID string) ([]string, error) {
	var user *models.User
	err := e.st.Tx(func(c *store.Conn) error {
		var err error
		user, err = c.GetUser(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session: look up player: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	inv, err := e.playerInventory(user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(inv))
	for item := range inv {
		out = append(out, item)
	}
	sort.Strings(out)
	return out, nil
}

// AddReaction records a reaction on a stored message. Reactions to messages
// the room never stored are ignored.
func (e *Engine) AddReaction(messageID, userID, userName, symbol string) error {
	return e.toggleReaction(messageID, userID, userName, symbol, true)
}

// RemoveReaction removes a previously recorded reaction. Safe no-op when
// absent.
func (e *Engine) RemoveReaction(messageID, userID, userName, symbol string) error {
	return e.toggleReaction(messageID, userID, userName, symbol, false)
}

func (e *Engine) toggleReaction(messageID, userID, userName, symbol string, add bool) error {
	err := e.st.Tx(func(c *store.Conn) error {
		msg, err := c.GetMessage(messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		user, err := c.GetOrCreateUser(userID, userName)
		if err != nil {
			return err
		}
		if add {
			return c.AddReaction(msg.ID, user.ID, symbol)
		}
		return c.RemoveReaction(msg.ID, user.ID, symbol)
	})
	if err != nil {
		return fmt.Errorf("session: toggle reaction: %w", err)
	}
	return nil
}

// MarkIrrelevant drops a message out of every future context window.
// Unknown messages are ignored.
func (e *Engine) MarkIrrelevant(messageID string) error {
	err := e.st.Tx(func(c *store.Conn) error {
		msg, err := c.GetMessage(messageID)
		if err != nil || msg == nil {
			return err
		}
		return c.MarkMessageIrrelevant(msg.ID)
	})
	if err != nil {
		return fmt.Errorf("session: mark irrelevant: %w", err)
	}
	return nil
}

// ReplayFiltered re-runs a classifier-rejected message through the full
// pipeline as its original sender, bypassing the classifier. Messages that
// are unknown, not filtered, or narrator-sent produce no reply.
func (e *Engine) ReplayFiltered(ctx context.Context, messageID string) (*Response, error) {
	var in *Inbound
	err := e.st.Tx(func(c *store.Conn) error {
		msg, err := c.GetMessage(messageID)
		if err != nil || msg == nil {
			return err
		}
		if msg.Status != models.StatusFiltered || msg.SenderID == models.NarratorUserID {
			return nil
		}
		sender, err := c.GetUserByID(msg.SenderID)
		if err != nil || sender == nil {
			return err
		}
		in = &Inbound{
			UserID:    sender.UpstreamID,
			UserName:  sender.Name,
			Text:      msg.Content,
			MessageID: messageID,
			ForceFeed: true,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: replay filtered: %w", err)
	}
	if in == nil {
		return nil, nil
	}
	return e.ProcessMessage(ctx, *in)
}

// Bid submits a sealed bid for the current auction.
func (e *Engine) Bid(value int, userID string) (bool, string) {
	return e.bids.AddBid(value, userID)
}

// PlayerPoints returns a player's auction balance.
func (e *Engine) PlayerPoints(userID string) int {
	return e.bids.PlayerPoints(userID)
}

// ToggleBidding suspends or resumes auction mechanics. Returns the new
// disabled value.
func (e *Engine) ToggleBidding() bool {
	return e.bids.Toggle(e.Started())
}

// DescribeBidding renders the auction state for admin commands and the
// dashboard.
func (e *Engine) DescribeBidding() string {
	return e.bids.DescribeState()
}

// ForceBidding opens an auction on demand after the given delay.
func (e *Engine) ForceBidding(delay time.Duration) string {
	return e.bids.StartBidding(delay)
}
