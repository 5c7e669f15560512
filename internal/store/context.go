package store

import (
	"fmt"
	"sort"

	"github.com/fabler/fabler/internal/models"
)

// DefaultContextWindow is the number of messages pulled around the base
// message and around each replied-to ancestor.
const DefaultContextWindow = 10

// SimpleMessage is the flattened view of a message handed to the narrative
// prompt builder.
type SimpleMessage struct {
	ID       uint
	Sender   string
	SenderID uint
	Content  string
}

// contextRow is the scan target for context queries.
type contextRow struct {
	ID        uint
	SenderID  uint
	Content   string
	ReplyToID *uint
	Sender    string
}

// MessageContext reconstructs the bounded conversational context for a base
// message: the window of messages at-or-before it, the transitive chain of
// replied-to ancestors of anything in that window, and each ancestor's own
// preceding window. Filtered and irrelevant messages are excluded from the
// windows, reply chains that point outside the window are still followed,
// and the base message itself never appears in the result. Messages are
// returned deduplicated in ascending id order.
func (c *Conn) MessageContext(baseMessageID uint, window int) ([]SimpleMessage, error) {
	if window <= 0 {
		window = DefaultContextWindow
	}
	if baseMessageID == 0 {
		return nil, nil
	}

	included := make(map[uint]contextRow)

	seed, err := c.contextWindow(baseMessageID, window)
	if err != nil {
		return nil, err
	}
	for _, row := range seed {
		included[row.ID] = row
	}

	// Follow reply ancestors of the seed window and of the base message,
	// transitively. The visited set guards against cyclic reply chains.
	visited := make(map[uint]bool)
	frontier := []uint{baseMessageID}
	for id := range included {
		frontier = append(frontier, id)
	}
	var chain []contextRow
	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		row, ok, err := c.contextMessage(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, seen := included[row.ID]; !seen && row.ID != baseMessageID {
			included[row.ID] = row
			chain = append(chain, row)
		}
		if row.ReplyToID != nil {
			frontier = append(frontier, *row.ReplyToID)
		}
	}

	// Each ancestor pulled in through a reply chain contributes its own
	// preceding window, so the narrator sees the conversation the reply
	// happened in, not just the single replied-to message.
	for _, ancestor := range chain {
		rows, err := c.contextWindow(ancestor.ID, window)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if _, seen := included[row.ID]; !seen {
				included[row.ID] = row
			}
		}
	}

	delete(included, baseMessageID)

	result := make([]SimpleMessage, 0, len(included))
	for _, row := range included {
		result = append(result, SimpleMessage{
			ID:       row.ID,
			Sender:   row.Sender,
			SenderID: row.SenderID,
			Content:  row.Content,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// contextWindow returns up to `window` messages at-or-before base within
// the active epoch, excluding statuses that are hidden from context.
func (c *Conn) contextWindow(baseID uint, window int) ([]contextRow, error) {
	var rows []contextRow
	err := c.tx.Model(&models.Message{}).
		Select("messages.id, messages.sender_id, messages.content, messages.reply_to_id, users.name AS sender").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.id <= ? AND messages.game_id = ?", baseID, c.gameID).
		Where("messages.status NOT IN ?", hiddenStatuses).
		Order("messages.id DESC").
		Limit(window).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: context window at %d: %w", baseID, err)
	}
	return rows, nil
}

// contextMessage loads a single message row for reply-chain traversal.
// Explicitly replied-to messages are included regardless of status.
func (c *Conn) contextMessage(id uint) (contextRow, bool, error) {
	var rows []contextRow
	err := c.tx.Model(&models.Message{}).
		Select("messages.id, messages.sender_id, messages.content, messages.reply_to_id, users.name AS sender").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.id = ? AND messages.game_id = ?", id, c.gameID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return contextRow{}, false, fmt.Errorf("store: context message %d: %w", id, err)
	}
	if len(rows) == 0 {
		return contextRow{}, false, nil
	}
	return rows[0], true, nil
}

// hiddenStatuses are excluded from context windows. Sudo edits are design
// interventions, not narrative, so they stay out of the window too.
var hiddenStatuses = []string{models.StatusFiltered, models.StatusIrrelevant, models.StatusSudo}
