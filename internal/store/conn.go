package store

import (
	"fmt"

	"github.com/fabler/fabler/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetOrCreateUser upserts a user keyed by platform identity. The display
// name is always overwritten with the latest sighting.
func (c *Conn) GetOrCreateUser(upstreamID, displayName string) (*models.User, error) {
	user := models.User{Name: displayName, UpstreamID: upstreamID}
	err := c.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upstream_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("store: upsert user %s: %w", upstreamID, err)
	}
	// On conflict the insert does not report the existing row's ID.
	if err := c.tx.Where("upstream_id = ?", upstreamID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("store: load user %s: %w", upstreamID, err)
	}
	return &user, nil
}

// GetUser looks up a user by platform identity. Returns (nil, nil) when the
// user has never been seen.
func (c *Conn) GetUser(upstreamID string) (*models.User, error) {
	var user models.User
	err := c.tx.Where("upstream_id = ?", upstreamID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %s: %w", upstreamID, err)
	}
	return &user, nil
}

// GetUserByID looks up a user by internal id. Returns (nil, nil) when no
// such user exists.
func (c *Conn) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	err := c.tx.First(&user, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %d: %w", id, err)
	}
	return &user, nil
}

// GetOrCreateItem interns an item name and returns its id.
func (c *Conn) GetOrCreateItem(name string) (uint, error) {
	item := models.Item{Name: name}
	err := c.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error
	if err != nil {
		return 0, fmt.Errorf("store: intern item: %w", err)
	}
	if err := c.tx.Where("name = ?", name).First(&item).Error; err != nil {
		return 0, fmt.Errorf("store: load item: %w", err)
	}
	return item.ID, nil
}

// AddMessageOpts holds optional parameters for AddMessage.
type AddMessageOpts struct {
	UpstreamID *string
	ReplyToID  *uint
	Filtered   bool
	Sudo       bool
}

// AddMessage appends a message to the narrative log and returns its id.
func (c *Conn) AddMessage(content string, senderID uint, opts AddMessageOpts) (uint, error) {
	status := ""
	switch {
	case opts.Filtered:
		status = models.StatusFiltered
	case opts.Sudo:
		status = models.StatusSudo
	}
	msg := models.Message{
		Content:    content,
		SenderID:   senderID,
		UpstreamID: opts.UpstreamID,
		ReplyToID:  opts.ReplyToID,
		Status:     status,
		GameID:     c.gameID,
	}
	result := c.tx.Create(&msg)
	if result.Error != nil {
		return 0, fmt.Errorf("store: add message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("store: add message: no row inserted")
	}
	return msg.ID, nil
}

// MarkMessageSent records the platform-assigned id once delivery is
// confirmed. The row must already exist so reply chains can reference it
// before the platform echo arrives.
func (c *Conn) MarkMessageSent(messageID uint, upstreamID string) error {
	err := c.tx.Model(&models.Message{}).Where("id = ?", messageID).
		Update("upstream_id", upstreamID).Error
	if err != nil {
		return fmt.Errorf("store: mark message %d sent: %w", messageID, err)
	}
	return nil
}

// UnfilterMessage transitions a filtered message to unfiltered. Any other
// status is left untouched; re-applying is a no-op.
func (c *Conn) UnfilterMessage(messageID uint) error {
	err := c.tx.Model(&models.Message{}).
		Where("id = ? AND status = ?", messageID, models.StatusFiltered).
		Update("status", models.StatusUnfiltered).Error
	if err != nil {
		return fmt.Errorf("store: unfilter message %d: %w", messageID, err)
	}
	return nil
}

// MarkMessageIrrelevant overwrites the message status unconditionally.
func (c *Conn) MarkMessageIrrelevant(messageID uint) error {
	err := c.tx.Model(&models.Message{}).Where("id = ?", messageID).
		Update("status", models.StatusIrrelevant).Error
	if err != nil {
		return fmt.Errorf("store: mark message %d irrelevant: %w", messageID, err)
	}
	return nil
}

// GetMessage looks up a message by its platform id. Returns (nil, nil) when
// no such message exists.
func (c *Conn) GetMessage(upstreamID string) (*models.Message, error) {
	var msg models.Message
	err := c.tx.Where("upstream_id = ?", upstreamID).First(&msg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get message %s: %w", upstreamID, err)
	}
	return &msg, nil
}

// NarratorRepliesAfter returns narrative replies from the active epoch with
// an ID greater than afterID, oldest first.
func (c *Conn) NarratorRepliesAfter(afterID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := c.tx.Where("sender_id = ? AND game_id = ? AND id > ?",
		models.NarratorUserID, c.gameID, afterID).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: narrator replies after %d: %w", afterID, err)
	}
	return msgs, nil
}

// AddReaction records a reaction with set semantics; duplicates are no-ops.
func (c *Conn) AddReaction(messageID, userID uint, symbol string) error {
	reaction := models.Reaction{MessageID: messageID, UserID: userID, Symbol: symbol}
	err := c.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction).Error
	if err != nil {
		return fmt.Errorf("store: add reaction: %w", err)
	}
	return nil
}

// RemoveReaction deletes a reaction if present; absence is a no-op.
func (c *Conn) RemoveReaction(messageID, userID uint, symbol string) error {
	err := c.tx.Where("message_id = ? AND user_id = ? AND symbol = ?",
		messageID, userID, symbol).Delete(&models.Reaction{}).Error
	if err != nil {
		return fmt.Errorf("store: remove reaction: %w", err)
	}
	return nil
}

// UpdateGameState applies world and inventory patch maps against the active
// epoch. A true value ensures the item exists, false ensures it is removed;
// keys not mentioned are untouched.
func (c *Conn) UpdateGameState(userID uint, worldChanges, inventoryChanges map[string]bool) error {
	for name, add := range worldChanges {
		itemID, err := c.GetOrCreateItem(name)
		if err != nil {
			return err
		}
		if add {
			entry := models.WorldItem{ItemID: itemID, GameID: c.gameID}
			if err := c.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
				return fmt.Errorf("store: add world item: %w", err)
			}
		} else {
			if err := c.tx.Where("item_id = ? AND game_id = ?", itemID, c.gameID).
				Delete(&models.WorldItem{}).Error; err != nil {
				return fmt.Errorf("store: remove world item: %w", err)
			}
		}
	}

	for name, add := range inventoryChanges {
		itemID, err := c.GetOrCreateItem(name)
		if err != nil {
			return err
		}
		if add {
			entry := models.InventoryItem{UserID: userID, ItemID: itemID, GameID: c.gameID}
			if err := c.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
				return fmt.Errorf("store: add inventory item: %w", err)
			}
		} else {
			if err := c.tx.Where("user_id = ? AND item_id = ? AND game_id = ?", userID, itemID, c.gameID).
				Delete(&models.InventoryItem{}).Error; err != nil {
				return fmt.Errorf("store: remove inventory item: %w", err)
			}
		}
	}
	return nil
}

// LoadWorldState returns every item currently true of the world in the
// active epoch.
func (c *Conn) LoadWorldState() (map[string]struct{}, error) {
	var names []string
	err := c.tx.Model(&models.WorldItem{}).
		Joins("JOIN items ON items.id = world_items.item_id").
		Where("world_items.game_id = ?", c.gameID).
		Pluck("items.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("store: load world state: %w", err)
	}
	return toSet(names), nil
}

// LoadPlayerInventory returns every item a player holds in the active epoch.
func (c *Conn) LoadPlayerInventory(userID uint) (map[string]struct{}, error) {
	var names []string
	err := c.tx.Model(&models.InventoryItem{}).
		Joins("JOIN items ON items.id = inventory_items.item_id").
		Where("inventory_items.user_id = ? AND inventory_items.game_id = ?", userID, c.gameID).
		Pluck("items.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("store: load inventory for user %d: %w", userID, err)
	}
	return toSet(names), nil
}

// LoadCustomRules returns all rules that have not been removed.
func (c *Conn) LoadCustomRules() ([]models.CustomRule, error) {
	var rules []models.CustomRule
	if err := c.tx.Where("removed = ?", false).Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("store: load custom rules: %w", err)
	}
	return rules, nil
}

// AddCustomRule creates a custom rule.
func (c *Conn) AddCustomRule(rule string, creatorID uint, secret bool) (*models.CustomRule, error) {
	r := models.CustomRule{Rule: rule, CreatorID: creatorID, Secret: secret}
	if err := c.tx.Create(&r).Error; err != nil {
		return nil, fmt.Errorf("store: add custom rule: %w", err)
	}
	return &r, nil
}

// RemoveCustomRule soft-deletes a rule, preserving audit history.
func (c *Conn) RemoveCustomRule(ruleID uint) error {
	err := c.tx.Model(&models.CustomRule{}).Where("id = ?", ruleID).
		Update("removed", true).Error
	if err != nil {
		return fmt.Errorf("store: remove custom rule %d: %w", ruleID, err)
	}
	return nil
}

// LoadObjectives returns the active epoch's objectives grouped by the
// owning user's platform identity.
func (c *Conn) LoadObjectives() (map[string][]models.Objective, error) {
	var objectives []models.Objective
	err := c.tx.Preload("User").Where("game_id = ?", c.gameID).
		Order("id ASC").Find(&objectives).Error
	if err != nil {
		return nil, fmt.Errorf("store: load objectives: %w", err)
	}
	grouped := make(map[string][]models.Objective)
	for _, o := range objectives {
		grouped[o.User.UpstreamID] = append(grouped[o.User.UpstreamID], o)
	}
	return grouped, nil
}

// AddObjective registers an objective for a user in the active epoch.
func (c *Conn) AddObjective(text string, userID uint) (*models.Objective, error) {
	o := models.Objective{Text: text, UserID: userID, GameID: c.gameID}
	if err := c.tx.Create(&o).Error; err != nil {
		return nil, fmt.Errorf("store: add objective: %w", err)
	}
	return &o, nil
}

// CreateGame starts a new epoch. Later operations on this same Conn target
// the new game id, but the Store's active epoch advances only after the
// transaction commits; see Store.NewEpoch.
func (c *Conn) CreateGame() (uint, error) {
	game := models.Game{}
	if err := c.tx.Create(&game).Error; err != nil {
		return 0, fmt.Errorf("store: create game: %w", err)
	}
	c.gameID = game.ID
	return game.ID, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
