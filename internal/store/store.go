// Package store is the durable source of truth for one game room. Every
// mutating operation runs inside a single transaction scope; transient
// SQLite lock contention is retried with a fixed backoff before the error
// is surfaced to the caller.
package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fabler/fabler/internal/models"
	"gorm.io/gorm"
)

const (
	// maxTxRetries bounds retry attempts on lock contention.
	maxTxRetries = 5
	// txRetryDelay is the fixed sleep between retries.
	txRetryDelay = 100 * time.Millisecond
)

// Store wraps a room database and tracks the active game epoch. It is safe
// for concurrent use, though the session engine funnels all writes through
// one goroutine per room.
type Store struct {
	gdb *gorm.DB

	mu     sync.RWMutex
	gameID uint
}

// New creates a Store over an already-migrated room database and loads the
// latest game epoch as the active one.
func New(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	var game models.Game
	if err := gdb.Order("id DESC").First(&game).Error; err != nil {
		return nil, fmt.Errorf("store: load active game: %w", err)
	}
	return &Store{gdb: gdb, gameID: game.ID}, nil
}

// ActiveGameID returns the current game epoch.
func (s *Store) ActiveGameID() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameID
}

func (s *Store) setActiveGameID(id uint) {
	s.mu.Lock()
	s.gameID = id
	s.mu.Unlock()
}

// Conn is a single transaction scope. All operations on a Conn either
// commit together or roll back together.
type Conn struct {
	tx     *gorm.DB
	gameID uint
}

// GameID returns the game epoch this transaction is scoped to.
func (c *Conn) GameID() uint {
	return c.gameID
}

// Tx runs fn inside a transaction. When SQLite reports lock contention the
// whole transaction is retried up to maxTxRetries times with a fixed delay;
// any other error rolls back and propagates, and the caller must treat the
// operation as not applied.
func (s *Store) Tx(fn func(c *Conn) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.gdb.Transaction(func(tx *gorm.DB) error {
			return fn(&Conn{tx: tx, gameID: s.ActiveGameID()})
		})
		if err == nil {
			return nil
		}
		if !isLockErr(err) {
			return err
		}
		time.Sleep(txRetryDelay)
	}
	return fmt.Errorf("store: transaction retries exhausted: %w", err)
}

// NewEpoch opens a fresh game generation. The Store's active epoch advances
// only once the transaction has committed, so a rollback leaves the old
// epoch in place.
func (s *Store) NewEpoch() (uint, error) {
	var id uint
	err := s.Tx(func(c *Conn) error {
		var err error
		id, err = c.CreateGame()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.setActiveGameID(id)
	return id, nil
}

// isLockErr reports whether err is SQLite lock contention.
func isLockErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
