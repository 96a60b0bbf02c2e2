package agent

import (
	"log/slog"
	"sync"

	"dmcontrol/internal/domain"
)

// SaveFunc writes the last_seen cursor to durable storage.
type SaveFunc func(lastSeen int64) error

// Checkpoint owns the last_seen cursor. The loop advances it; Persist may also
// be called from the signal path, so every access goes through mu.
type Checkpoint struct {
	mu       sync.Mutex
	lastSeen domain.MessageID
	saved    domain.MessageID
	save     SaveFunc
	logger   *slog.Logger
}

func NewCheckpoint(lastSeen domain.MessageID, save SaveFunc, logger *slog.Logger) *Checkpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkpoint{
		lastSeen: lastSeen,
		saved:    lastSeen,
		save:     save,
		logger:   logger,
	}
}

func (c *Checkpoint) LastSeen() domain.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Advance moves the cursor forward to id. It never moves backwards and
// reports whether the cursor changed.
func (c *Checkpoint) Advance(id domain.MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id <= c.lastSeen {
		return false
	}
	c.lastSeen = id
	return true
}

// Dirty reports whether the in-memory cursor is ahead of the saved one.
func (c *Checkpoint) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen != c.saved
}

// Persist saves the cursor if it changed since the last save. Concurrent and
// repeated calls are serialized; a call with nothing new to write is a no-op.
func (c *Checkpoint) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastSeen == c.saved {
		return nil
	}
	if err := c.save(int64(c.lastSeen)); err != nil {
		return err
	}
	c.logger.Debug("checkpoint saved", "last_seen", c.lastSeen)
	c.saved = c.lastSeen
	return nil
}
