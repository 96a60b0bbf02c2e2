package domain

import (
	"context"
	"time"
)

// HistoryStore keeps an audit trail of dispatched commands.
type HistoryStore interface {
	Record(ctx context.Context, rec CommandRecord) error
	Recent(ctx context.Context, limit int) ([]CommandRecord, error)
	Close() error
}

type CommandRecord struct {
	ID        int64     `json:"id"`
	CycleID   string    `json:"cycle_id"`
	MessageID MessageID `json:"message_id"`
	Name      string    `json:"name"`
	Args      string    `json:"args"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}
