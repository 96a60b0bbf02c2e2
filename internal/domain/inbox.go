package domain

import "context"

// Inbox is the direct-message channel the bot polls for commands and replies on.
type Inbox interface {
	Name() string
	// Fetch returns messages newer than since. Providers may include the
	// boundary and return any order; callers sort and dedupe.
	Fetch(ctx context.Context, since MessageID) ([]Message, error)
	Send(ctx context.Context, recipientID string, text string) error
}
