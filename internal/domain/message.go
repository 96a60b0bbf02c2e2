package domain

import (
	"strconv"
	"time"
)

// MessageID is the provider's identifier for an inbox entry. Identifiers are
// totally ordered: a larger id is always a newer message.
type MessageID int64

func (id MessageID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseMessageID parses a decimal message id as sent by the inbox providers.
func ParseMessageID(s string) (MessageID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return MessageID(n), nil
}

type Message struct {
	ID          MessageID
	SenderID    string
	RecipientID string
	Text        string
	CreatedAt   time.Time
}

// SelfAddressed reports whether the message was sent by the account to itself,
// which is how commands are issued to the bot.
func (m Message) SelfAddressed() bool {
	return m.SenderID != "" && m.SenderID == m.RecipientID
}

// Command is one parsed command line.
type Command struct {
	Name string // lower-cased
	Args string // trimmed, colons preserved
	Raw  string // original line
}
