package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"dmcontrol/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000
	discordMaxLimit  = 100
)

// Discord reads the DM channel between the bot and its owner over the REST
// API. Message snowflakes are the message ids.
type Discord struct {
	ownerID string
	limit   int
	session *discordgo.Session
	logger  *slog.Logger

	mu        sync.Mutex
	channelID string
	after     domain.MessageID // newest id seen, including the bot's replies
	seeded    bool
}

// DiscordConfig configures the Discord inbox.
type DiscordConfig struct {
	Token      string
	OwnerID    string
	FetchLimit int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewDiscord creates a Discord inbox. No connection is made until Fetch.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if cfg.HTTPClient != nil {
		session.Client = cfg.HTTPClient
	}
	if cfg.FetchLimit <= 0 || cfg.FetchLimit > discordMaxLimit {
		cfg.FetchLimit = discordMaxLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		ownerID: cfg.OwnerID,
		limit:   cfg.FetchLimit,
		session: session,
		logger:  cfg.Logger,
	}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) ownerChannel(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channelID != "" {
		return d.channelID, nil
	}

	ch, err := d.session.UserChannelCreate(d.ownerID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord open DM channel: %w", err)
	}
	d.channelID = ch.ID
	return ch.ID, nil
}

// Fetch returns messages in the DM channel posted after since. The request
// cursor also moves past the bot's own replies, which never advance since,
// so a long run of replies cannot hide later owner messages.
func (d *Discord) Fetch(ctx context.Context, since domain.MessageID) ([]domain.Message, error) {
	channelID, err := d.ownerChannel(ctx)
	if err != nil {
		return nil, err
	}
	after, err := d.cursor(ctx, channelID, since)
	if err != nil {
		return nil, err
	}

	msgs, err := d.session.ChannelMessages(channelID, d.limit, "", after.String(), "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord channel messages: %w", err)
	}

	out := discordMessages(msgs, d.ownerID, d.logger)
	next := after
	for _, m := range out {
		next = max(next, m.ID)
	}
	d.mu.Lock()
	d.after = max(d.after, next)
	d.mu.Unlock()
	return out, nil
}

// cursor returns the id to list messages after. With no checkpoint yet it
// starts at the channel's latest message instead of replaying the history.
func (d *Discord) cursor(ctx context.Context, channelID string, since domain.MessageID) (domain.MessageID, error) {
	d.mu.Lock()
	if d.seeded || since > 0 {
		d.seeded = true
		after := max(since, d.after)
		d.mu.Unlock()
		return after, nil
	}
	d.mu.Unlock()

	latest, err := d.session.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("discord latest message: %w", err)
	}
	var newest domain.MessageID
	for _, m := range discordMessages(latest, d.ownerID, d.logger) {
		newest = max(newest, m.ID)
	}
	if newest > 0 {
		d.logger.Info("no checkpoint, starting after the latest DM", "after", newest)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.after = max(d.after, newest)
	d.seeded = true
	return d.after, nil
}

// discordMessages maps channel messages to inbox messages. The recipient is
// always the owner, so only the owner's own lines read as self-addressed and
// the bot's replies are skipped.
func discordMessages(msgs []*discordgo.Message, ownerID string, logger *slog.Logger) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Author == nil {
			continue
		}
		id, err := domain.ParseMessageID(m.ID)
		if err != nil {
			logger.Warn("skipping discord message with bad id", "id", m.ID, "err", err)
			continue
		}
		out = append(out, domain.Message{
			ID:          id,
			SenderID:    m.Author.ID,
			RecipientID: ownerID,
			Text:        m.Content,
			CreatedAt:   m.Timestamp.UTC(),
		})
	}
	return out
}

// Send posts text to the owner's DM channel. recipientID must be the owner.
func (d *Discord) Send(ctx context.Context, recipientID string, text string) error {
	if recipientID != d.ownerID {
		return fmt.Errorf("discord inbox only replies to its owner, got %q", recipientID)
	}
	channelID, err := d.ownerChannel(ctx)
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(text, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}
