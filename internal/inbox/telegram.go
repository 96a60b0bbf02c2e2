package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dmcontrol/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen = 4000
	telegramMaxLimit  = 100
)

// Telegram polls a bot's update queue. Message ids of the owner's private
// chat are the inbox ids; update ids only drive the getUpdates offset, since
// Telegram may restart them at a random value after a week without updates.
type Telegram struct {
	token    string
	endpoint string
	ownerID  int64
	limit    int
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
	offset int // next update id to request, 0 when nothing is unconfirmed
}

// TelegramConfig configures the Telegram inbox.
type TelegramConfig struct {
	Token      string
	OwnerID    string
	Endpoint   string // tgbotapi endpoint format, defaults to tgbotapi.APIEndpoint
	FetchLimit int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewTelegram creates a Telegram inbox. The bot connects on first use.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	owner, err := strconv.ParseInt(cfg.OwnerID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram owner id %q: %w", cfg.OwnerID, err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.FetchLimit <= 0 || cfg.FetchLimit > telegramMaxLimit {
		cfg.FetchLimit = telegramMaxLimit
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:    cfg.Token,
		endpoint: cfg.Endpoint,
		ownerID:  owner,
		limit:    cfg.FetchLimit,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// connect returns the bot, creating it on first call. A failed connect is
// retried on the next call.
func (t *Telegram) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}

	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return bot, nil
}

// Fetch returns the owner's messages from the pending updates. The offset
// moves past every update seen, so non-owner updates cannot fill later
// pages. An empty batch confirms everything below the offset, so the next
// request starts from 0 and picks up update ids that restarted lower.
// since is not used here; the caller drops ids at or below it.
func (t *Telegram) Fetch(ctx context.Context, _ domain.MessageID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bot, err := t.connect()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	updates, err := bot.GetUpdates(tgbotapi.UpdateConfig{Offset: offset, Limit: t.limit})
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}

	var out []domain.Message
	next := 0
	for _, u := range updates {
		next = u.UpdateID + 1
		if msg, ok := t.toMessage(u); ok {
			out = append(out, msg)
		}
	}

	t.mu.Lock()
	t.offset = next
	t.mu.Unlock()
	return out, nil
}

func (t *Telegram) toMessage(u tgbotapi.Update) (domain.Message, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.Message{}, false
	}
	if m.From.ID != t.ownerID {
		t.logger.Warn("unauthorized telegram user", "userID", m.From.ID, "username", m.From.UserName)
		return domain.Message{}, false
	}
	return domain.Message{
		ID:          domain.MessageID(m.MessageID),
		SenderID:    strconv.FormatInt(m.From.ID, 10),
		RecipientID: strconv.FormatInt(m.Chat.ID, 10),
		Text:        m.Text,
		CreatedAt:   time.Unix(int64(m.Date), 0).UTC(),
	}, true
}

// Send writes text to the chat recipientID, split to Telegram's size limit.
func (t *Telegram) Send(ctx context.Context, recipientID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", recipientID, err)
	}
	bot, err := t.connect()
	if err != nil {
		return err
	}

	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}
