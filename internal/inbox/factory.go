package inbox

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"dmcontrol/internal/config"
	"dmcontrol/internal/domain"
)

// New builds the inbox selected by cfg.Inbox.Provider. client supplies the
// transport and per-request timeout.
func New(cfg *config.Config, client *http.Client, logger *slog.Logger) (domain.Inbox, error) {
	logger = logger.With("inbox", cfg.Inbox.Provider)

	switch cfg.Inbox.Provider {
	case config.ProviderTwitter, "":
		return NewTwitter(TwitterConfig{
			ConsumerKey:    cfg.Twitter.ConsumerKey,
			ConsumerSecret: cfg.Twitter.ConsumerSecret,
			AccessToken:    cfg.Twitter.AccessToken,
			AccessSecret:   cfg.Twitter.AccessSecret,
			APIBase:        cfg.Inbox.APIBase,
			FetchLimit:     cfg.Inbox.FetchLimit,
			HTTPClient:     client,
			Logger:         logger,
		}), nil
	case config.ProviderTelegram:
		return NewTelegram(TelegramConfig{
			Token:      cfg.Telegram.Token,
			OwnerID:    cfg.Twitter.MyID,
			Endpoint:   telegramEndpoint(cfg.Inbox.APIBase),
			FetchLimit: cfg.Inbox.FetchLimit,
			HTTPClient: client,
			Logger:     logger,
		})
	case config.ProviderDiscord:
		return NewDiscord(DiscordConfig{
			Token:      cfg.Discord.Token,
			OwnerID:    cfg.Twitter.MyID,
			FetchLimit: cfg.Inbox.FetchLimit,
			HTTPClient: client,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown inbox provider %q", cfg.Inbox.Provider)
	}
}

// telegramEndpoint turns an api_base such as http://127.0.0.1:8081 into the
// bot%s/%s endpoint format tgbotapi expects.
func telegramEndpoint(base string) string {
	if base == "" || strings.Contains(base, "%s") {
		return base
	}
	return strings.TrimRight(base, "/") + "/bot%s/%s"
}
