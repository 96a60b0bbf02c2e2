package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dmcontrol/internal/domain"

	"github.com/dghubble/oauth1"
)

const (
	twitterAPIBase   = "https://api.twitter.com"
	twitterMaxMsgLen = 10000
	twitterMaxPages  = 5
	twitterMaxCount  = 50
)

// Twitter reads and writes direct messages through the v1.1 DM events API.
type Twitter struct {
	base   string
	limit  int
	client *http.Client
	logger *slog.Logger
}

// TwitterConfig configures the Twitter inbox.
type TwitterConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	APIBase        string // defaults to https://api.twitter.com
	FetchLimit     int
	// HTTPClient carries timeouts and transport; requests are OAuth1-signed on top of it.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewTwitter creates a Twitter inbox with a signing HTTP client.
func NewTwitter(cfg TwitterConfig) *Twitter {
	if cfg.APIBase == "" {
		cfg.APIBase = twitterAPIBase
	}
	if cfg.FetchLimit <= 0 || cfg.FetchLimit > twitterMaxCount {
		cfg.FetchLimit = twitterMaxCount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, cfg.HTTPClient)
	}
	oauthCfg := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)

	return &Twitter{
		base:   strings.TrimRight(cfg.APIBase, "/"),
		limit:  cfg.FetchLimit,
		client: oauthCfg.Client(ctx, token),
		logger: cfg.Logger,
	}
}

func (t *Twitter) Name() string { return "twitter" }

type dmEventList struct {
	Events     []dmEvent `json:"events"`
	NextCursor string    `json:"next_cursor"`
}

type dmEvent struct {
	Type             string `json:"type"`
	ID               string `json:"id,omitempty"`
	CreatedTimestamp string `json:"created_timestamp,omitempty"`
	MessageCreate    struct {
		Target struct {
			RecipientID string `json:"recipient_id"`
		} `json:"target"`
		SenderID    string `json:"sender_id,omitempty"`
		MessageData struct {
			Text string `json:"text"`
		} `json:"message_data"`
	} `json:"message_create"`
}

// Fetch lists recent DM events, following the cursor while every event on a
// page is still newer than since.
func (t *Twitter) Fetch(ctx context.Context, since domain.MessageID) ([]domain.Message, error) {
	var (
		out    []domain.Message
		cursor string
	)
	for page := 0; ; page++ {
		q := url.Values{"count": {strconv.Itoa(t.limit)}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var list dmEventList
		if err := t.do(ctx, http.MethodGet, "/1.1/direct_messages/events/list.json?"+q.Encode(), nil, &list); err != nil {
			return nil, err
		}

		reachedSince := false
		for _, ev := range list.Events {
			msg, ok := t.toMessage(ev)
			if !ok {
				continue
			}
			if msg.ID <= since {
				reachedSince = true
				continue
			}
			out = append(out, msg)
		}

		if reachedSince || list.NextCursor == "" || len(list.Events) == 0 {
			break
		}
		if page == twitterMaxPages-1 {
			if since > 0 {
				t.logger.Warn("DM page limit reached before last_seen, older messages are skipped",
					"pages", twitterMaxPages,
					"since", since,
					"fetched", len(out),
				)
			}
			break
		}
		cursor = list.NextCursor
	}
	return out, nil
}

func (t *Twitter) toMessage(ev dmEvent) (domain.Message, bool) {
	if ev.Type != "" && ev.Type != "message_create" {
		return domain.Message{}, false
	}
	id, err := domain.ParseMessageID(ev.ID)
	if err != nil {
		t.logger.Warn("skipping DM event with bad id", "id", ev.ID, "err", err)
		return domain.Message{}, false
	}

	msg := domain.Message{
		ID:          id,
		SenderID:    ev.MessageCreate.SenderID,
		RecipientID: ev.MessageCreate.Target.RecipientID,
		Text:        ev.MessageCreate.MessageData.Text,
	}
	if ms, err := strconv.ParseInt(ev.CreatedTimestamp, 10, 64); err == nil {
		msg.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return msg, true
}

// Send posts a DM to recipientID, one event per chunk.
func (t *Twitter) Send(ctx context.Context, recipientID string, text string) error {
	for _, chunk := range splitMessage(text, twitterMaxMsgLen) {
		var ev dmEvent
		ev.Type = "message_create"
		ev.MessageCreate.Target.RecipientID = recipientID
		ev.MessageCreate.MessageData.Text = chunk

		body, err := json.Marshal(map[string]any{"event": ev})
		if err != nil {
			return fmt.Errorf("encode DM: %w", err)
		}
		if err := t.do(ctx, http.MethodPost, "/1.1/direct_messages/events/new.json", body, nil); err != nil {
			return err
		}
	}
	return nil
}

func (t *Twitter) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twitter %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twitter %s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode twitter response: %w", err)
	}
	return nil
}
