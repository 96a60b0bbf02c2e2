package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"dmcontrol/internal/domain"
)

// SABnzbd reads download queue status.
type SABnzbd struct {
	apiURL string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

type SABnzbdConfig struct {
	BaseURL string // e.g. http://localhost:8080
	APIKey  string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewSABnzbd(cfg SABnzbdConfig) *SABnzbd {
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SABnzbd{
		apiURL: strings.TrimRight(cfg.BaseURL, "/") + "/sabnzbd/api",
		apiKey: cfg.APIKey,
		client: cfg.Client,
		logger: cfg.Logger,
	}
}

type queueResponse struct {
	Queue *domain.QueueStats `json:"queue"`
}

// QueueStats returns nil when the service is unreachable or the response has
// no queue object.
func (s *SABnzbd) QueueStats(ctx context.Context) *domain.QueueStats {
	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("mode", "queue")
	params.Set("start", "0")
	params.Set("limit", "-1")
	params.Set("output", "json")

	var resp queueResponse
	if err := getJSON(ctx, s.client, s.apiURL+"?"+params.Encode(), &resp); err != nil {
		s.logger.Warn("sabnzbd queue request failed", "err", err)
		return nil
	}
	if resp.Queue == nil {
		s.logger.Debug("sabnzbd response has no queue")
	}
	return resp.Queue
}
