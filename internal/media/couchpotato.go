package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// CouchPotato queues movies by IMDB id.
type CouchPotato struct {
	apiURL     string
	profileID  string
	categoryID string
	client     *http.Client
	logger     *slog.Logger
}

type CouchPotatoConfig struct {
	BaseURL    string // e.g. http://localhost:5050
	APIKey     string
	ProfileID  string
	CategoryID string
	Client     *http.Client
	Logger     *slog.Logger
}

func NewCouchPotato(cfg CouchPotatoConfig) *CouchPotato {
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CategoryID == "" {
		cfg.CategoryID = "-1"
	}
	return &CouchPotato{
		apiURL:     strings.TrimRight(cfg.BaseURL, "/") + "/api/" + url.PathEscape(cfg.APIKey),
		profileID:  cfg.ProfileID,
		categoryID: cfg.CategoryID,
		client:     cfg.Client,
		logger:     cfg.Logger,
	}
}

type movieAddResponse struct {
	Success bool `json:"success"`
}

// AddMovie reports whether CouchPotato accepted the identifier.
func (c *CouchPotato) AddMovie(ctx context.Context, id string) bool {
	params := url.Values{}
	params.Set("identifier", id)
	params.Set("profile_id", c.profileID)
	params.Set("category_id", c.categoryID)

	var resp movieAddResponse
	if err := getJSON(ctx, c.client, c.apiURL+"/movie.add/?"+params.Encode(), &resp); err != nil {
		c.logger.Warn("couchpotato movie.add failed", "identifier", id, "err", err)
		return false
	}
	return resp.Success
}
