package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Replies returned by AddSeries.
const (
	SeriesAdded         = "Show added to my list"
	SeriesAlreadyAdded  = "I already have that show"
	SeriesNotFound      = "I couldn't find that show, sorry"
	SeriesUnexpected    = "Something weird happened when trying to add the show"
	SeriesUnreachable   = "I couldn't reach Sonarr"
	alreadyAddedMessage = "This series has already been added"
)

// Sonarr looks up and adds series through the Sonarr v2 API.
type Sonarr struct {
	baseURL    string
	apiKey     string
	rootFolder string
	profileID  int
	client     *http.Client
	logger     *slog.Logger
}

type SonarrConfig struct {
	BaseURL    string // e.g. http://localhost:8989
	APIKey     string
	RootFolder string // tv_show_dir
	ProfileID  int
	Client     *http.Client
	Logger     *slog.Logger
}

func NewSonarr(cfg SonarrConfig) *Sonarr {
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sonarr{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api",
		apiKey:     cfg.APIKey,
		rootFolder: cfg.RootFolder,
		profileID:  cfg.ProfileID,
		client:     cfg.Client,
		logger:     cfg.Logger,
	}
}

// AddSeries finds name in the catalog and adds the first match.
func (s *Sonarr) AddSeries(ctx context.Context, name string) (bool, string) {
	series, err := s.Lookup(ctx, name)
	if err != nil {
		s.logger.Warn("sonarr lookup failed", "term", name, "err", err)
		return false, SeriesUnreachable
	}
	if series == nil {
		return false, SeriesNotFound
	}

	ok, msg, err := s.add(ctx, series)
	if err != nil {
		s.logger.Warn("sonarr add failed", "term", name, "err", err)
		return false, SeriesUnreachable
	}
	return ok, msg
}

// Lookup returns the first catalog match for term, or nil when nothing with
// a tvdbId came back. The object is kept untyped because it is posted back
// as the body of the add request.
func (s *Sonarr) Lookup(ctx context.Context, term string) (map[string]any, error) {
	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("term", term)

	var results []map[string]any
	if err := getJSON(ctx, s.client, s.baseURL+"/series/lookup?"+params.Encode(), &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	if _, ok := results[0]["tvdbId"]; !ok {
		return nil, nil
	}
	return results[0], nil
}

func (s *Sonarr) add(ctx context.Context, series map[string]any) (bool, string, error) {
	series["addOptions"] = map[string]any{
		"ignoreEpisodesWithFiles":    true,
		"ignoreEpisodesWithoutFiles": false,
		"searchForMissingEpisodes":   true,
	}
	series["seasonFolder"] = true
	series["rootFolderPath"] = s.rootFolder
	series["profileId"] = s.profileID
	monitorSeasons(series)

	body, err := json.Marshal(series)
	if err != nil {
		return false, "", fmt.Errorf("encode series: %w", err)
	}

	params := url.Values{}
	params.Set("apikey", s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/series?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()

	// Validation failures come back as 400 with a JSON error array, so the
	// body is inspected regardless of status.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, "", fmt.Errorf("read response: %w", err)
	}

	ok, msg := interpretAddResponse(raw)
	if !ok {
		s.logger.Debug("unexpected sonarr add response", "status", resp.StatusCode, "body", string(raw))
	}
	return ok, msg, nil
}

// monitorSeasons marks every season except specials (season 0) as monitored.
func monitorSeasons(series map[string]any) {
	seasons, _ := series["seasons"].([]any)
	for _, raw := range seasons {
		season, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if n, _ := season["seasonNumber"].(float64); n != 0 {
			season["monitored"] = true
		}
	}
}

type sonarrValidationError struct {
	PropertyName string `json:"propertyName"`
	ErrorMessage string `json:"errorMessage"`
}

// interpretAddResponse maps the add-series body to a reply. A created series
// echoes its tvdbId. "Already added" is recognised only by the exact
// single-error shape Sonarr v2 returns; this is a heuristic, not a documented
// contract, and any other shape is reported as unexpected.
func interpretAddResponse(raw []byte) (bool, string) {
	var created map[string]any
	if err := json.Unmarshal(raw, &created); err == nil {
		if _, ok := created["tvdbId"]; ok {
			return true, SeriesAdded
		}
		return false, SeriesUnexpected
	}

	var errs []sonarrValidationError
	if err := json.Unmarshal(raw, &errs); err == nil && len(errs) == 1 {
		if errs[0].PropertyName == "TvdbId" && errs[0].ErrorMessage == alreadyAddedMessage {
			return true, SeriesAlreadyAdded
		}
	}
	return false, SeriesUnexpected
}
