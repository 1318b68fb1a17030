// Package extractor resolves source URLs against the catalog API, turning an
// album/playlist/track link into a lazy sequence of downloadable tracks.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"cadence/internal/config"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
	"cadence/internal/services"
)

// pageSize is how many tracks one catalog request returns at most.
const pageSize = 100

// Client talks to the catalog resolver API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds a catalog client from application config.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.Catalog.BaseURL,
		apiKey:     cfg.Catalog.APIKey,
		httpClient: &http.Client{Timeout: cfg.CatalogTimeout()},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Catalog.RatePerSecond), cfg.Catalog.RateBurst),
		logger:     logging.NewComponentLogger(logger, "extractor"),
	}
}

type trackPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	TrackNumber int    `json:"track_number"`
	StreamURL   string `json:"stream_url"`
	CoverURL    string `json:"cover_url"`
	Unavailable bool   `json:"unavailable"`
	Reason      string `json:"reason"`
}

type resolvePage struct {
	Collection struct {
		Title      string `json:"title"`
		Artist     string `json:"artist"`
		Kind       string `json:"kind"`
		TrackCount int    `json:"track_count"`
		CoverURL   string `json:"cover_url"`
	} `json:"collection"`
	Tracks     []trackPayload `json:"tracks"`
	Total      int            `json:"total"`
	NextOffset *int           `json:"next_offset"`
}

// Resolve pages through the catalog's track listing for the source URL,
// yielding one update per item. The token is polled between items so a large
// playlist can be cancelled mid-extraction.
func (c *Client) Resolve(ctx context.Context, req pipeline.ResolveRequest, yield func(pipeline.ExtractUpdate)) (*pipeline.Collection, error) {
	var collection *pipeline.Collection
	current := 0
	offset := 0

	for {
		if err := req.Token.Err(); err != nil {
			return collection, err
		}

		page, err := c.fetchPage(ctx, req.SourceURL, offset)
		if err != nil {
			return collection, err
		}

		if collection == nil {
			collection = &pipeline.Collection{
				Title:      page.Collection.Title,
				Artist:     page.Collection.Artist,
				Kind:       page.Collection.Kind,
				TrackCount: page.Collection.TrackCount,
				CoverURL:   page.Collection.CoverURL,
			}
			if collection.TrackCount == 0 {
				collection.TrackCount = page.Total
			}
		}

		total := page.Total
		if req.Limit > 0 && req.Limit < total {
			total = req.Limit
		}

		for _, payload := range page.Tracks {
			if err := req.Token.Err(); err != nil {
				return collection, err
			}
			current++

			switch {
			case payload.Unavailable:
				reason := payload.Reason
				if reason == "" {
					reason = "unavailable at source"
				}
				yield(pipeline.ExtractUpdate{Current: current, Total: total, SkipReason: reason})
			case payload.StreamURL == "":
				yield(pipeline.ExtractUpdate{Current: current, Total: total, SkipReason: "no stream url"})
			default:
				track := pipeline.Track{
					ID:          payload.ID,
					Title:       payload.Title,
					Artist:      payload.Artist,
					Album:       payload.Album,
					TrackNumber: payload.TrackNumber,
					StreamURL:   payload.StreamURL,
					CoverURL:    payload.CoverURL,
				}
				yield(pipeline.ExtractUpdate{Current: current, Total: total, Track: &track})
			}

			if req.Limit > 0 && current >= req.Limit {
				return collection, nil
			}
		}

		if page.NextOffset == nil || len(page.Tracks) == 0 {
			return collection, nil
		}
		offset = *page.NextOffset
	}
}

func (c *Client) fetchPage(ctx context.Context, sourceURL string, offset int) (*resolvePage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/resolve?%s", c.baseURL, url.Values{
		"url":    {sourceURL},
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(pageSize)},
	}.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extractor", "resolve", "build request", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extractor", "resolve", "catalog request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var page resolvePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, services.Wrap(services.ErrTransient, "extractor", "resolve", "decode response", err)
	}
	return &page, nil
}

func classifyStatus(status int, body string) error {
	detail := fmt.Sprintf("catalog returned %d: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, "extractor", "resolve", detail, nil)
	case status >= 500:
		return services.Wrap(services.ErrUnavailable, "extractor", "resolve", detail, nil)
	case status == http.StatusNotFound, status == http.StatusForbidden, status == http.StatusGone:
		return services.Wrap(services.ErrContentUnavailable, "extractor", "resolve", detail, nil)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, "extractor", "resolve", detail, nil)
	default:
		return services.Wrap(services.ErrTransient, "extractor", "resolve", detail, nil)
	}
}
