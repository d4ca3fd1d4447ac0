package vnas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultFeedURL is the public controller feed.
const DefaultFeedURL = "https://live.env.vnas.vatsim.net/data-feed/controllers.json"

// maxFeedBytes bounds the size of a feed response.
const maxFeedBytes = 16 << 20

// ErrFeedStatus is returned when the feed responds with a non-2xx status.
var ErrFeedStatus = errors.New("controller feed returned non-success status")

// Client is an HTTP client for the controller feed. It does not retry or
// cache.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// NewClient creates a feed client for url with the given request timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultFeedURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		logger:     logger.With("subsystem", "vnas"),
	}
}

// Fetch retrieves the current controller list.
func (c *Client) Fetch(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("vnas: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vnas: fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("%w: %d", ErrFeedStatus, resp.StatusCode)
	}

	var feed Feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("vnas: decoding feed: %w", err)
	}

	c.logger.Debug("controller feed fetched",
		"controllers", len(feed.Controllers),
		"updated_at", feed.UpdatedAt,
	)
	return &feed, nil
}
