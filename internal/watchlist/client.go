package watchlist

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/skywatch/internal/fetch"
	"github.com/rewired-gh/skywatch/internal/logger"
)

// Client downloads the watchlist table and builds an Index from it.
type Client struct {
	url        string
	schema     Schema
	categories []string
	http       *fetch.Client
}

// NewClient creates a new watchlist client.
func NewClient(url string, schema Schema, categories []string, httpClient *fetch.Client) *Client {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &Client{
		url:        url,
		schema:     schema,
		categories: categories,
		http:       httpClient,
	}
}

// Fetch downloads and parses the watchlist. Any failure is fatal to the cycle.
func (c *Client) Fetch(ctx context.Context) (*Index, error) {
	logger.Debug("Downloading watchlist from %s", c.url)
	body, err := c.http.Get(ctx, c.url, nil, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to download watchlist: %w", err)
	}
	logger.Debug("Downloaded watchlist (%s)", humanize.Bytes(uint64(len(body))))

	idx, err := Parse(bytes.NewReader(body), c.schema, c.categories)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}
	logger.Info("Watchlist loaded: %d aircraft in %d categories", idx.Len(), len(c.categories))
	return idx, nil
}
