// Package openlibrary provides a cached, rate limited client for the
// OpenLibrary catalog.
package openlibrary

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/bookshelf/internal/cache"
	"github.com/lepinkainen/bookshelf/internal/ratelimit"
)

const (
	defaultBaseURL   = "https://openlibrary.org"
	defaultSearchURL = "https://openlibrary.org/search.json"
	defaultTimeout   = 10 * time.Second
	// SearchPageSize is the fixed number of records requested per search.
	SearchPageSize = 20

	// RateLimitKey is the counter shared by every catalog request.
	RateLimitKey = "ol_api_rate_limit"
	// DefaultRequestsPerMinute is the default cap for RateLimitKey.
	DefaultRequestsPerMinute = 60

	serviceName = "openlibrary"
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the catalog search, work and edition endpoints.
type Client struct {
	baseURL    string
	searchURL  string
	httpClient HTTPDoer
	timeout    time.Duration
	cache      cache.Store
	limiter    ratelimit.Acquirer
	maxPerWin  int
	window     time.Duration
}

// NewClient creates a client with an in-process rate limiter and no cache.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		searchURL:  defaultSearchURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		timeout:    defaultTimeout,
		limiter:    ratelimit.NewFixedWindow(),
		maxPerWin:  DefaultRequestsPerMinute,
		window:     time.Minute,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithBaseURL sets the base URL used for work and edition lookups.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithSearchURL sets the full URL of the search endpoint.
func WithSearchURL(u string) Option {
	return func(client *Client) {
		if u != "" {
			client.searchURL = u
		}
	}
}

// WithCache sets the response cache. Without one every call goes to the network.
func WithCache(store cache.Store) Option {
	return func(client *Client) {
		client.cache = store
	}
}

// WithRateLimiter sets the window counter shared with other processes.
func WithRateLimiter(limiter ratelimit.Acquirer) Option {
	return func(client *Client) {
		if limiter != nil {
			client.limiter = limiter
		}
	}
}

// WithLimit sets the request cap per window.
func WithLimit(max int, window time.Duration) Option {
	return func(client *Client) {
		if max >= 0 {
			client.maxPerWin = max
		}
		if window > 0 {
			client.window = window
		}
	}
}

// WithTimeout sets the per request deadline.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			client.timeout = d
		}
	}
}

// RateLimitUsage returns how many catalog requests were made in the current
// window. Counter errors are logged and reported as zero.
func (c *Client) RateLimitUsage(ctx context.Context) int {
	used, err := c.limiter.Usage(ctx, RateLimitKey)
	if err != nil {
		slog.Warn("Failed to read rate limit usage", "key", RateLimitKey, "error", err)
		return 0
	}
	return used
}

// Limit returns the configured cap and window.
func (c *Client) Limit() (int, time.Duration) {
	return c.maxPerWin, c.window
}
