package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "github.com/lepinkainen/bookshelf/internal/errors"
)

// acquire takes one slot from the shared window counter. A denial comes back
// as a RateLimitError so producers never cache it.
func (c *Client) acquire(ctx context.Context) error {
	ok, err := c.limiter.TryAcquire(ctx, RateLimitKey, c.maxPerWin, c.window)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !ok {
		slog.Warn("Catalog rate limit reached", "key", RateLimitKey, "max", c.maxPerWin, "window", c.window)
		return errs.NewRateLimitError("openlibrary rate limit exceeded")
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.NewUpstreamError(serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errs.NewRateLimitErrorWithRetry("openlibrary returned 429", parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.NewUpstreamStatusError(serviceName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errs.NewUpstreamError(serviceName, fmt.Errorf("decode %s: %w", endpoint, err))
	}
	return nil
}

// parseRetryAfter understands the delta-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
