// Package covers downloads catalog cover images and keeps them on disk,
// keyed by the remote cover id.
package covers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/fileutil"
	"github.com/lepinkainen/bookshelf/internal/normalize"
	"github.com/lepinkainen/bookshelf/internal/ratelimit"
)

const (
	defaultMaxWidth      = 600
	defaultRatePerSecond = 2
	defaultTimeout       = 10 * time.Second
	jpegQuality          = 85

	// PublicPrefix is the path under which stored covers are served.
	PublicPrefix = "covers/"
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetcher stores cover images as {dir}/{coverID}.jpg.
type Fetcher struct {
	dir        string
	baseURL    string
	httpClient HTTPDoer
	pacer      *ratelimit.Pacer
	maxWidth   int
	timeout    time.Duration
}

// Option is a functional option for configuring the Fetcher.
type Option func(*Fetcher)

// NewFetcher creates a fetcher writing into dir.
func NewFetcher(dir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		dir:        dir,
		baseURL:    normalize.DefaultCoversBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		pacer:      ratelimit.NewPacer("covers", defaultRatePerSecond, 1),
		maxWidth:   defaultMaxWidth,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithBaseURL sets the cover CDN prefix.
func WithBaseURL(base string) Option {
	return func(f *Fetcher) {
		if base != "" {
			f.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithMaxWidth sets the width above which images are scaled down.
func WithMaxWidth(width int) Option {
	return func(f *Fetcher) {
		if width > 0 {
			f.maxWidth = width
		}
	}
}

// WithPacer sets the download pacer.
func WithPacer(p *ratelimit.Pacer) Option {
	return func(f *Fetcher) {
		if p != nil {
			f.pacer = p
		}
	}
}

// WithTimeout sets the per download deadline.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// Dir returns the storage directory.
func (f *Fetcher) Dir() string {
	return f.dir
}

// Path returns where the cover with the given id is stored.
func (f *Fetcher) Path(coverID int) string {
	return filepath.Join(f.dir, strconv.Itoa(coverID)+".jpg")
}

// Exists reports whether the cover is already stored.
func (f *Fetcher) Exists(coverID int) bool {
	return coverID > 0 && fileutil.FileExists(f.Path(coverID))
}

// RemoteURL returns the CDN URL of the medium-size cover.
func (f *Fetcher) RemoteURL(coverID int) string {
	return fmt.Sprintf("%s/%d-M.jpg", f.baseURL, coverID)
}

// FetchAndStore returns the stored path of a cover, downloading it first if
// needed. Every failure is logged and reported as false; a missing cover is
// never fatal.
func (f *Fetcher) FetchAndStore(ctx context.Context, coverID int) (string, bool) {
	if coverID <= 0 {
		return "", false
	}

	path := f.Path(coverID)
	if fileutil.FileExists(path) {
		slog.Debug("Cover already stored", "cover_id", coverID, "path", path)
		return path, true
	}

	if err := f.download(ctx, coverID, path); err != nil {
		slog.Error("Failed to fetch cover", "cover_id", coverID, "error", err)
		return "", false
	}

	slog.Info("Stored cover", "cover_id", coverID, "path", path)
	return path, true
}

func (f *Fetcher) download(ctx context.Context, coverID int, path string) error {
	if err := f.pacer.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.RemoteURL(coverID), nil)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d downloading cover", resp.StatusCode)
	}

	img, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode cover: %w", err)
	}

	if img.Bounds().Dx() > f.maxWidth {
		img = imaging.Resize(img, f.maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("encode cover: %w", err)
	}

	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0644)
}

// CoverPath returns what a client should load for the book's cover: the
// public path of the stored copy when there is one, else the remote URL.
// It returns "" when the book has no cover at all.
func CoverPath(book *books.Book) string {
	if book == nil {
		return ""
	}
	if book.CoverStoredLocally && book.RemoteCoverID != nil && *book.RemoteCoverID > 0 {
		return PublicPrefix + strconv.Itoa(*book.RemoteCoverID) + ".jpg"
	}
	if book.CoverURL != nil {
		return *book.CoverURL
	}
	return ""
}
