package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lepinkainen/bookshelf/internal/books"
	"github.com/lepinkainen/bookshelf/internal/cache"
	"github.com/lepinkainen/bookshelf/internal/config"
	"github.com/lepinkainen/bookshelf/internal/covers"
	"github.com/lepinkainen/bookshelf/internal/datastore"
	"github.com/lepinkainen/bookshelf/internal/enrichment"
	"github.com/lepinkainen/bookshelf/internal/openlibrary"
	"github.com/lepinkainen/bookshelf/internal/ratelimit"
	"github.com/lepinkainen/bookshelf/internal/search"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// cacheBackendNone disables response caching entirely.
const cacheBackendNone = "none"

// appOptions controls how much of the pipeline newApp starts.
type appOptions struct {
	// background starts the enrichment queue so saved books are enriched
	// asynchronously. One-shot commands enrich inline instead.
	background bool
	verbose    bool
}

// app holds every wired component for one CLI invocation.
type app struct {
	db      *gorm.DB
	repo    *books.Repository
	redis   redis.UniversalClient
	store   cache.Store
	closers []func() error

	catalog *openlibrary.Client
	covers  *covers.Fetcher
	worker  *enrichment.Worker
	queue   *enrichment.Queue
	search  *search.Orchestrator
}

// openApp is a seam for tests.
var openApp = newApp

// inlineEnrichDelay spaces inline enrichment from the import's own catalog
// requests, matching the background dispatcher.
var inlineEnrichDelay = enrichment.InitialDelay

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
			a = nil
		}
	}()

	logLevel := logger.Warn
	if opts.verbose {
		logLevel = logger.Info
	}
	a.db, err = datastore.Open(datastore.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, LogLevel: logLevel})
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error { return datastore.Close(a.db) })

	if err = books.Migrate(a.db); err != nil {
		return a, err
	}
	a.repo = books.NewRepository(a.db)

	if cfg.UsesRedis() {
		if a.redis, err = connectRedis(ctx, cfg.Redis); err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.redis.Close)
	}

	if a.store, err = a.openCache(cfg.Cache); err != nil {
		return a, err
	}

	limiter, err := a.rateLimiter(cfg.RateLimit)
	if err != nil {
		return a, err
	}

	clientOpts := []openlibrary.Option{
		openlibrary.WithBaseURL(cfg.OpenLibrary.BaseURL),
		openlibrary.WithSearchURL(cfg.OpenLibrary.SearchURL),
		openlibrary.WithRateLimiter(limiter),
		openlibrary.WithLimit(cfg.RateLimit.PerMinute, cfg.RateLimit.Window),
		openlibrary.WithTimeout(cfg.OpenLibrary.Timeout),
	}
	if a.store != nil {
		clientOpts = append(clientOpts, openlibrary.WithCache(a.store))
	}
	a.catalog = openlibrary.NewClient(clientOpts...)

	a.covers = covers.NewFetcher(cfg.Covers.Dir,
		covers.WithBaseURL(cfg.OpenLibrary.CoversURL),
		covers.WithMaxWidth(cfg.Covers.MaxWidth),
		covers.WithPacer(ratelimit.NewPacer("covers", cfg.Covers.PerSecond, 1)),
		covers.WithTimeout(cfg.OpenLibrary.Timeout),
	)

	a.worker = enrichment.NewWorker(a.repo, a.catalog)

	var enricher search.Enqueuer
	if opts.background {
		a.queue = enrichment.NewQueue(a.worker, cfg.Enrichment.Workers, 0)
		enricher = enrichment.NewDispatcher(a.queue,
			enrichment.WithRetryPolicy(cfg.Enrichment.MaxAttempts, cfg.Enrichment.Backoff))
	}
	a.search = search.New(a.repo, a.catalog, a.covers, enricher)

	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err), client.Close())
	}

	slog.Debug("Connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

func (a *app) openCache(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		db, err := cache.NewCacheDB(cfg.DBFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	case config.BackendRedis:
		return cache.NewRedisStore(a.redis), nil
	case cacheBackendNone:
		slog.Debug("Response cache disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

func (a *app) rateLimiter(cfg config.RateLimitConfig) (ratelimit.Acquirer, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return ratelimit.NewFixedWindow(), nil
	case config.BackendRedis:
		return ratelimit.NewRedisWindow(a.redis), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", cfg.Backend)
	}
}

// enrichImported pauses once before enriching freshly imported books so the
// work-detail requests do not follow the import's search burst directly.
func (a *app) enrichImported(ctx context.Context, saved []*books.Book) int {
	if !slices.ContainsFunc(saved, func(b *books.Book) bool { return b != nil && b.HasWorkKey() }) {
		return 0
	}
	if err := sleep(ctx, inlineEnrichDelay()); err != nil {
		return 0
	}
	return a.enrichNow(ctx, saved)
}

// enrichNow runs enrichment inline for saved books, stopping at the first
// rate limit denial so the remaining books keep their search fields.
func (a *app) enrichNow(ctx context.Context, saved []*books.Book) int {
	enriched := 0
	for _, book := range saved {
		if book == nil || !book.HasWorkKey() {
			continue
		}
		if err := a.worker.Handle(ctx, enrichment.NewTask(book.ID, *book.WorkKey)); err != nil {
			slog.Warn("Enrichment failed", "book_id", book.ID, "error", err)
			if errors.Is(err, enrichment.ErrDetailUnavailable) && a.catalog.RateLimitUsage(ctx) >= a.catalogLimit() {
				break
			}
			continue
		}
		enriched++
	}
	return enriched
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *app) catalogLimit() int {
	limit, _ := a.catalog.Limit()
	return limit
}

// Close stops the enrichment queue and releases resources in reverse order.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	if a.queue != nil {
		a.queue.Close()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
