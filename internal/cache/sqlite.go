package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Schema is the SQLite layout of the response cache.
const Schema = `
CREATE TABLE IF NOT EXISTS catalog_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data BLOB NOT NULL,
	cached_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalog_cache_expires_at ON catalog_cache(expires_at);
`

// CacheDB is a Store backed by a SQLite file.
type CacheDB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
	now  func() time.Time
}

var (
	_ Store   = (*CacheDB)(nil)
	_ Clearer = (*CacheDB)(nil)
)

// NewCacheDB opens (or creates) the cache database at dbPath and makes sure
// the cache table exists.
func NewCacheDB(dbPath string) (*CacheDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(Schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}

	return &CacheDB{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}, nil
}

// Path returns the database file path.
func (c *CacheDB) Path() string {
	return c.path
}

// Close closes the database connection
func (c *CacheDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get implements Store.
func (c *CacheDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var data []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM catalog_cache WHERE cache_key = ?`, key,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query cache: %w", err)
	}

	if c.now().UnixNano() >= expiresAt {
		slog.Debug("Cache expired", "key", key)
		return nil, false, nil
	}

	return data, true, nil
}

// Set implements Store.
func (c *CacheDB) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO catalog_cache (cache_key, data, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, key, data, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Exists reports whether an unexpired entry exists for key.
func (c *CacheDB) Exists(ctx context.Context, key string) bool {
	_, ok, err := c.Get(ctx, key)
	return err == nil && ok
}

// ClearExpired removes entries whose TTL has elapsed.
func (c *CacheDB) ClearExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.ExecContext(ctx,
		`DELETE FROM catalog_cache WHERE expires_at <= ?`, c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cache: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("Cleared expired cache entries", "count", rows)
	}
	return rows, nil
}

// ClearAll removes every cache entry.
func (c *CacheDB) ClearAll(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.ExecContext(ctx, `DELETE FROM catalog_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	rows, _ := result.RowsAffected()
	slog.Info("Cache cleared", "rows_deleted", rows)
	return rows, nil
}
