package books

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/bookshelf/internal/datastore"
	"github.com/lepinkainen/bookshelf/internal/testutil"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupRepo(t *testing.T) (*Repository, *testClock) {
	t.Helper()

	env := testutil.NewTestEnv(t)
	db, err := datastore.Open(datastore.Options{
		Driver: datastore.DriverSQLite,
		DSN:    filepath.Join(env.RootDir(), "books.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = datastore.Close(db) })
	require.NoError(t, Migrate(db))

	clock := newTestClock()
	return NewRepository(db, WithClock(clock.Now)), clock
}

func remoteFields(title, author string) Fields {
	return Fields{Title: Ptr(title), Author: Ptr(author)}
}

func countBooks(t *testing.T, r *Repository) int64 {
	t.Helper()
	var n int64
	require.NoError(t, r.db.WithContext(context.Background()).Model(&Book{}).Count(&n).Error)
	return n
}
