package datastore

import (
	"path/filepath"
	"testing"

	"github.com/lepinkainen/bookshelf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain path",
			input:    "./books.db",
			expected: "file:./books.db?" + sqliteParams,
		},
		{
			name:     "file uri",
			input:    "file:books.db",
			expected: "file:books.db?" + sqliteParams,
		},
		{
			name:     "caller params kept",
			input:    "file::memory:?cache=shared",
			expected: "file::memory:?cache=shared",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SQLiteDSN(tc.input))
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	env := testutil.NewTestEnv(t)

	db, err := Open(Options{Driver: DriverSQLite, DSN: filepath.Join(env.RootDir(), "books.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Options{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = Open(Options{Driver: DriverSQLite})
	require.Error(t, err)
}
