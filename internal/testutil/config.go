package testutil

import (
	"testing"

	"github.com/lepinkainen/bookshelf/internal/config"
	"github.com/spf13/viper"
)

// ResetConfig resets viper and registers the bookshelf defaults.
// Viper is reset again when the test completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	viper.Reset()
	config.SetDefaults(viper.GetViper())

	t.Cleanup(viper.Reset)
}

// SetViperValue sets a viper configuration value and restores the old one on cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
	})
}

// SandboxConfig points every on-disk location (book database, cache database,
// cover directory) into env and disables network backends.
func SandboxConfig(t *testing.T, env *TestEnv) config.Config {
	t.Helper()

	ResetConfig(t)
	viper.Set("database.driver", "sqlite")
	viper.Set("database.dsn", env.Path("bookshelf.db"))
	viper.Set("cache.backend", config.BackendSQLite)
	viper.Set("cache.dbfile", env.Path("cache.db"))
	viper.Set("ratelimit.backend", config.BackendMemory)
	viper.Set("covers.dir", env.Path("covers"))

	return config.Load()
}
