package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/persistence/sqlstore"
	"github.com/example/daybook/internal/persistence/storetest"
)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "daybook.db")
	store, err := sqlstore.Open(context.Background(), sqlstore.Options{Dialect: sqlstore.DialectSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SQLite(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) persistence.Store {
		return openSQLite(t)
	})
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "daybook.db")

	first, err := sqlstore.Open(ctx, sqlstore.Options{Dialect: sqlstore.DialectSQLite, DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, first.CreateShortLink(ctx, persistence.ShortLink{Code: "abcdEFGH", OriginalURL: "https://example.com"}))
	require.NoError(t, first.Close())

	second, err := sqlstore.Open(ctx, sqlstore.Options{Dialect: sqlstore.DialectSQLite, DSN: dsn})
	require.NoError(t, err)
	defer second.Close()

	link, err := second.GetShortLink(ctx, "abcdEFGH")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", link.OriginalURL)
	require.NoError(t, second.Ping(ctx))
}

func TestOpen_RejectsUnknownDialect(t *testing.T) {
	t.Parallel()

	_, err := sqlstore.Open(context.Background(), sqlstore.Options{Dialect: "oracle"})
	assert.Error(t, err)
}
