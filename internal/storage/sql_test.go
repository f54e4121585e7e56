package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

func newSQLiteStorage(t *testing.T) *SQLStorage {
	t.Helper()

	dsn := "sqlite://" + filepath.Join(t.TempDir(), "creds.db")
	store, err := Connect(context.Background(), "", dsn, WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sqlStore, ok := store.(*SQLStorage)
	require.True(t, ok, "expected *SQLStorage, got %T", store)
	return sqlStore
}

func TestSQLStorageRoundTrip(t *testing.T) {
	store := newSQLiteStorage(t)
	ctx := context.Background()

	rec := newRecord("user", baseTime.Add(123*time.Microsecond))
	require.NoError(t, store.Add(ctx, rec))

	got, err := store.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, rec.Username, got.Username)
	assert.Equal(t, rec.PasswordHash, got.PasswordHash)
	assert.Equal(t, rec.Description, got.Description)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSQLStorageDuplicateAdd(t *testing.T) {
	store := newSQLiteStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, newRecord("user", baseTime)))
	assert.ErrorIs(t, store.Add(ctx, newRecord("user", baseTime)), credentials.ErrAlreadyExists)
}

func TestSQLStorageMissingRecord(t *testing.T) {
	store := newSQLiteStorage(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, newRecord("missing", baseTime)), credentials.ErrNotFound)

	removed, err := store.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSQLStorageUpdateAndRemove(t *testing.T) {
	store := newSQLiteStorage(t)
	ctx := context.Background()

	rec := newRecord("user", baseTime)
	require.NoError(t, store.Add(ctx, rec))

	rec.PasswordHash = "new-hash"
	rec.Description = "rotated"
	rec.UpdatedAt = baseTime.Add(time.Minute)
	require.NoError(t, store.Update(ctx, rec))

	got, err := store.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, "rotated", got.Description)
	assert.True(t, got.CreatedAt.Equal(baseTime))
	assert.True(t, got.UpdatedAt.Equal(baseTime.Add(time.Minute)))

	removed, err := store.Remove(ctx, "user")
	require.NoError(t, err)
	assert.True(t, removed)

	all, err := store.List(ctx, credentials.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLStorageListWindow(t *testing.T) {
	store := newSQLiteStorage(t)
	ctx := context.Background()

	for i, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, store.Add(ctx, newRecord(name, baseTime.Add(time.Duration(i)*time.Hour))))
	}

	all, err := store.List(ctx, credentials.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, usernames(all))

	start := baseTime.Add(30 * time.Minute)
	end := baseTime.Add(time.Hour)
	window, err := store.List(ctx, credentials.ListOptions{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, usernames(window))
}

func TestSQLStorageMigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	pg := &SQLStorage{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStorage{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func usernames(records []credentials.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Username)
	}
	return out
}

func TestCreateTableStatementUsesBinaryCollationOnMySQL(t *testing.T) {
	assert.Contains(t, createTableStatement(DriverMySQL), "username VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL PRIMARY KEY")

	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		stmt := createTableStatement(driver)
		assert.NotContains(t, stmt, "COLLATE", driver)
		assert.Contains(t, stmt, "username VARCHAR(255) NOT NULL PRIMARY KEY")
	}
}

func TestSQLStorageUsernamesAreCaseSensitive(t *testing.T) {
	store := newSQLiteStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, newRecord("alice", baseTime)))
	require.NoError(t, store.Add(ctx, newRecord("ALICE", baseTime)))

	_, err := store.Get(ctx, "Alice")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}
