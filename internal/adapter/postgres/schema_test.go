package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/olaflaitinen/Rhenium/internal/adapter/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFetcher_Snapshot(t *testing.T) {
	pool := setupTestDB(t)
	fetcher := postgres.NewSchemaFetcher(pool, nil, time.Minute)

	view, err := fetcher.Snapshot(context.Background())
	require.NoError(t, err)

	assert.True(t, view.HasTable("customers"))
	assert.True(t, view.HasTable("sales"))
	assert.False(t, view.HasTable("pg_class"), "system catalogs are out of scope")

	assert.ElementsMatch(t, []string{"id", "name", "email"}, view.ColumnsByTable["customers"])
}

func TestSchemaFetcher_CachesBetweenCalls(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	fetcher := postgres.NewSchemaFetcher(pool, nil, time.Hour)

	view, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, view.HasTable("customers"))

	// A table created after the first snapshot stays invisible until the
	// refresh interval elapses.
	_, err = pool.Exec(ctx, "CREATE TABLE late_arrival (id INT)")
	require.NoError(t, err)

	cached, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, cached.HasTable("late_arrival"))
}

func TestSchemaFetcher_RefreshPicksUpChanges(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	fetcher := postgres.NewSchemaFetcher(pool, nil, time.Nanosecond)

	_, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "CREATE TABLE fresh_table (id INT)")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	view, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, view.HasTable("fresh_table"))
}

func TestSchemaFetcher_SchemaScoped(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, "CREATE SCHEMA reporting; CREATE TABLE reporting.dashboards (id INT)")
	require.NoError(t, err)

	fetcher := postgres.NewSchemaFetcher(pool, []string{"reporting"}, time.Minute)
	view, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)

	assert.True(t, view.HasTable("dashboards"))
	assert.False(t, view.HasTable("customers"), "public schema excluded when scoped")
}

func TestSchemaFetcher_StaleFallback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	fetcher := postgres.NewSchemaFetcher(pool, nil, time.Nanosecond)

	view, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, view.HasTable("customers"))

	// With the pool closed the refetch fails, but the stale view survives.
	pool.Close()
	time.Sleep(time.Millisecond)

	stale, err := fetcher.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, stale.HasTable("customers"))
}
