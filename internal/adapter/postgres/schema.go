package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olaflaitinen/Rhenium/internal/core/domain"
)

// SchemaFetcher builds SchemaView snapshots from the database catalogs and
// caches them for a refresh interval, so the validation path never waits on
// catalog queries for every statement.
type SchemaFetcher struct {
	pool            *pgxpool.Pool
	schemas         []string // empty means all non-system schemas
	refreshInterval time.Duration

	mu        sync.Mutex
	view      domain.SchemaView
	fetchedAt time.Time
}

func NewSchemaFetcher(pool *pgxpool.Pool, schemas []string, refreshInterval time.Duration) *SchemaFetcher {
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	return &SchemaFetcher{
		pool:            pool,
		schemas:         schemas,
		refreshInterval: refreshInterval,
	}
}

// Snapshot returns the cached view, refetching when it is stale. A fetch
// failure with a previously cached view falls back to the stale copy —
// validation should keep working through a transient catalog hiccup.
func (f *SchemaFetcher) Snapshot(ctx context.Context) (domain.SchemaView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.fetchedAt.IsZero() && time.Since(f.fetchedAt) < f.refreshInterval {
		return f.view, nil
	}

	view, err := f.fetch(ctx)
	if err != nil {
		if !f.fetchedAt.IsZero() {
			return f.view, nil
		}
		return domain.SchemaView{}, err
	}

	f.view = view
	f.fetchedAt = time.Now()
	return view, nil
}

func (f *SchemaFetcher) fetch(ctx context.Context) (domain.SchemaView, error) {
	filter, args := schemaFilter(f.schemas, "c.table_schema", 1)
	query := fmt.Sprintf(queryListColumns, filter)

	rows, err := f.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.SchemaView{}, fmt.Errorf("listing columns: %w", err)
	}
	defer rows.Close()

	columnsByTable := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return domain.SchemaView{}, fmt.Errorf("scanning column row: %w", err)
		}
		columnsByTable[table] = append(columnsByTable[table], column)
	}
	if err := rows.Err(); err != nil {
		return domain.SchemaView{}, fmt.Errorf("iterating column rows: %w", err)
	}

	return domain.NewSchemaView(columnsByTable), nil
}
