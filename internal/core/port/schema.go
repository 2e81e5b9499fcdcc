package port

import (
	"context"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
)

// SchemaSource supplies the schema snapshot a validation runs against. The
// engine itself never performs I/O; callers fetch the view up front and
// pass it in as a value.
type SchemaSource interface {
	Snapshot(ctx context.Context) (domain.SchemaView, error)
}

// QueryExecutor runs an already-validated SQL statement and returns rows as
// column-name keyed maps.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}
