package port

import (
	"context"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
)

// AuditEntry is a single auditable validation (and optional execution)
// event. Verdicts are recorded whether or not the statement was allowed.
type AuditEntry struct {
	Tool          string
	Role          string
	SQL           string
	Valid         bool
	ErrorKind     domain.ErrorKind
	OffendingTerm string
	RowsReturned  int
	DurationMS    int64
	Err           error
}

// QueryAuditor records validation audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
