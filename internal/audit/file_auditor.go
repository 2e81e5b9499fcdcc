package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record. Every
// verdict is logged, allowed or not — the reproducibility story depends on
// rejected statements being just as visible as executed ones.
type fileEntry struct {
	ID            string  `json:"id"`
	Timestamp     string  `json:"ts"`
	Tool          string  `json:"tool"`
	Role          string  `json:"role"`
	SQL           string  `json:"sql"`
	Valid         bool    `json:"valid"`
	ErrorKind     string  `json:"error_kind,omitempty"`
	OffendingTerm string  `json:"offending_term,omitempty"`
	RowsReturned  int     `json:"rows_returned"`
	DurationMS    int64   `json:"duration_ms"`
	Error         *string `json:"error"`
}

// FileAuditor writes audit entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Tool:          entry.Tool,
		Role:          entry.Role,
		SQL:           entry.SQL,
		Valid:         entry.Valid,
		ErrorKind:     string(entry.ErrorKind),
		OffendingTerm: entry.OffendingTerm,
		RowsReturned:  entry.RowsReturned,
		DurationMS:    entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the request for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }
