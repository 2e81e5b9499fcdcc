package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileAuditor_CreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	fa, err := NewFileAuditor(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, fa.Close()) }()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewFileAuditor_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := NewFileAuditor("/nonexistent/dir/audit.ndjson")
	require.Error(t, err)
}

func TestFileAuditor_RecordsVerdict(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	fa, err := NewFileAuditor(path)
	require.NoError(t, err)

	fa.Record(context.Background(), port.AuditEntry{
		Tool:          "validate_query",
		Role:          "viewer",
		SQL:           "DROP TABLE sales",
		Valid:         false,
		ErrorKind:     domain.ErrForbiddenKeyword,
		OffendingTerm: "DROP",
		DurationMS:    3,
	})
	require.NoError(t, fa.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.NotEmpty(t, entry["id"])
	assert.NotEmpty(t, entry["ts"])
	assert.Equal(t, "validate_query", entry["tool"])
	assert.Equal(t, "viewer", entry["role"])
	assert.Equal(t, "DROP TABLE sales", entry["sql"])
	assert.Equal(t, false, entry["valid"])
	assert.Equal(t, "forbidden_keyword", entry["error_kind"])
	assert.Equal(t, "DROP", entry["offending_term"])
	assert.Nil(t, entry["error"])
}

func TestFileAuditor_RecordsExecutionError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	fa, err := NewFileAuditor(path)
	require.NoError(t, err)

	fa.Record(context.Background(), port.AuditEntry{
		Tool:         "query",
		Role:         "analyst",
		SQL:          "SELECT amount FROM sales",
		Valid:        true,
		RowsReturned: 0,
		Err:          errors.New("statement timeout"),
	})
	require.NoError(t, fa.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, true, entry["valid"])
	assert.Equal(t, "statement timeout", entry["error"])
	_, hasErrorKind := entry["error_kind"]
	assert.False(t, hasErrorKind, "empty error_kind is omitted")
}

func TestFileAuditor_OneLinePerEntry(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	fa, err := NewFileAuditor(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		fa.Record(context.Background(), port.AuditEntry{
			SQL:   fmt.Sprintf("SELECT %d", i),
			Valid: true,
		})
	}
	require.NoError(t, fa.Close())

	assert.Len(t, readLines(t, path), 5)
}

func TestFileAuditor_ConcurrentRecords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	fa, err := NewFileAuditor(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fa.Record(context.Background(), port.AuditEntry{
				SQL:   fmt.Sprintf("SELECT %d", n),
				Valid: true,
			})
		}(i)
	}
	wg.Wait()
	require.NoError(t, fa.Close())

	lines := readLines(t, path)
	assert.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]any
		assert.NoError(t, json.Unmarshal([]byte(line), &entry), "every line is standalone JSON")
	}
}

func TestFileAuditor_AppendsToExistingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")

	first, err := NewFileAuditor(path)
	require.NoError(t, err)
	first.Record(context.Background(), port.AuditEntry{SQL: "SELECT 1", Valid: true})
	require.NoError(t, first.Close())

	second, err := NewFileAuditor(path)
	require.NoError(t, err)
	second.Record(context.Background(), port.AuditEntry{SQL: "SELECT 2", Valid: true})
	require.NoError(t, second.Close())

	assert.Len(t, readLines(t, path), 2)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
