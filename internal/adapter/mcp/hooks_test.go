package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestVerdictFromResult(t *testing.T) {
	rejection := domain.ValidationResult{
		Valid:       false,
		KindName:    "SELECT",
		ErrorKind:   domain.ErrForbiddenKeyword,
		Explanation: "Contains forbidden keyword 'DROP'",
	}
	data, err := json.Marshal(rejection)
	require.NoError(t, err)

	verdict := verdictFromResult(mcp.NewToolResultText(string(data)))
	require.NotNil(t, verdict)
	assert.False(t, verdict.Valid)
	assert.Equal(t, domain.ErrForbiddenKeyword, verdict.ErrorKind)
	assert.Equal(t, "SELECT", verdict.KindName)

	// Row data and plain error strings are not verdicts.
	assert.Nil(t, verdictFromResult(mcp.NewToolResultText(`[{"id": 1}]`)))
	assert.Nil(t, verdictFromResult(mcp.NewToolResultText("connection refused")))
	assert.Nil(t, verdictFromResult(&mcp.CallToolResult{}))
}

func TestToolHooksSpanCarriesVerdict(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	o := &toolObserver{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: tp.Tracer("test"),
		inst:   port.NoopInstrumentation{},
	}

	req := &mcp.CallToolRequest{}
	req.Params.Name = "validate_query"

	rejection := domain.ValidationResult{
		Valid:     false,
		KindName:  "DROP",
		ErrorKind: domain.ErrKindNotAllowed,
	}
	data, err := json.Marshal(rejection)
	require.NoError(t, err)

	ctx := context.Background()
	o.begin(ctx, int64(1), req)
	o.finish(ctx, int64(1), req, mcp.NewToolResultText(string(data)))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.tool.call", spans[0].Name)
	assert.Equal(t, "validate_query", spanAttr(t, spans[0], "mcp.tool"))
	assert.Equal(t, false, spanAttr(t, spans[0], "rhenium.verdict.valid"))
	assert.Equal(t, "DROP", spanAttr(t, spans[0], "rhenium.statement.kind"))
	assert.Equal(t, "statement_kind_not_allowed", spanAttr(t, spans[0], "rhenium.error.kind"))
}

func TestToolHooksFinishWithoutBegin(t *testing.T) {
	o := &toolObserver{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	req := &mcp.CallToolRequest{}
	req.Params.Name = "query"

	// No begin for this id; finish must still complete without panicking.
	o.finish(context.Background(), int64(7), req, mcp.NewToolResultText("[]"))
}

func spanAttr(t *testing.T, span tracetest.SpanStub, key string) any {
	t.Helper()
	for _, kv := range span.Attributes {
		if kv.Key == attribute.Key(key) {
			return kv.Value.AsInterface()
		}
	}
	t.Fatalf("span attribute %q not found", key)
	return nil
}
