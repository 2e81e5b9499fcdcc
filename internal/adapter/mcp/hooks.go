package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// toolObserver correlates the before/after/error hook callbacks for one
// tool call and turns them into a log line, a span and a duration metric.
// Verdict details are pulled from the tool result so rejections show up on
// the span with their error kind.
type toolObserver struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation
	inFlight sync.Map // request id -> *toolCall
}

type toolCall struct {
	tool  string
	start time.Time
	span  trace.Span
}

// ToolCallHooks builds the MCP server hooks. tracer and inst may be nil
// when telemetry is disabled; logging always happens.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	o := &toolObserver{logger: logger, tracer: tracer, inst: inst}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(o.begin)
	hooks.AddAfterCallTool(o.finish)
	hooks.AddOnError(o.fail)
	return hooks
}

func (o *toolObserver) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := &toolCall{tool: req.Params.Name, start: time.Now()}

	if o.tracer != nil {
		_, span := o.tracer.Start(ctx, "mcp.tool.call",
			trace.WithAttributes(attribute.String("mcp.tool", req.Params.Name)),
		)
		call.span = span
	}

	o.inFlight.Store(id, call)
}

func (o *toolObserver) finish(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
	call := o.take(id, req.Params.Name)
	elapsed := time.Since(call.start)

	toolErr := false
	var verdict *domain.ValidationResult
	if r, ok := result.(*mcp.CallToolResult); ok {
		toolErr = r.IsError
		verdict = verdictFromResult(r)
	}

	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", call.tool),
		slog.Duration("duration", elapsed),
		slog.Bool("error", toolErr),
	}
	level := slog.LevelInfo
	if toolErr {
		level = slog.LevelError
	}
	if verdict != nil {
		attrs = append(attrs, slog.Bool("verdict.valid", verdict.Valid))
		if verdict.ErrorKind != "" {
			attrs = append(attrs, slog.String("verdict.error_kind", string(verdict.ErrorKind)))
		}
	}
	o.logger.LogAttrs(ctx, level, "tool call", attrs...)

	if o.inst != nil {
		o.inst.RecordToolDuration(ctx, float64(elapsed.Milliseconds()))
	}

	if call.span != nil {
		if verdict != nil {
			call.span.SetAttributes(
				attribute.Bool("rhenium.verdict.valid", verdict.Valid),
				attribute.String("rhenium.statement.kind", verdict.KindName),
			)
			if verdict.ErrorKind != "" {
				call.span.SetAttributes(
					attribute.String("rhenium.error.kind", string(verdict.ErrorKind)),
				)
			}
		}
		if toolErr {
			call.span.SetStatus(codes.Error, "tool returned error")
			call.span.RecordError(fmt.Errorf("tool %s returned error", call.tool))
		}
		call.span.End()
	}
}

func (o *toolObserver) fail(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
	req, ok := message.(*mcp.CallToolRequest)
	if !ok {
		return
	}
	call := o.take(id, req.Params.Name)

	o.logger.LogAttrs(ctx, slog.LevelError, "tool call",
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", call.tool),
		slog.Duration("duration", time.Since(call.start)),
		slog.Bool("error", true),
		slog.String("error.message", err.Error()),
	)

	if call.span != nil {
		call.span.RecordError(err)
		call.span.SetStatus(codes.Error, err.Error())
		call.span.End()
	}
}

// take removes and returns the in-flight record; a synthetic one covers the
// case where the before hook never ran for this id.
func (o *toolObserver) take(id any, tool string) *toolCall {
	if v, ok := o.inFlight.LoadAndDelete(id); ok {
		return v.(*toolCall)
	}
	return &toolCall{tool: tool, start: time.Now()}
}

// verdictFromResult recovers a validation verdict from a tool result when
// the payload is one: validate_query always returns a verdict, and query /
// explain_query return the verdict as the error payload on rejection. Row
// data and plain error strings do not decode and yield nil.
func verdictFromResult(r *mcp.CallToolResult) *domain.ValidationResult {
	if len(r.Content) == 0 {
		return nil
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		return nil
	}
	var verdict domain.ValidationResult
	if err := json.Unmarshal([]byte(tc.Text), &verdict); err != nil {
		return nil
	}
	if verdict.KindName == "" {
		return nil
	}
	return &verdict
}
