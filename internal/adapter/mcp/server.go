package mcp

import (
	"log/slog"

	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"github.com/olaflaitinen/Rhenium/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks. The query
// service and schema source may be nil when no database is configured; the
// corresponding tools are simply not registered.
func NewServer(version string, validation *service.ValidationService, query *service.QueryService, schema port.SchemaSource, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, validation, query, schema)

	return s
}
