package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// ValidationService runs the safety engine against caller-supplied SQL: it
// captures the policy and schema snapshots for the call, resolves the
// requesting role, validates, and records the verdict.
type ValidationService struct {
	validator port.QueryValidator
	policies  port.PolicyProvider
	schema    port.SchemaSource
	auditor   port.QueryAuditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewValidationService(
	validator port.QueryValidator,
	policies port.PolicyProvider,
	schema port.SchemaSource,
	auditor port.QueryAuditor,
	logger *slog.Logger,
	tracer trace.Tracer,
	inst port.Instrumentation,
) *ValidationService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &ValidationService{
		validator: validator,
		policies:  policies,
		schema:    schema,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
	}
}

// Role resolves a role by name, falling back to the configured default when
// name is empty.
func (s *ValidationService) Role(name string) (domain.Role, error) {
	if name == "" {
		name = s.policies.DefaultRole()
	}
	role, ok := s.policies.Role(name)
	if !ok {
		return domain.Role{}, fmt.Errorf("unknown role %q", name)
	}
	return role, nil
}

// Validate produces the safety verdict for sql under the named role. The
// policy snapshot is captured once at call start; a concurrent reload never
// affects a validation already in flight.
func (s *ValidationService) Validate(ctx context.Context, sql, roleName string) (domain.ValidationResult, error) {
	result, _, err := s.ValidateAs(ctx, sql, roleName)
	return result, err
}

// ValidateAs additionally returns the role the verdict was computed under,
// so callers acting on the verdict (masking, auditing) use the same role
// snapshot and never re-resolve across a policy reload.
func (s *ValidationService) ValidateAs(ctx context.Context, sql, roleName string) (domain.ValidationResult, domain.Role, error) {
	ctx, span := s.tracer.Start(ctx, "ValidationService.Validate",
		trace.WithAttributes(
			attribute.String("db.operation.name", "validate"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	role, err := s.Role(roleName)
	if err != nil {
		return domain.ValidationResult{}, domain.Role{}, err
	}
	cfg := s.policies.Config()

	schema, err := s.schema.Snapshot(ctx)
	if err != nil {
		// Missing schema degrades table existence checks to warnings-free
		// passes; it must not block validation.
		s.logger.WarnContext(ctx, "schema snapshot unavailable",
			slog.String("error.message", err.Error()),
		)
		schema = domain.SchemaView{}
	}

	start := time.Now()
	result := s.validator.Validate(sql, role, cfg, schema)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordValidationDuration(ctx, float64(durationMS))
	s.inst.IncrementValidationCount(ctx)

	span.SetAttributes(
		attribute.Bool("rhenium.verdict.valid", result.Valid),
		attribute.String("rhenium.statement.kind", result.KindName),
	)

	if !result.Valid {
		s.inst.IncrementRejectionCount(ctx, string(result.ErrorKind))
		s.logger.InfoContext(ctx, "query rejected",
			slog.String("role", role.Name),
			slog.String("statement_kind", result.KindName),
			slog.String("error_kind", string(result.ErrorKind)),
			slog.String("offending_term", result.OffendingTerm),
		)
	}

	s.auditor.Record(ctx, port.AuditEntry{
		Tool:          toolNameFromCtx(ctx),
		Role:          role.Name,
		SQL:           sql,
		Valid:         result.Valid,
		ErrorKind:     result.ErrorKind,
		OffendingTerm: result.OffendingTerm,
		DurationMS:    durationMS,
	})

	return result, role, nil
}
