package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrQueryRejected wraps a failed validation verdict; callers can recover
// the full ValidationResult from the returned value instead.
var ErrQueryRejected = errors.New("query rejected by safety validation")

// QueryService gates execution behind validation: a statement only reaches
// the executor after the safety engine has approved it for the requesting
// role, and result rows come back with the role's column masks applied.
type QueryService struct {
	validation *ValidationService
	executor   port.QueryExecutor
	auditor    port.QueryAuditor
	logger     *slog.Logger
	tracer     trace.Tracer
	inst       port.Instrumentation
}

func NewQueryService(
	validation *ValidationService,
	executor port.QueryExecutor,
	auditor port.QueryAuditor,
	logger *slog.Logger,
	tracer trace.Tracer,
	inst port.Instrumentation,
) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validation: validation,
		executor:   executor,
		auditor:    auditor,
		logger:     logger,
		tracer:     tracer,
		inst:       inst,
	}
}

// Execute validates sql for the named role, then runs it if and only if the
// verdict is valid. The verdict is always returned so callers can surface
// the safety explanation either way.
func (s *QueryService) Execute(ctx context.Context, sql, roleName string) ([]map[string]any, domain.ValidationResult, error) {
	return s.run(ctx, "", sql, roleName)
}

// ExecuteExplained validates the bare statement, then executes it with the
// given EXPLAIN prefix prepended. Validation never sees the prefix: the
// verdict applies to what the query would do, not to the plan request.
func (s *QueryService) ExecuteExplained(ctx context.Context, prefix, sql, roleName string) ([]map[string]any, domain.ValidationResult, error) {
	return s.run(ctx, prefix, sql, roleName)
}

func (s *QueryService) run(ctx context.Context, prefix, sql, roleName string) ([]map[string]any, domain.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	// The role comes back with the verdict so masking and auditing use the
	// exact snapshot the validation ran under, even across a policy reload.
	result, role, err := s.validation.ValidateAs(ctx, sql, roleName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, result, err
	}
	if !result.Valid {
		span.SetStatus(codes.Error, result.Explanation)
		return nil, result, fmt.Errorf("%w: %s", ErrQueryRejected, result.Explanation)
	}

	execSQL := sql
	if prefix != "" {
		execSQL = prefix + strings.TrimRight(strings.TrimSpace(sql), ";")
	}

	start := time.Now()
	rows, err := s.executor.Execute(ctx, execSQL)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         toolNameFromCtx(ctx),
		Role:         role.Name,
		SQL:          sql,
		Valid:        true,
		RowsReturned: len(rows),
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return rows, result, err
	}

	span.SetAttributes(attribute.Int("db.response.rows", len(rows)))
	domain.MaskRows(rows, role.Masks, domain.ExtractAliasMap(sql))

	return rows, result, nil
}
