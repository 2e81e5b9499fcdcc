package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/olaflaitinen/Rhenium"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	ValidationCount    metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	RejectionCount     metric.Int64Counter
	QueryDuration      metric.Float64Histogram
	QueryErrors        metric.Int64Counter
	ToolDuration       metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	validationCount, _ := meter.Int64Counter("rhenium.validation.count",
		metric.WithDescription("Total number of SQL safety validations performed"),
	)
	validationDuration, _ := meter.Float64Histogram("rhenium.validation.duration",
		metric.WithDescription("SQL safety validation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	rejectionCount, _ := meter.Int64Counter("rhenium.validation.rejections",
		metric.WithDescription("Total number of statements rejected by the safety engine"),
	)
	queryDuration, _ := meter.Float64Histogram("rhenium.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("rhenium.query.errors",
		metric.WithDescription("Total number of failed SQL queries"),
	)
	toolDuration, _ := meter.Float64Histogram("rhenium.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		ValidationCount:    validationCount,
		ValidationDuration: validationDuration,
		RejectionCount:     rejectionCount,
		QueryDuration:      queryDuration,
		QueryErrors:        queryErrors,
		ToolDuration:       toolDuration,
	}
}

func (i *Instruments) RecordValidationDuration(ctx context.Context, ms float64) {
	i.ValidationDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementValidationCount(ctx context.Context) {
	i.ValidationCount.Add(ctx, 1)
}

func (i *Instruments) IncrementRejectionCount(ctx context.Context, errorKind string) {
	i.RejectionCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("rhenium.error.kind", errorKind)))
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
