package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"retailcli/internal/infrastructure"
)

// TracerName identifies spans created by refresh runs.
const TracerName = "retailcli/operations"

// RunTracer wraps refresh runs and steps in spans and records their metrics.
type RunTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewRunTracer creates a tracer. metrics may be nil.
func NewRunTracer(metrics *infrastructure.PipelineMetrics) *RunTracer {
	return &RunTracer{tracer: otel.Tracer(TracerName), metrics: metrics}
}

// TraceRun starts the span for a whole refresh.
func (t *RunTracer) TraceRun(ctx context.Context, runID, source, outputDir string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation.refresh",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.source", source),
			attribute.String("run.output_dir", outputDir),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TraceStep starts the span for one step.
func (t *RunTracer) TraceStep(ctx context.Context, runID string, step Step) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation.step."+step.ID(),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", step.ID()),
			attribute.String("step.name", step.Name()),
		),
	)
}

// EndStep closes a step span and records its duration.
func (t *RunTracer) EndStep(ctx context.Context, span trace.Span, step Step, duration time.Duration, err error) {
	span.SetAttributes(attribute.Int64("step.duration_ms", duration.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "step completed")
	}
	span.End()
	t.metrics.RecordStep(ctx, step.ID(), duration, err == nil)
}

// EndRun closes the refresh span and records the run and export outcome.
func (t *RunTracer) EndRun(ctx context.Context, span trace.Span, duration time.Duration, err error) {
	if err != nil {
		infrastructure.RecordError(ctx, err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "refresh completed")
	}
	span.End()
	t.metrics.RecordRun(ctx, "refresh", duration, err)
	t.metrics.RecordExport(ctx, err == nil)
}
