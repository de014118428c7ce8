package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "code2api"

// StartRunSpan starts a span covering one workflow run.
func StartRunSpan(ctx context.Context, runID, repo, branch string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("repo", repo),
			attribute.String("branch", branch),
		),
	)
}

// StartPhaseSpan starts a span for one pipeline phase within a run.
func StartPhaseSpan(ctx context.Context, runID, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workflow.phase",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("phase", phase),
		),
	)
}
