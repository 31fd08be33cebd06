// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "ponder.search"

// Tracer provides OpenTelemetry tracing for search runs.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a new tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil for the default).
//   - enabled: Whether spans are emitted. When false every Trace method
//     returns a noop span.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartRun starts a span for the entire search run.
//
// Inputs:
//   - ctx: Parent context.
//   - runID: Run identifier.
//   - config: Run configuration.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (noop if tracing disabled).
func (t *Tracer) StartRun(ctx context.Context, runID string, config Config) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "search.run",
		trace.WithAttributes(
			attribute.String("search.run_id", runID),
			attribute.String("search.strategy", string(config.Strategy)),
			attribute.Int("search.max_depth", config.MaxDepth),
			attribute.Int("search.max_nodes", config.MaxNodes),
			attribute.Int("search.branching_factor", config.BranchingFactor),
			attribute.Int("search.concurrency_limit", config.ConcurrencyLimit),
			attribute.String("search.timeout", config.Timeout.String()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.InfoContext(ctx, "search run started",
		slog.String("run_id", runID),
		slog.String("strategy", string(config.Strategy)),
		slog.Int("max_depth", config.MaxDepth),
		slog.Int("max_nodes", config.MaxNodes),
	)

	return ctx, span
}

// EndRun completes the run span.
//
// Inputs:
//   - span: The span to end.
//   - result: The run result (can be nil on setup failure).
//   - budget: Budget tracker with usage.
//   - err: Error if the run failed.
func (t *Tracer) EndRun(span trace.Span, result *Result, budget *Budget, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Int64("search.result.nodes_created", budget.NodesCreated()),
		attribute.Int64("search.result.generator_calls", budget.GeneratorCalls()),
		attribute.String("search.result.elapsed", budget.Elapsed().String()),
	)

	if result != nil {
		span.SetAttributes(
			attribute.String("search.result.reason", string(result.Reason)),
			attribute.Bool("search.result.incomplete", result.Incomplete),
		)
	}

	span.End()

	t.logger.Info("search run completed",
		slog.Int64("nodes_created", budget.NodesCreated()),
		slog.Int64("generator_calls", budget.GeneratorCalls()),
		slog.Duration("elapsed", budget.Elapsed()),
	)
}

// TraceRound traces one expansion round.
//
// Inputs:
//   - ctx: Parent context.
//   - round: Round number, starting at 0.
//   - batchSize: Nodes dispatched this round.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span.
func (t *Tracer) TraceRound(ctx context.Context, round, batchSize int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "search.round",
		trace.WithAttributes(
			attribute.Int("search.round", round),
			attribute.Int("search.batch_size", batchSize),
		),
	)
}

// TraceExpand traces one generator dispatch.
//
// Inputs:
//   - ctx: Parent context.
//   - parent: The node being expanded.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span.
func (t *Tracer) TraceExpand(ctx context.Context, parent *Node) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "search.expand",
		trace.WithAttributes(
			attribute.Int64("search.parent_id", parent.ID),
			attribute.Int("search.parent_depth", parent.Depth),
			attribute.Int("search.parent_attempts", parent.ExpansionAttempts()),
		),
	)
}

// EndExpand completes the expansion span.
//
// Inputs:
//   - span: The span to end.
//   - created: Children created from this dispatch.
//   - discarded: Candidates rejected (malformed or cycle).
//   - err: Error if the generator call failed.
func (t *Tracer) EndExpand(span trace.Span, created, discarded int, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Int("search.expand.created", created),
		attribute.Int("search.expand.discarded", discarded),
	)

	span.End()

	t.logger.Debug("expansion completed",
		slog.Int("created", created),
		slog.Int("discarded", discarded),
	)
}

// TracePrune records a pruning demotion event.
//
// Inputs:
//   - ctx: Context with span.
//   - node: The demoted node.
func (t *Tracer) TracePrune(ctx context.Context, node *Node) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("node_pruned",
			trace.WithAttributes(
				attribute.Int64("node_id", node.ID),
				attribute.Float64("score", node.Score()),
			),
		)
	}

	t.logger.Info("node pruned",
		slog.Int64("node_id", node.ID),
		slog.Float64("score", node.Score()),
	)
}

// TraceBacktrack records a node revival event.
//
// Inputs:
//   - ctx: Context with span.
//   - node: The revived node.
func (t *Tracer) TraceBacktrack(ctx context.Context, node *Node) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("node_revived",
			trace.WithAttributes(
				attribute.Int64("node_id", node.ID),
				attribute.Int("attempts", node.ExpansionAttempts()),
			),
		)
	}

	t.logger.Info("node revived for backtracking",
		slog.Int64("node_id", node.ID),
		slog.Int("attempts", node.ExpansionAttempts()),
	)
}

// TraceBudgetExhaustion records budget exhaustion.
//
// Inputs:
//   - ctx: Context with span.
//   - reason: The budget limit that was exceeded.
//   - budget: Budget tracker with current usage.
func (t *Tracer) TraceBudgetExhaustion(ctx context.Context, reason string, budget *Budget) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("budget_exhausted",
			trace.WithAttributes(
				attribute.String("reason", reason),
				attribute.Int64("nodes_created", budget.NodesCreated()),
				attribute.Int64("generator_calls", budget.GeneratorCalls()),
			),
		)
	}

	t.logger.Info("search budget exhausted",
		slog.String("reason", reason),
		slog.Int64("nodes_created", budget.NodesCreated()),
		slog.Int64("generator_calls", budget.GeneratorCalls()),
	)
}

// TraceSelection records the final path selection.
//
// Inputs:
//   - ctx: Context with span.
//   - path: The selected path (can be nil when no path exists).
func (t *Tracer) TraceSelection(ctx context.Context, path *Path) {
	span := trace.SpanFromContext(ctx)
	if span != nil && path != nil {
		span.AddEvent("path_selected",
			trace.WithAttributes(
				attribute.Int64("leaf_id", path.Leaf),
				attribute.Float64("path_score", path.Score),
				attribute.Int("length", path.Length),
			),
		)
	}

	if path != nil {
		t.logger.Info("path selected",
			slog.Int64("leaf_id", path.Leaf),
			slog.Float64("path_score", path.Score),
			slog.Int("length", path.Length),
		)
	}
}

// LoggerWithTrace returns a logger with trace context.
//
// Inputs:
//   - ctx: Context that may contain trace information.
//   - logger: Base logger.
//
// Outputs:
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
