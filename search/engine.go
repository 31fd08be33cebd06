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
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// GoalFunc decides whether a state satisfies the caller's goal. A nil
// goal is never satisfied; the run then ends on frontier exhaustion or
// budget limits and the depth ceiling decides which leaves count as
// results.
type GoalFunc func(State) bool

// TerminationReason names why a run ended.
type TerminationReason string

const (
	// ReasonGoalReached means some node's state satisfied the goal.
	ReasonGoalReached TerminationReason = "goal_reached"

	// ReasonFrontierEmpty means every reachable avenue was explored.
	ReasonFrontierEmpty TerminationReason = "frontier_empty"

	// ReasonBudgetExhausted means the node budget was reached.
	ReasonBudgetExhausted TerminationReason = "budget_exhausted"

	// ReasonDeadlineExceeded means the wall clock limit was reached.
	ReasonDeadlineExceeded TerminationReason = "deadline_exceeded"

	// ReasonCanceled means the caller's context was canceled.
	ReasonCanceled TerminationReason = "canceled"
)

// Result is the outcome of one search run.
type Result struct {
	// RunID identifies the run in logs, artifacts and storage.
	RunID string `json:"run_id"`

	// Path is the selected best path, nil when no viable path existed.
	Path *Path `json:"path,omitempty"`

	// Incomplete marks runs cut short by budget, deadline or
	// cancellation rather than finishing naturally.
	Incomplete bool `json:"incomplete"`

	// Reason names the termination condition that ended the run.
	Reason TerminationReason `json:"reason"`

	// Stats summarizes the final store.
	Stats Stats `json:"stats"`

	// Usage reports budget consumption.
	Usage UsageReport `json:"usage"`
}

// Engine runs one tree search over states proposed by a generator.
//
// All bookkeeping (store mutation, evaluation, pruning, backtracking,
// selection) happens on the goroutine that called Run; only generator
// calls fan out concurrently, bounded by ConcurrencyLimit, and their
// results are applied sequentially in dispatch order. Each engine owns
// its store and frontier outright; nothing is shared across runs.
//
// Thread Safety: Run must be called once, from one goroutine. Store,
// AuditLog and the run Result may be read concurrently afterwards.
type Engine struct {
	cfg      Config
	gen      Generator
	store    *Store
	frontier Frontier
	eval     *Evaluator
	hasher   StateHasher
	budget   *Budget
	audit    *AuditLog
	tracer   *Tracer
	logger   *slog.Logger
	goal     GoalFunc
	h        Heuristics
	runID    string

	started int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer sets the tracer. Defaults to a disabled tracer.
func WithTracer(t *Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithAuditLog sets the audit log, letting callers keep it after the run.
func WithAuditLog(a *AuditLog) Option {
	return func(e *Engine) { e.audit = a }
}

// WithGoal sets the goal predicate.
func WithGoal(goal GoalFunc) Option {
	return func(e *Engine) { e.goal = goal }
}

// WithHeuristics sets the sub-score providers. Nil fields keep the
// engine defaults.
func WithHeuristics(h Heuristics) Option {
	return func(e *Engine) { e.h = h }
}

// WithStateHasher sets the state hasher used for cycle detection.
// Defaults to the canonical-JSON SHA-256 hasher.
func WithStateHasher(h StateHasher) Option {
	return func(e *Engine) { e.hasher = h }
}

// WithRunID fixes the run identifier. Defaults to a fresh UUID.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New creates an engine for a single run.
//
// Inputs:
//   - cfg: run configuration, validated here
//   - gen: thought generator, required
//   - opts: optional overrides
//
// Outputs:
//   - *Engine: ready to Run
//   - error: invalid configuration or missing generator
func New(cfg Config, gen Generator, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is required", ErrInvalidConfig)
	}

	frontier, err := NewFrontier(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		gen:      gen,
		store:    NewStore(),
		frontier: frontier,
		budget:   NewBudget(cfg.budgetConfig()),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = NewTracer(e.logger, false)
	}
	if e.audit == nil {
		e.audit = NewAuditLog()
	}
	if e.hasher == nil {
		e.hasher = NewJSONStateHasher()
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}

	eval, err := NewEvaluator(cfg.Weights, e.h, e.store, cfg.MaxDepth)
	if err != nil {
		return nil, err
	}
	e.eval = eval

	return e, nil
}

// Store returns the engine's arena for inspection after Run.
func (e *Engine) Store() *Store {
	return e.store
}

// Config returns a copy of the run configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// AuditLog returns the engine's audit trail.
func (e *Engine) AuditLog() *AuditLog {
	return e.audit
}

// RunID returns the run identifier.
func (e *Engine) RunID() string {
	return e.runID
}

// Run executes the search from the initial state until a termination
// condition: goal satisfied, frontier drained, node budget reached, wall
// clock expired, or context canceled. Even on budget or deadline
// termination the path selector runs over whatever exists, so a Result
// is returned alongside ErrNoViablePath when selection found nothing.
//
// Inputs:
//   - ctx: cancellation; the configured Timeout is layered on top
//   - initial: the root state, cloned before use
//
// Outputs:
//   - *Result: run outcome, non-nil unless setup failed
//   - error: setup failure, or ErrNoViablePath from selection
func (e *Engine) Run(ctx context.Context, initial State) (*Result, error) {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return nil, ErrRunFinished
	}

	e.budget.Reset()

	runCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	runCtx, span := e.tracer.StartRun(runCtx, e.runID, e.cfg)
	logger := LoggerWithTrace(runCtx, e.logger)

	goalFound, err := e.plantRoot(initial)
	if err != nil {
		e.tracer.EndRun(span, nil, e.budget, err)
		return nil, err
	}

	reason := ReasonGoalReached
	round := 0
	for !goalFound {
		if runCtx.Err() != nil {
			reason = terminationFromContext(ctx, runCtx)
			break
		}
		if budgetErr := e.budget.CheckDispatch(); budgetErr != nil {
			e.tracer.TraceBudgetExhaustion(runCtx, e.budget.ExhaustedBy(), e.budget)
			reason = terminationFromBudget(budgetErr)
			break
		}

		batch := e.drainBatch()
		if len(batch) == 0 {
			reason = ReasonFrontierEmpty
			break
		}

		roundCtx, roundSpan := e.tracer.TraceRound(runCtx, round, len(batch))
		results := e.dispatchBatch(roundCtx, batch)
		goalFound = e.applyBatch(roundCtx, results)
		if !goalFound {
			e.prunePass(roundCtx)
			e.backtrackPass(roundCtx)
		}
		roundSpan.End()
		round++
	}

	incomplete := reason == ReasonBudgetExhausted ||
		reason == ReasonDeadlineExceeded ||
		reason == ReasonCanceled

	path, selErr := SelectBestPath(e.store)
	if path != nil {
		e.audit.Record(*NewAuditEntry(AuditActionSelect, path.Leaf).
			WithScore(path.Score).
			WithDetails(fmt.Sprintf("length %d", path.Length)))
		e.tracer.TraceSelection(runCtx, path)
	}

	result := &Result{
		RunID:      e.runID,
		Path:       path,
		Incomplete: incomplete,
		Reason:     reason,
		Stats:      NewReporter(e.store).Stats(),
		Usage:      e.budget.Report(),
	}
	recordRunComplete(reason, e.budget.Elapsed().Seconds())

	logger.Info("search terminated",
		slog.String("run_id", e.runID),
		slog.String("reason", string(reason)),
		slog.Bool("incomplete", incomplete),
		slog.Int("rounds", round),
		slog.Int("nodes", result.Stats.TotalNodes))

	if selErr != nil {
		selErr = fmt.Errorf("run %s: %w", e.runID, selErr)
		e.tracer.EndRun(span, result, e.budget, selErr)
		return result, selErr
	}
	e.tracer.EndRun(span, result, e.budget, nil)
	return result, nil
}

// plantRoot creates and finalizes the root node. Returns true when the
// initial state already satisfies the goal.
func (e *Engine) plantRoot(initial State) (bool, error) {
	rootState := initial.Clone()
	rootHash, err := e.hasher.Hash(rootState)
	if err != nil {
		return false, fmt.Errorf("hash initial state: %w", err)
	}

	root, err := e.store.Add(0, rootState, rootHash, "")
	if err != nil {
		return false, fmt.Errorf("create root: %w", err)
	}
	e.budget.RecordNodeCreated()
	score := e.eval.Score(root)

	goalFound := false
	if e.goal != nil && e.goal(rootState) {
		root.setStatus(StatusSuccessful)
		goalFound = true
	} else {
		e.frontier.Push(root)
	}

	e.audit.Record(*NewAuditEntry(AuditActionApply, root.ID).
		WithDepth(root.Depth).
		WithStateHash(rootHash).
		WithScore(score).
		WithDetails(string(root.Status())))
	recordNodeCreated(root.Status())
	return goalFound, nil
}

// terminationFromContext distinguishes caller cancellation from the
// engine's own deadline.
func terminationFromContext(parent, run context.Context) TerminationReason {
	if parent.Err() != nil {
		return ReasonCanceled
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	return ReasonCanceled
}

// terminationFromBudget maps budget sentinels to termination reasons.
func terminationFromBudget(err error) TerminationReason {
	if errors.Is(err, ErrTimeLimitExceeded) {
		return ReasonDeadlineExceeded
	}
	return ReasonBudgetExhausted
}
