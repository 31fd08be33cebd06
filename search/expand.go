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
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// dispatchResult carries one generator outcome from the concurrent fetch
// phase into the sequential apply phase. Results are indexed by dispatch
// position, so applying them in slice order reproduces dispatch order no
// matter which call finished first.
type dispatchResult struct {
	parent     *Node
	candidates []Candidate
	err        error
	outcome    string
	span       trace.Span
}

// drainBatch pops up to ConcurrencyLimit live nodes from the frontier in
// strategy order. An empty batch means the frontier is drained.
func (e *Engine) drainBatch() []*Node {
	batch := make([]*Node, 0, e.cfg.ConcurrencyLimit)
	for len(batch) < e.cfg.ConcurrencyLimit {
		n, ok := e.frontier.Pop()
		if !ok {
			break
		}
		batch = append(batch, n)
	}
	return batch
}

// dispatchBatch fans the batch out to the generator concurrently. Only
// the generator call runs off the writer goroutine; each goroutine writes
// its own slot in the results slice and touches no engine state.
//
// Audit dispatch entries are recorded up front in dispatch order, which
// is the order applyBatch will consume.
func (e *Engine) dispatchBatch(ctx context.Context, batch []*Node) []dispatchResult {
	results := make([]dispatchResult, len(batch))

	for i, parent := range batch {
		results[i].parent = parent
		e.audit.Record(*NewAuditEntry(AuditActionDispatch, parent.ID).
			WithDepth(parent.Depth).
			WithStateHash(parent.StateHash))
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i, parent := range batch {
		i, parent := i, parent // Capture loop variables
		g.Go(func() error {
			expandCtx, span := e.tracer.TraceExpand(gCtx, parent)
			start := time.Now()
			// The generator gets a state copy so it can never mutate a
			// store-owned payload.
			candidates, err := e.gen.Propose(expandCtx, parent.State.Clone(), e.cfg.BranchingFactor)
			elapsed := time.Since(start)
			e.budget.RecordGeneratorCall()

			outcome := "ok"
			switch {
			case err != nil:
				outcome = "error"
			case len(candidates) == 0:
				outcome = "empty"
			}
			recordGeneratorCall(outcome, elapsed.Seconds())

			results[i].candidates = candidates
			results[i].err = err
			results[i].outcome = outcome
			results[i].span = span
			return nil // Generator failures stay isolated to their node
		})
	}
	_ = g.Wait()

	return results
}

// applyBatch integrates a batch of results sequentially in dispatch
// order. Child ids and frontier placement therefore depend only on
// dispatch order, never on completion order. Returns true when any new
// child satisfied the goal predicate.
func (e *Engine) applyBatch(ctx context.Context, results []dispatchResult) bool {
	goalFound := false
	for i := range results {
		if e.applyOne(ctx, &results[i]) {
			goalFound = true
		}
	}
	updateActiveNodes(e.store.CountStatus(StatusActive))
	return goalFound
}

// applyOne applies a single dispatch result: charges the attempt, commits
// usable candidates as children, finalizes each child's status, and
// settles the parent's disposition.
func (e *Engine) applyOne(ctx context.Context, res *dispatchResult) bool {
	parent := res.parent
	logger := LoggerWithTrace(ctx, e.logger)
	attempts := parent.chargeAttempt()

	if res.err != nil || len(res.candidates) == 0 {
		e.tracer.EndExpand(res.span, 0, 0, res.err)
		e.failExpansion(ctx, parent, attempts, res)
		return false
	}

	candidates := res.candidates
	if len(candidates) > e.cfg.BranchingFactor {
		candidates = candidates[:e.cfg.BranchingFactor]
	}

	created, cycles, malformed := 0, 0, 0
	goalFound := false
	for _, cand := range candidates {
		thought := strings.TrimSpace(cand.Thought)
		if thought == "" || cand.Delta == nil {
			malformed++
			recordCandidateDiscarded("malformed")
			e.audit.Record(*NewAuditEntry(AuditActionDiscard, parent.ID).
				WithDepth(parent.Depth + 1).
				WithDetails("malformed"))
			logger.Warn("malformed candidate discarded",
				slog.Int64("parent_id", parent.ID))
			continue
		}

		childState := parent.State.Merge(cand.Delta)
		hash, err := e.hasher.Hash(childState)
		if err != nil {
			malformed++
			recordCandidateDiscarded("malformed")
			e.audit.Record(*NewAuditEntry(AuditActionDiscard, parent.ID).
				WithDepth(parent.Depth + 1).
				WithDetails("state hash failure"))
			logger.Warn("candidate state hash failed",
				slog.Int64("parent_id", parent.ID),
				slog.String("error", err.Error()))
			continue
		}

		if e.formsCycle(parent, hash) {
			cycles++
			recordCandidateDiscarded("cycle")
			e.audit.Record(*NewAuditEntry(AuditActionDiscard, parent.ID).
				WithDepth(parent.Depth + 1).
				WithStateHash(hash).
				WithDetails("cycle"))
			logger.Debug("cycle candidate discarded",
				slog.Int64("parent_id", parent.ID),
				slog.String("state_hash", shortHash(hash)))
			continue
		}

		child, err := e.store.Add(parent.ID, childState, hash, thought)
		if err != nil {
			logger.Error("node creation failed",
				slog.Int64("parent_id", parent.ID),
				slog.String("error", err.Error()))
			continue
		}
		e.budget.RecordNodeCreated()

		score := e.eval.Score(child)
		switch {
		case e.goal != nil && e.goal(childState):
			child.setStatus(StatusSuccessful)
			goalFound = true
		case child.Depth >= e.cfg.MaxDepth:
			// Depth ceiling: a full-length chain that held its score is
			// a result; one that decayed below the prune threshold is
			// not. Either way it never enters the frontier.
			if score >= e.cfg.PruneThreshold {
				child.setStatus(StatusSuccessful)
			} else {
				child.setStatus(StatusDeadEnd)
			}
		default:
			e.frontier.Push(child)
		}

		e.audit.Record(*NewAuditEntry(AuditActionApply, child.ID).
			WithDepth(child.Depth).
			WithStateHash(hash).
			WithScore(score).
			WithDetails(string(child.Status())))
		recordNodeCreated(child.Status())
		created++
	}

	e.tracer.EndExpand(res.span, created, cycles+malformed, nil)

	if created > 0 {
		// Continuations are delegated to the children. The parent leaves
		// the frontier but stays Active so a later subtree collapse can
		// requeue it.
		return goalFound
	}

	if cycles > 0 && malformed == 0 {
		// Every candidate closed a loop over its ancestor chain. Such a
		// dispatch burns no retry; the node goes straight back into the
		// frontier and the wall clock bounds a generator stuck cycling.
		parent.refundAttempt()
		e.frontier.Push(parent)
		logger.Debug("all candidates discarded as cycles, node requeued",
			slog.Int64("node_id", parent.ID),
			slog.Int("discarded", cycles))
		return false
	}

	e.failExpansion(ctx, parent, attempts, res)
	return false
}

// failExpansion settles a dispatch that produced no usable children. The
// node becomes Exhausted; whether the backtracker may revive it depends
// on its attempt count against the retry limit.
func (e *Engine) failExpansion(ctx context.Context, parent *Node, attempts int, res *dispatchResult) {
	logger := LoggerWithTrace(ctx, e.logger)
	parent.setStatus(StatusExhausted)

	var details string
	switch res.outcome {
	case "error":
		details = "generator failure"
	case "empty":
		details = "generator returned no candidates"
	default:
		details = "no usable children"
	}
	if attempts >= e.cfg.RetryLimit {
		details += ", retry limit reached"
	}
	e.audit.Record(*NewAuditEntry(AuditActionExhaust, parent.ID).
		WithDepth(parent.Depth).
		WithDetails(details))

	if res.err != nil {
		logger.Warn("expansion failed",
			slog.Int64("node_id", parent.ID),
			slog.Int("attempts", attempts),
			slog.String("error", res.err.Error()))
		return
	}
	logger.Info("expansion produced no usable children",
		slog.Int64("node_id", parent.ID),
		slog.Int("attempts", attempts))
}

// formsCycle reports whether the hash matches the dispatched node or any
// of its ancestors, which would make the candidate a revisit of a state
// already on this path.
func (e *Engine) formsCycle(parent *Node, hash string) bool {
	cycle := false
	if err := e.store.ancestorHashes(parent.ID, func(h string) bool {
		if h == hash {
			cycle = true
			return false
		}
		return true
	}); err != nil {
		return false
	}
	return cycle
}
