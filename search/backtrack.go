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
	"fmt"
	"log/slog"
)

// backtrackPass scans the store for collapsed branches and requeues their
// owners for alternative expansion while retries remain.
//
// The scan runs in reverse id order so children are settled before their
// parents: a deep node revived here counts as a live descendant when its
// ancestors are examined in the same pass, which keeps a single collapse
// from requeuing a whole ancestor chain at once.
//
// Returns the number of nodes revived into the frontier.
func (e *Engine) backtrackPass(ctx context.Context) int {
	logger := LoggerWithTrace(ctx, e.logger)
	nodes := e.store.All()
	revived := 0

	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		status := n.Status()

		if status == StatusActive {
			// A delegated parent whose whole subtree died is exhausted
			// in place; whether it comes back is decided below.
			if n.Queued() || n.ChildCount() == 0 {
				continue
			}
			if !e.childrenAllDead(n) || e.store.hasLiveDescendant(n.ID) {
				continue
			}
			n.setStatus(StatusExhausted)
			e.audit.Record(*NewAuditEntry(AuditActionExhaust, n.ID).
				WithDepth(n.Depth).
				WithDetails("subtree collapsed"))
			status = StatusExhausted
		}

		if status != StatusExhausted {
			continue
		}
		if n.ExpansionAttempts() >= e.cfg.RetryLimit {
			continue
		}
		if e.store.hasLiveDescendant(n.ID) {
			continue
		}

		n.setStatus(StatusActive)
		e.frontier.Push(n)
		revived++

		recordBacktrack()
		e.tracer.TraceBacktrack(ctx, n)
		e.audit.Record(*NewAuditEntry(AuditActionBacktrack, n.ID).
			WithDepth(n.Depth).
			WithDetails(fmt.Sprintf("attempt %d of %d", n.ExpansionAttempts()+1, e.cfg.RetryLimit)))
		logger.Debug("collapsed branch requeued",
			slog.Int64("node_id", n.ID),
			slog.Int("attempts", n.ExpansionAttempts()))
	}

	return revived
}

// childrenAllDead reports whether every child is DeadEnd, Pruned, or
// Exhausted. A Successful or Active child keeps the branch alive.
func (e *Engine) childrenAllDead(n *Node) bool {
	for _, id := range n.Children() {
		child, ok := e.store.Get(id)
		if !ok {
			continue
		}
		switch child.Status() {
		case StatusDeadEnd, StatusPruned, StatusExhausted:
		default:
			return false
		}
	}
	return true
}
