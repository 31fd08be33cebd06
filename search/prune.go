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
	"sort"
)

// prunePass demotes sub-threshold Active nodes after a batch of
// evaluations, keeping at least MinActiveFloor nodes Active. Candidates
// are demoted worst-first; the pass stops at the first demotion that
// would break the floor. Nodes at or above the threshold are never
// candidates, so the floor only ever spares sub-threshold nodes.
//
// Returns the number of nodes demoted.
func (e *Engine) prunePass(ctx context.Context) int {
	activeCount := 0
	var candidates []*Node
	for _, n := range e.store.All() {
		if n.Status() != StatusActive {
			continue
		}
		activeCount++
		if n.Scored() && n.Score() < e.cfg.PruneThreshold {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score() != candidates[j].Score() {
			return candidates[i].Score() < candidates[j].Score()
		}
		return candidates[i].ID < candidates[j].ID
	})

	pruned := 0
	for _, n := range candidates {
		if activeCount-1 < e.cfg.MinActiveFloor {
			break
		}
		n.setStatus(StatusPruned)
		activeCount--
		pruned++

		recordNodePruned()
		e.tracer.TracePrune(ctx, n)
		e.audit.Record(*NewAuditEntry(AuditActionPrune, n.ID).
			WithDepth(n.Depth).
			WithScore(n.Score()))
	}

	if pruned > 0 {
		updateActiveNodes(activeCount)
	}
	return pruned
}
