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
	"testing"
)

func TestBacktrackPass_RevivesExhaustedNode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryLimit = 3
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	root, _ := e.store.Add(0, State{}, "h0", "")
	failed, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "failed branch")
	failed.chargeAttempt()
	failed.setStatus(StatusExhausted)

	revived := e.backtrackPass(context.Background())
	if revived != 1 {
		t.Fatalf("revived = %d, want 1", revived)
	}
	if failed.Status() != StatusActive {
		t.Errorf("status = %s, want active after revival", failed.Status())
	}
	if !failed.Queued() {
		t.Error("revived node should be back in the frontier")
	}

	n, ok := e.frontier.Pop()
	if !ok || n.ID != failed.ID {
		t.Error("frontier should yield the revived node")
	}
}

func TestBacktrackPass_RespectsRetryLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryLimit = 2
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	root, _ := e.store.Add(0, State{}, "h0", "")
	failed, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "failed branch")
	winner, _ := e.store.Add(root.ID, State{"b": 2}, "h2", "sibling")
	winner.setStatus(StatusSuccessful)
	failed.chargeAttempt()
	failed.chargeAttempt()
	failed.setStatus(StatusExhausted)

	if revived := e.backtrackPass(context.Background()); revived != 0 {
		t.Errorf("revived = %d, want 0 at the retry limit", revived)
	}
	if failed.Status() != StatusExhausted {
		t.Errorf("status = %s, want exhausted to stay permanent", failed.Status())
	}
}

func TestBacktrackPass_SkipsNodesWithLiveDescendants(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	root, _ := e.store.Add(0, State{}, "h0", "")
	mid, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "mid")
	e.store.Add(mid.ID, State{"a": 1, "b": 2}, "h2", "leaf")

	mid.chargeAttempt()
	mid.setStatus(StatusExhausted)

	if revived := e.backtrackPass(context.Background()); revived != 0 {
		t.Errorf("revived = %d, want 0 while a descendant is live", revived)
	}
	if mid.Status() != StatusExhausted {
		t.Errorf("status = %s, want exhausted", mid.Status())
	}
}

func TestBacktrackPass_DetectsSubtreeCollapse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryLimit = 3
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	root, _ := e.store.Add(0, State{}, "h0", "")
	parent, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "delegated")
	c1, _ := e.store.Add(parent.ID, State{"a": 1, "b": 1}, "h2", "c1")
	c2, _ := e.store.Add(parent.ID, State{"a": 1, "b": 2}, "h3", "c2")
	c1.setStatus(StatusDeadEnd)
	c2.setStatus(StatusPruned)

	revived := e.backtrackPass(context.Background())

	// The parent collapses to exhausted, then comes straight back for
	// another try since it has attempts left.
	if parent.Status() != StatusActive {
		t.Errorf("parent status = %s, want active after collapse revival", parent.Status())
	}
	if !parent.Queued() {
		t.Error("collapsed parent should be requeued")
	}
	if revived < 1 {
		t.Errorf("revived = %d, want at least the collapsed parent", revived)
	}

	exhausts := e.audit.EntriesByAction(AuditActionExhaust)
	if len(exhausts) != 1 || exhausts[0].NodeID != parent.ID {
		t.Errorf("exhaust audit entries = %v, want one for node %d", exhausts, parent.ID)
	}
	backtracks := e.audit.EntriesByAction(AuditActionBacktrack)
	if len(backtracks) == 0 || backtracks[0].NodeID != parent.ID {
		t.Error("collapse should record a backtrack audit entry")
	}
}

func TestBacktrackPass_SuccessfulChildKeepsBranchAlive(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	root, _ := e.store.Add(0, State{}, "h0", "")
	parent, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "delegated")
	c1, _ := e.store.Add(parent.ID, State{"a": 1, "b": 1}, "h2", "c1")
	c2, _ := e.store.Add(parent.ID, State{"a": 1, "b": 2}, "h3", "c2")
	c1.setStatus(StatusDeadEnd)
	c2.setStatus(StatusSuccessful)

	e.backtrackPass(context.Background())

	if parent.Status() != StatusActive {
		t.Errorf("parent status = %s, want active", parent.Status())
	}
	if parent.Queued() {
		t.Error("parent with a successful child should not be requeued")
	}
}

func TestBacktrackPass_SkipsQueuedNodes(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	root, _ := e.store.Add(0, State{}, "h0", "")
	parent, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "waiting")
	dead, _ := e.store.Add(parent.ID, State{"a": 1, "b": 1}, "h2", "dead")
	dead.setStatus(StatusDeadEnd)

	// The parent is already waiting for a dispatch.
	e.frontier.Push(parent)

	e.backtrackPass(context.Background())

	if parent.Status() != StatusActive {
		t.Errorf("queued parent status = %s, want active", parent.Status())
	}
	if e.frontier.Len() != 1 {
		t.Errorf("frontier Len = %d, want 1 (no double enqueue)", e.frontier.Len())
	}
}

func TestBacktrackPass_ChildrenSettleBeforeParents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryLimit = 3
	e := newTestEngine(t, cfg, NewMockGenerator(2))

	// root -> mid -> leaf, where leaf is exhausted with retries left.
	// Reviving the leaf makes it a live descendant, so mid must not
	// collapse in the same pass.
	root, _ := e.store.Add(0, State{}, "h0", "")
	mid, _ := e.store.Add(root.ID, State{"a": 1}, "h1", "mid")
	leaf, _ := e.store.Add(mid.ID, State{"a": 1, "b": 2}, "h2", "leaf")
	leaf.chargeAttempt()
	leaf.setStatus(StatusExhausted)

	revived := e.backtrackPass(context.Background())
	if revived != 1 {
		t.Errorf("revived = %d, want 1 (just the leaf)", revived)
	}
	if leaf.Status() != StatusActive {
		t.Errorf("leaf status = %s, want active", leaf.Status())
	}
	if mid.Status() != StatusActive {
		t.Errorf("mid status = %s, want active (not collapsed)", mid.Status())
	}
	if mid.Queued() {
		t.Error("mid should not be requeued while its leaf lives again")
	}
	if root.Queued() {
		t.Error("root should not be requeued")
	}
}
