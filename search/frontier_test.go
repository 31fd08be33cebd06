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
	"errors"
	"testing"
)

func TestStrategy_Valid(t *testing.T) {
	tests := []struct {
		strategy Strategy
		want     bool
	}{
		{StrategyBFS, true},
		{StrategyDFS, true},
		{StrategyBestFirst, true},
		{Strategy("dijkstra"), false},
		{Strategy(""), false},
	}

	for _, tt := range tests {
		if got := tt.strategy.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.strategy, got, tt.want)
		}
	}
}

func TestNewFrontier_UnknownStrategy(t *testing.T) {
	_, err := NewFrontier(Strategy("dijkstra"))
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("error = %v, want ErrUnknownStrategy", err)
	}
}

// frontierFixture builds a small tree and returns its nodes by id.
//
//	1 (root, depth 0)
//	├── 2 (depth 1, score 0.9)
//	│   └── 4 (depth 2, score 0.8)
//	├── 3 (depth 1, score 0.5)
//	└── 5 (depth 1, score 0.9)
func frontierFixture(t *testing.T) []*Node {
	t.Helper()
	store := NewStore()
	root, _ := store.Add(0, State{}, "h1", "")
	a, _ := store.Add(root.ID, State{"p": "a"}, "h2", "a")
	b, _ := store.Add(root.ID, State{"p": "b"}, "h3", "b")
	aa, _ := store.Add(a.ID, State{"p": "aa"}, "h4", "aa")
	c, _ := store.Add(root.ID, State{"p": "c"}, "h5", "c")

	a.setScore(0.9)
	b.setScore(0.5)
	aa.setScore(0.8)
	c.setScore(0.9)
	return []*Node{root, a, b, aa, c}
}

func popAll(f Frontier) []int64 {
	var ids []int64
	for {
		n, ok := f.Pop()
		if !ok {
			break
		}
		ids = append(ids, n.ID)
	}
	return ids
}

func TestFrontier_BFSOrder(t *testing.T) {
	nodes := frontierFixture(t)
	f, _ := NewFrontier(StrategyBFS)

	f.Push(nodes[1])
	f.Push(nodes[2])
	f.Push(nodes[4])

	got := popAll(f)
	want := []int64{2, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestFrontier_DFSOrder(t *testing.T) {
	nodes := frontierFixture(t)
	f, _ := NewFrontier(StrategyDFS)

	f.Push(nodes[1])
	f.Push(nodes[2])
	f.Push(nodes[4])

	got := popAll(f)
	want := []int64{5, 3, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestFrontier_BestFirstOrder(t *testing.T) {
	nodes := frontierFixture(t)
	f, _ := NewFrontier(StrategyBestFirst)

	// f = depth + (1 - score):
	//   node 2: 1.1, node 3: 1.5, node 4 (depth 2): 2.2, node 5: 1.1
	f.Push(nodes[3])
	f.Push(nodes[2])
	f.Push(nodes[4])
	f.Push(nodes[1])

	got := popAll(f)
	// Tie between 2 and 5 at f=1.1 resolves to the lower id.
	want := []int64{2, 5, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("pop count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestFrontier_LazyRemoval(t *testing.T) {
	for _, strategy := range []Strategy{StrategyBFS, StrategyDFS, StrategyBestFirst} {
		nodes := frontierFixture(t)
		f, _ := NewFrontier(strategy)

		f.Push(nodes[1])
		f.Push(nodes[2])
		nodes[1].setStatus(StatusPruned)

		n, ok := f.Pop()
		if !ok {
			t.Fatalf("%s: Pop should still yield the live node", strategy)
		}
		if n.ID != nodes[2].ID {
			t.Errorf("%s: popped %d, want %d (pruned entry skipped)", strategy, n.ID, nodes[2].ID)
		}
		if _, ok := f.Pop(); ok {
			t.Errorf("%s: frontier should be empty", strategy)
		}
	}
}

func TestFrontier_DoublePushIgnored(t *testing.T) {
	for _, strategy := range []Strategy{StrategyBFS, StrategyDFS, StrategyBestFirst} {
		nodes := frontierFixture(t)
		f, _ := NewFrontier(strategy)

		f.Push(nodes[1])
		f.Push(nodes[1])
		f.Push(nodes[1])

		if got := popAll(f); len(got) != 1 {
			t.Errorf("%s: popped %d entries, want 1", strategy, len(got))
		}
	}
}

func TestFrontier_RequeueAfterPop(t *testing.T) {
	nodes := frontierFixture(t)
	f, _ := NewFrontier(StrategyBFS)

	f.Push(nodes[1])
	n, _ := f.Pop()
	if n.Queued() {
		t.Error("popped node should not report queued")
	}

	// A popped node can go back in, as backtracking does.
	f.Push(n)
	if got := popAll(f); len(got) != 1 || got[0] != n.ID {
		t.Errorf("requeue pop = %v, want [%d]", got, n.ID)
	}
}

func TestFrontier_EmptyPop(t *testing.T) {
	f, _ := NewFrontier(StrategyBFS)
	if _, ok := f.Pop(); ok {
		t.Error("Pop on empty frontier should report false")
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.Len())
	}
}
