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
	"container/heap"
	"fmt"
)

// Strategy selects the frontier ordering.
type Strategy string

const (
	// StrategyBFS explores in FIFO order: all nodes at depth d dispatch
	// before any node at depth d+1.
	StrategyBFS Strategy = "bfs"

	// StrategyDFS explores in LIFO order, following the most recent
	// expansion downward.
	StrategyDFS Strategy = "dfs"

	// StrategyBestFirst orders by f = depth + (1 - score), lower first,
	// ties broken by lowest node id. The heuristic is not admissible; it
	// trades optimality guarantees for useful prioritization and is the
	// documented default.
	StrategyBestFirst Strategy = "best_first"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyBFS, StrategyDFS, StrategyBestFirst:
		return true
	}
	return false
}

// Frontier holds nodes awaiting expansion. Implementations are not
// goroutine safe; the engine owns the frontier from its bookkeeping
// goroutine only.
//
// Demoted nodes are removed lazily: a node pruned while queued is skipped
// at Pop time, so Len is an upper bound rather than an exact live count.
type Frontier interface {
	// Push enqueues a node and marks it queued. The node's score must be
	// final; best-first priority is computed here and not revisited.
	// Pushing a node that is already queued is a no-op.
	Push(n *Node)

	// Pop removes the next node in strategy order, skipping any node no
	// longer Active. The second return is false when the frontier has no
	// live node left.
	Pop() (*Node, bool)

	// Len returns the queued count, including stale entries.
	Len() int
}

// NewFrontier builds the frontier for the given strategy.
func NewFrontier(s Strategy) (Frontier, error) {
	switch s {
	case StrategyBFS:
		return &fifoFrontier{}, nil
	case StrategyDFS:
		return &lifoFrontier{}, nil
	case StrategyBestFirst:
		return newBestFirstFrontier(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

type fifoFrontier struct {
	queue []*Node
}

func (f *fifoFrontier) Push(n *Node) {
	if n.Queued() {
		return
	}
	n.setQueued(true)
	f.queue = append(f.queue, n)
}

func (f *fifoFrontier) Pop() (*Node, bool) {
	for len(f.queue) > 0 {
		n := f.queue[0]
		f.queue = f.queue[1:]
		n.setQueued(false)
		if n.Status() == StatusActive {
			return n, true
		}
	}
	return nil, false
}

func (f *fifoFrontier) Len() int {
	return len(f.queue)
}

type lifoFrontier struct {
	stack []*Node
}

func (f *lifoFrontier) Push(n *Node) {
	if n.Queued() {
		return
	}
	n.setQueued(true)
	f.stack = append(f.stack, n)
}

func (f *lifoFrontier) Pop() (*Node, bool) {
	for len(f.stack) > 0 {
		n := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		n.setQueued(false)
		if n.Status() == StatusActive {
			return n, true
		}
	}
	return nil, false
}

func (f *lifoFrontier) Len() int {
	return len(f.stack)
}

type frontierEntry struct {
	node *Node
	f    float64
}

type bestFirstFrontier struct {
	entries frontierHeap
}

func newBestFirstFrontier() *bestFirstFrontier {
	bf := &bestFirstFrontier{entries: frontierHeap{}}
	heap.Init(&bf.entries)
	return bf
}

func (b *bestFirstFrontier) Push(n *Node) {
	if n.Queued() {
		return
	}
	n.setQueued(true)
	f := float64(n.Depth) + (1.0 - n.Score())
	heap.Push(&b.entries, frontierEntry{node: n, f: f})
}

func (b *bestFirstFrontier) Pop() (*Node, bool) {
	for b.entries.Len() > 0 {
		e := heap.Pop(&b.entries).(frontierEntry)
		e.node.setQueued(false)
		if e.node.Status() == StatusActive {
			return e.node, true
		}
	}
	return nil, false
}

func (b *bestFirstFrontier) Len() int {
	return b.entries.Len()
}

type frontierHeap []frontierEntry

func (h frontierHeap) Len() int { return len(h) }

func (h frontierHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].node.ID < h[j].node.ID
}

func (h frontierHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frontierHeap) Push(x any) {
	*h = append(*h, x.(frontierEntry))
}

func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
