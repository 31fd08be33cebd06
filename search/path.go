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

import "fmt"

// Path is a selected root-to-leaf result.
type Path struct {
	// NodeIDs lists the path root first.
	NodeIDs []int64 `json:"node_ids"`

	// Leaf is the final node id, equal to the last entry of NodeIDs.
	Leaf int64 `json:"leaf"`

	// Score is the mean node score along the path.
	Score float64 `json:"score"`

	// Length is the node count, equal to len(NodeIDs).
	Length int `json:"length"`
}

// String returns a compact human-readable representation.
func (p *Path) String() string {
	return fmt.Sprintf("Path{leaf=%d, score=%.3f, length=%d}", p.Leaf, p.Score, p.Length)
}

// SelectBestPath ranks candidate root-to-leaf paths and returns the best.
//
// Candidates are all Successful nodes. When none exist (incomplete run),
// the single highest-scoring Active leaf serves as fallback; if every
// Active node has children, the highest-scoring Active node stands in.
// Ranking: maximum mean score along the path, ties broken by shorter
// path, then by smallest leaf id. The function is pure: identical store
// contents yield an identical path.
//
// Inputs:
//   - store: the arena to select from
//
// Outputs:
//   - *Path: the selected path
//   - error: ErrNoViablePath when the store has neither Successful nor
//     Active nodes
func SelectBestPath(store *Store) (*Path, error) {
	var leaves []*Node
	for _, n := range store.All() {
		if n.Status() == StatusSuccessful {
			leaves = append(leaves, n)
		}
	}
	if len(leaves) == 0 {
		leaves = activeFallback(store)
	}
	if len(leaves) == 0 {
		return nil, ErrNoViablePath
	}

	var best *Path
	for _, leaf := range leaves {
		nodes, err := store.PathToRoot(leaf.ID)
		if err != nil {
			return nil, err
		}

		p := &Path{
			NodeIDs: make([]int64, len(nodes)),
			Leaf:    leaf.ID,
			Length:  len(nodes),
		}
		sum := 0.0
		for i, n := range nodes {
			p.NodeIDs[i] = n.ID
			sum += n.Score()
		}
		p.Score = sum / float64(len(nodes))

		if best == nil || betterPath(p, best) {
			best = p
		}
	}
	return best, nil
}

// betterPath reports whether a outranks b: higher mean score, then
// shorter path, then smaller leaf id.
func betterPath(a, b *Path) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Length != b.Length {
		return a.Length < b.Length
	}
	return a.Leaf < b.Leaf
}

// activeFallback picks the fallback candidate for runs that ended with
// no Successful node. Iteration is in id order and comparisons are
// strict, so score ties resolve to the smallest id.
func activeFallback(store *Store) []*Node {
	var bestLeaf, bestAny *Node
	for _, n := range store.All() {
		if n.Status() != StatusActive {
			continue
		}
		if bestAny == nil || n.Score() > bestAny.Score() {
			bestAny = n
		}
		if n.IsLeaf() && (bestLeaf == nil || n.Score() > bestLeaf.Score()) {
			bestLeaf = n
		}
	}
	if bestLeaf != nil {
		return []*Node{bestLeaf}
	}
	if bestAny != nil {
		return []*Node{bestAny}
	}
	return nil
}
