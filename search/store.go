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
	"fmt"
	"sync"
	"time"
)

// Store is the arena owning every node of one run. Ids are allocated
// monotonically starting at 1 and double as deterministic tie-breakers;
// nodes are re-tagged but never removed, so pruned and dead branches stay
// available for audit and statistics.
//
// Thread Safety: structural mutation happens only on the engine's writer
// goroutine; the lock makes concurrent readers safe.
type Store struct {
	mu    sync.RWMutex
	nodes []*Node // index i holds id i+1
}

// NewStore creates an empty arena.
func NewStore() *Store {
	return &Store{nodes: make([]*Node, 0, 64)}
}

// Add creates a node in the arena and links it under its parent. The id
// allocation, parent link and store insert form one atomic step: no
// half-created node is ever observable.
//
// Inputs:
//   - parentID: 0 for the root, otherwise an existing node id
//   - state: the merged state payload for the new node
//   - stateHash: digest of state, computed by the caller's hasher
//   - rationale: free text describing why the node was proposed
//
// Outputs:
//   - *Node: the created node, status Active, unscored
//   - error: ErrNodeNotFound if parentID does not resolve
func (s *Store) Add(parentID int64, state State, stateHash, rationale string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := 0
	var parent *Node
	if parentID != 0 {
		if parentID < 1 || parentID > int64(len(s.nodes)) {
			return nil, fmt.Errorf("add node under parent %d: %w", parentID, ErrNodeNotFound)
		}
		parent = s.nodes[parentID-1]
		depth = parent.Depth + 1
	} else if len(s.nodes) > 0 {
		return nil, fmt.Errorf("add second root: store already has %d nodes", len(s.nodes))
	}

	n := &Node{
		ID:        int64(len(s.nodes)) + 1,
		ParentID:  parentID,
		Depth:     depth,
		Rationale: rationale,
		State:     state,
		StateHash: stateHash,
		CreatedAt: time.Now(),
		status:    StatusActive,
	}
	s.nodes = append(s.nodes, n)
	if parent != nil {
		parent.appendChild(n.ID)
	}
	return n, nil
}

// Get returns the node with the given id.
func (s *Store) Get(id int64) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.nodes)) {
		return nil, false
	}
	return s.nodes[id-1], true
}

// Root returns the root node, nil for an empty store.
func (s *Store) Root() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nodes) == 0 {
		return nil
	}
	return s.nodes[0]
}

// Len returns the number of nodes in the arena.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// All returns the nodes in id order (root first). The slice is a copy;
// the nodes are shared.
func (s *Store) All() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// PathToRoot returns the nodes from root to the given node, inclusive.
// The walk follows ParentID links and terminates within Depth steps by
// the tree invariant.
func (s *Store) PathToRoot(id int64) ([]*Node, error) {
	n, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("path to root from %d: %w", id, ErrNodeNotFound)
	}

	var rev []*Node
	for n != nil {
		rev = append(rev, n)
		if n.ParentID == 0 {
			break
		}
		parent, ok := s.Get(n.ParentID)
		if !ok {
			return nil, fmt.Errorf("path to root from %d: parent %d: %w", id, n.ParentID, ErrNodeNotFound)
		}
		n = parent
	}

	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev, nil
}

// ancestorHashes walks parent links from the given node (inclusive) to
// the root and invokes fn with each state hash on the chain; fn returns
// false to stop early. Used by cycle detection before a child is
// committed under node id.
func (s *Store) ancestorHashes(id int64, fn func(hash string) bool) error {
	n, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("ancestors of %d: %w", id, ErrNodeNotFound)
	}
	for {
		if !fn(n.StateHash) {
			return nil
		}
		if n.ParentID == 0 {
			return nil
		}
		parent, ok := s.Get(n.ParentID)
		if !ok {
			return fmt.Errorf("ancestors of %d: parent %d: %w", id, n.ParentID, ErrNodeNotFound)
		}
		n = parent
	}
}

// CountByStatus returns node counts keyed by status.
func (s *Store) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, n := range s.All() {
		counts[n.Status()]++
	}
	return counts
}

// CountStatus returns the number of nodes currently in the given status.
func (s *Store) CountStatus(status Status) int {
	count := 0
	for _, n := range s.All() {
		if n.Status() == status {
			count++
		}
	}
	return count
}

// MaxDepth returns the maximum depth reached, 0 for an empty store.
func (s *Store) MaxDepth() int {
	maxDepth := 0
	for _, n := range s.All() {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}
	return maxDepth
}

// MeanScore returns the mean score over evaluated nodes, 0 if none.
func (s *Store) MeanScore() float64 {
	sum := 0.0
	count := 0
	for _, n := range s.All() {
		if n.Scored() {
			sum += n.Score()
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// hasLiveDescendant reports whether any node strictly below id is Active
// or Successful. The backtracker uses it to decide whether a branch has
// truly collapsed.
func (s *Store) hasLiveDescendant(id int64) bool {
	n, ok := s.Get(id)
	if !ok {
		return false
	}
	queue := n.Children()
	for len(queue) > 0 {
		childID := queue[0]
		queue = queue[1:]
		child, ok := s.Get(childID)
		if !ok {
			continue
		}
		switch child.Status() {
		case StatusActive, StatusSuccessful:
			return true
		}
		queue = append(queue, child.Children()...)
	}
	return false
}
