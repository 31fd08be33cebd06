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
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status represents the lifecycle status of a node.
type Status string

const (
	// StatusActive marks a node awaiting expansion (frontier member).
	StatusActive Status = "active"

	// StatusSuccessful marks a node whose state satisfied the goal
	// predicate, or that reached the depth ceiling with a score at or
	// above the prune threshold.
	StatusSuccessful Status = "successful"

	// StatusPruned marks a node demoted by the pruner. Never reconsidered.
	StatusPruned Status = "pruned"

	// StatusDeadEnd marks a node that reached the depth ceiling scoring
	// below the prune threshold.
	StatusDeadEnd Status = "dead_end"

	// StatusExhausted marks a node whose own continuations are spent:
	// either delegated to children or burned on failed expansion attempts.
	// The backtracker may revive it to Active while retries remain.
	StatusExhausted Status = "exhausted"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether a node in this status is out of the frontier.
// Exhausted counts as terminal here even though the backtracker can still
// revive it; only Active nodes are ever dispatched.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Node is one point in the explored reasoning space. The store owns every
// node; parent and child links are ids, never pointers, so the tree has no
// ownership cycles.
//
// Identity fields (ID, ParentID, Depth, State, StateHash, Rationale,
// CreatedAt) are fixed at creation. Score, status, children and the
// expansion-attempt counter mutate only under the engine's single writer;
// the embedded lock keeps concurrent readers (reporter, metrics) safe.
type Node struct {
	// Immutable after creation
	ID        int64     `json:"id"`
	ParentID  int64     `json:"parent_id"` // 0 only for the root
	Depth     int       `json:"depth"`
	Rationale string    `json:"rationale"`
	State     State     `json:"-"`
	StateHash string    `json:"state_hash"`
	CreatedAt time.Time `json:"created_at"`

	mu                sync.RWMutex
	status            Status
	score             float64
	scored            bool
	queued            bool
	children          []int64
	expansionAttempts int
}

// Queued reports whether the node currently sits in the frontier.
func (n *Node) Queued() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.queued
}

// setQueued tracks frontier membership. Maintained by the frontier
// implementations on Push and Pop.
func (n *Node) setQueued(q bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = q
}

// Status returns the current node status.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// setStatus updates the node status. Engine-internal; transitions are
// validated by the components that call it.
func (n *Node) setStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// Score returns the evaluated score, 0 if the node was never evaluated.
func (n *Node) Score() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.score
}

// Scored reports whether the evaluator has scored this node.
func (n *Node) Scored() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.scored
}

// setScore records the evaluated score.
func (n *Node) setScore(score float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.score = score
	n.scored = true
}

// Children returns a copy of the ordered child id list.
func (n *Node) Children() []int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]int64, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.children)
}

// appendChild links a child id. The list is append-only.
func (n *Node) appendChild(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, id)
}

// ExpansionAttempts returns the number of generator dispatches charged to
// this node.
func (n *Node) ExpansionAttempts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.expansionAttempts
}

// chargeAttempt increments the attempt counter and returns the new value.
func (n *Node) chargeAttempt() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expansionAttempts++
	return n.expansionAttempts
}

// refundAttempt undoes one charge. Used when a dispatch produced no
// children solely because cycle detection discarded every candidate;
// such a dispatch must not consume a backtracking retry.
func (n *Node) refundAttempt() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.expansionAttempts > 0 {
		n.expansionAttempts--
	}
}

// IsRoot reports whether this node is the root.
func (n *Node) IsRoot() bool {
	return n.ParentID == 0
}

// IsLeaf reports whether this node has no children.
func (n *Node) IsLeaf() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.children) == 0
}

// String returns a compact human-readable representation.
func (n *Node) String() string {
	return fmt.Sprintf("Node{id=%d, depth=%d, status=%s, score=%.2f, children=%d, attempts=%d}",
		n.ID, n.Depth, n.Status(), n.Score(), n.ChildCount(), n.ExpansionAttempts())
}

// nodeRecord is the serialized form of a node, shared by MarshalJSON and
// snapshot loading.
type nodeRecord struct {
	ID                int64     `json:"id"`
	ParentID          int64     `json:"parent_id"`
	Depth             int       `json:"depth"`
	Status            Status    `json:"status"`
	Score             float64   `json:"score"`
	Scored            bool      `json:"scored"`
	Rationale         string    `json:"rationale,omitempty"`
	StateHash         string    `json:"state_hash"`
	Children          []int64   `json:"children,omitempty"`
	ExpansionAttempts int       `json:"expansion_attempts"`
	CreatedAt         time.Time `json:"created_at"`
}

// MarshalJSON implements json.Marshaler. State payloads are omitted (they
// are caller-defined and may not be JSON-safe); the state hash stands in
// for them.
func (n *Node) MarshalJSON() ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return json.Marshal(&nodeRecord{
		ID:                n.ID,
		ParentID:          n.ParentID,
		Depth:             n.Depth,
		Status:            n.status,
		Score:             n.score,
		Scored:            n.scored,
		Rationale:         n.Rationale,
		StateHash:         n.StateHash,
		Children:          n.children,
		ExpansionAttempts: n.expansionAttempts,
		CreatedAt:         n.CreatedAt,
	})
}
