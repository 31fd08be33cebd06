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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// AuditAction represents an action type in the audit log.
type AuditAction string

const (
	// AuditActionDispatch records a node being handed to the generator.
	AuditActionDispatch AuditAction = "dispatch"

	// AuditActionApply records a child node entering the store.
	AuditActionApply AuditAction = "apply"

	// AuditActionDiscard records a candidate rejected before creation
	// (malformed payload or ancestor cycle).
	AuditActionDiscard AuditAction = "discard"

	// AuditActionPrune records a node demoted by the pruner.
	AuditActionPrune AuditAction = "prune"

	// AuditActionExhaust records a node marked Exhausted.
	AuditActionExhaust AuditAction = "exhaust"

	// AuditActionBacktrack records an Exhausted node revived to Active.
	AuditActionBacktrack AuditAction = "backtrack"

	// AuditActionSelect records final path selection.
	AuditActionSelect AuditAction = "select"
)

// String returns the string representation.
func (a AuditAction) String() string {
	return string(a)
}

// AuditEntry records one bookkeeping action for the audit trail.
//
// Each entry is immutable once recorded. The hash chain ensures the
// integrity of the audit log can be verified.
type AuditEntry struct {
	// Seq is the zero-based position of this entry in the log.
	Seq int64 `json:"seq"`

	// Timestamp when this entry was created (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Action is the type of operation performed.
	Action AuditAction `json:"action"`

	// NodeID identifies the affected node (0 for actions with no node,
	// such as a discard before creation).
	NodeID int64 `json:"node_id"`

	// Depth is the tree depth associated with the action.
	Depth int `json:"depth"`

	// StateHash is the state hash of the affected node or candidate.
	StateHash string `json:"state_hash,omitempty"`

	// Score is the score associated with this action.
	Score float64 `json:"score,omitempty"`

	// Details contains additional action-specific information.
	Details string `json:"details,omitempty"`

	// ChainHash is the running hash at this entry (computed during
	// Record).
	ChainHash string `json:"chain_hash,omitempty"`
}

// NewAuditEntry creates a new audit entry.
//
// Inputs:
//   - action: The action being recorded.
//   - nodeID: ID of the affected node.
//
// Outputs:
//   - *AuditEntry: A new entry with timestamp set.
func NewAuditEntry(action AuditAction, nodeID int64) *AuditEntry {
	return &AuditEntry{
		Timestamp: time.Now().UnixMilli(),
		Action:    action,
		NodeID:    nodeID,
	}
}

// WithDepth sets the depth.
func (e *AuditEntry) WithDepth(depth int) *AuditEntry {
	e.Depth = depth
	return e
}

// WithStateHash sets the state hash.
func (e *AuditEntry) WithStateHash(hash string) *AuditEntry {
	e.StateHash = hash
	return e
}

// WithScore sets the score.
func (e *AuditEntry) WithScore(score float64) *AuditEntry {
	e.Score = score
	return e
}

// WithDetails sets the details.
func (e *AuditEntry) WithDetails(details string) *AuditEntry {
	e.Details = details
	return e
}

// genesisHash is the initial hash value for the audit chain.
const genesisHash = "genesis"

// AuditLog maintains an immutable audit trail with hash chain
// verification.
//
// The audit log uses a hash chain where each entry includes a hash of
// itself combined with the previous hash. This allows verification of
// the log's integrity.
//
// Thread Safety: Safe for concurrent use.
type AuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
	hash    string
}

// NewAuditLog creates a new audit log.
//
// Outputs:
//   - *AuditLog: An empty audit log with genesis hash.
//
// Thread Safety: The returned log is safe for concurrent use.
func NewAuditLog() *AuditLog {
	return &AuditLog{
		entries: make([]AuditEntry, 0),
		hash:    genesisHash,
	}
}

// Record adds an entry to the audit log.
//
// The entry's sequence number is assigned here, its timestamp is set if
// missing, and a chain hash is computed over the previous hash and the
// entry data.
//
// Inputs:
//   - entry: The audit entry to record.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) Record(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Seq = int64(len(l.entries))
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	// Compute chain hash
	h := sha256.New()
	h.Write([]byte(l.hash))
	data, _ := json.Marshal(entry)
	h.Write(data)
	l.hash = hex.EncodeToString(h.Sum(nil))

	// Set chain hash on entry
	entry.ChainHash = l.hash

	l.entries = append(l.entries, entry)
}

// Verify checks the integrity of the audit log.
//
// Recomputes the hash chain from genesis and verifies it matches the
// current hash. Returns false if any tampering is detected.
//
// Outputs:
//   - bool: True if the log is intact, false if tampered.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) Verify() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hash := genesisHash
	for _, entry := range l.entries {
		// Make a copy without the chain hash for verification
		entryCopy := entry
		entryCopy.ChainHash = ""

		h := sha256.New()
		h.Write([]byte(hash))
		data, _ := json.Marshal(entryCopy)
		h.Write(data)
		hash = hex.EncodeToString(h.Sum(nil))

		// Verify this entry's chain hash matches
		if entry.ChainHash != hash {
			return false
		}
	}

	return hash == l.hash
}

// Entries returns a copy of all audit entries.
//
// Outputs:
//   - []AuditEntry: A copy of all entries.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]AuditEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

// Len returns the number of entries.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// CurrentHash returns the current chain hash.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) CurrentHash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}

// EntriesByAction returns entries with the given action type.
//
// Inputs:
//   - action: The action type to filter by.
//
// Outputs:
//   - []AuditEntry: Entries with the given action, in log order.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) EntriesByAction(action AuditAction) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]AuditEntry, 0)
	for _, entry := range l.entries {
		if entry.Action == action {
			result = append(result, entry)
		}
	}
	return result
}

// EntriesByNode returns entries for a specific node.
//
// Inputs:
//   - nodeID: The node ID to filter by.
//
// Outputs:
//   - []AuditEntry: Entries for the given node, in log order.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) EntriesByNode(nodeID int64) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]AuditEntry, 0)
	for _, entry := range l.entries {
		if entry.NodeID == nodeID {
			result = append(result, entry)
		}
	}
	return result
}

// Summary returns a summary of the audit log.
//
// Outputs:
//   - AuditSummary: Summary statistics.
//
// Thread Safety: Safe for concurrent use.
func (l *AuditLog) Summary() AuditSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := AuditSummary{
		TotalEntries: len(l.entries),
		ActionCounts: make(map[AuditAction]int),
	}

	if len(l.entries) > 0 {
		summary.FirstEntry = l.entries[0].Timestamp
		summary.LastEntry = l.entries[len(l.entries)-1].Timestamp
	}

	for _, entry := range l.entries {
		summary.ActionCounts[entry.Action]++
	}

	return summary
}

// AuditSummary contains summary statistics for the audit log.
type AuditSummary struct {
	TotalEntries int                 `json:"total_entries"`
	FirstEntry   int64               `json:"first_entry,omitempty"` // Unix milliseconds UTC
	LastEntry    int64               `json:"last_entry,omitempty"`  // Unix milliseconds UTC
	ActionCounts map[AuditAction]int `json:"action_counts"`
}
