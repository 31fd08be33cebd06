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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Stats is the run-level summary of a store.
type Stats struct {
	TotalNodes   int            `json:"total_nodes"`
	MaxDepth     int            `json:"max_depth"`
	MeanScore    float64        `json:"mean_score"`
	StatusCounts map[Status]int `json:"status_counts"`
}

// statusOrder fixes the rendering order of statuses, so repeated calls
// produce byte-identical output.
var statusOrder = []Status{
	StatusActive, StatusSuccessful, StatusPruned, StatusDeadEnd, StatusExhausted,
}

// Reporter renders read-only summaries of a store. It never mutates
// nodes; with no interleaved mutation, repeated calls yield byte-identical
// output.
type Reporter struct {
	store *Store
	path  *Path
}

// NewReporter creates a reporter over the store.
func NewReporter(store *Store) *Reporter {
	return &Reporter{store: store}
}

// WithPath highlights the given best path in renderings and includes it
// in snapshots.
func (r *Reporter) WithPath(p *Path) *Reporter {
	r.path = p
	return r
}

// Stats computes summary statistics.
func (r *Reporter) Stats() Stats {
	return Stats{
		TotalNodes:   r.store.Len(),
		MaxDepth:     r.store.MaxDepth(),
		MeanScore:    r.store.MeanScore(),
		StatusCounts: r.store.CountByStatus(),
	}
}

// Format returns a human-readable rendering of the tree.
func (r *Reporter) Format() string {
	root := r.store.Root()
	if root == nil {
		return "Empty tree"
	}

	stats := r.Stats()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Nodes: %d, Max Depth: %d, Mean Score: %.2f\n",
		stats.TotalNodes, stats.MaxDepth, stats.MeanScore))
	parts := make([]string, 0, len(statusOrder))
	for _, s := range statusOrder {
		parts = append(parts, fmt.Sprintf("%s: %d", s, stats.StatusCounts[s]))
	}
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString("\n\n")

	r.formatNode(&sb, root, "", true)
	return sb.String()
}

func (r *Reporter) formatNode(sb *strings.Builder, node *Node, prefix string, isLast bool) {
	branch := "├── "
	if isLast {
		branch = "└── "
	}

	stateIcon := " "
	switch node.Status() {
	case StatusSuccessful:
		stateIcon = "✓"
	case StatusDeadEnd:
		stateIcon = "✗"
	case StatusActive:
		stateIcon = "→"
	case StatusPruned:
		stateIcon = "⊘"
	case StatusExhausted:
		stateIcon = "↻"
	}

	bestPathIcon := ""
	if r.path != nil {
		for _, id := range r.path.NodeIDs {
			if id == node.ID {
				bestPathIcon = " ★"
				break
			}
		}
	}

	label := node.Rationale
	if label == "" {
		label = "(root)"
	}
	sb.WriteString(fmt.Sprintf("%s%s[%d] %s (score: %.2f, attempts: %d) %s%s\n",
		prefix, branch, node.ID, truncate(label, 40),
		node.Score(), node.ExpansionAttempts(), stateIcon, bestPathIcon))

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	children := node.Children()
	for i, childID := range children {
		child, ok := r.store.Get(childID)
		if !ok {
			continue
		}
		r.formatNode(sb, child, childPrefix, i == len(children)-1)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// SnapshotSummary is the trailing record of a snapshot artifact.
type SnapshotSummary struct {
	Stats    Stats `json:"stats"`
	BestPath *Path `json:"best_path,omitempty"`
}

// WriteSnapshot serializes the store as one JSON record per node, root
// first in id order, followed by a summary record carrying statistics
// and the best path.
//
// Inputs:
//   - w: destination writer
//
// Outputs:
//   - error: serialization or write failure
func (r *Reporter) WriteSnapshot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, n := range r.store.All() {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("encode node %d: %w", n.ID, err)
		}
	}
	summary := SnapshotSummary{Stats: r.Stats(), BestPath: r.path}
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return bw.Flush()
}

// Snapshot returns the snapshot artifact as bytes.
func (r *Reporter) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteSnapshot(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadSnapshot rebuilds a store and summary from snapshot bytes. The node
// records come root first with parents preceding children, so a single
// pass recreates the tree.
//
// Inputs:
//   - data: bytes produced by WriteSnapshot
//
// Outputs:
//   - *Store: reconstructed arena (states are not restored, only hashes)
//   - *SnapshotSummary: the trailing summary record
//   - error: malformed artifact
func LoadSnapshot(data []byte) (*Store, *SnapshotSummary, error) {
	store := NewStore()
	var summary *SnapshotSummary

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec nodeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, fmt.Errorf("parse snapshot record: %w", err)
		}
		if rec.ID == 0 {
			// Node ids start at 1; a record without one is the summary.
			summary = &SnapshotSummary{}
			if err := json.Unmarshal(line, summary); err != nil {
				return nil, nil, fmt.Errorf("parse snapshot summary: %w", err)
			}
			continue
		}

		n, err := store.Add(rec.ParentID, nil, rec.StateHash, rec.Rationale)
		if err != nil {
			return nil, nil, fmt.Errorf("rebuild node %d: %w", rec.ID, err)
		}
		if n.ID != rec.ID {
			return nil, nil, fmt.Errorf("rebuild node %d: got id %d, records out of order", rec.ID, n.ID)
		}
		n.CreatedAt = rec.CreatedAt
		n.setStatus(rec.Status)
		if rec.Scored {
			n.setScore(rec.Score)
		}
		for i := 0; i < rec.ExpansionAttempts; i++ {
			n.chargeAttempt()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if store.Len() == 0 {
		return nil, nil, fmt.Errorf("snapshot contains no nodes")
	}
	if summary == nil {
		return nil, nil, fmt.Errorf("snapshot missing summary record")
	}
	return store, summary, nil
}
