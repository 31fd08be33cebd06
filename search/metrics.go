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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// knownDiscardReasons contains the valid candidate discard reasons. Any
// other value is recorded as "unknown" to prevent cardinality explosion.
var knownDiscardReasons = map[string]bool{
	"malformed": true,
	"cycle":     true,
}

// knownGeneratorOutcomes contains the valid generator call outcomes.
var knownGeneratorOutcomes = map[string]bool{
	"ok":    true,
	"error": true,
	"empty": true,
}

func sanitizeLabel(known map[string]bool, value string) string {
	if value == "" || !known[value] {
		return "unknown"
	}
	return value
}

var (
	// searchNodesCreatedTotal counts nodes entering the store by the
	// status they were finalized with at creation.
	//
	// Labels:
	//   - status: "active", "successful", or "dead_end"
	searchNodesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "nodes_created_total",
			Help:      "Total nodes created by status at creation",
		},
		[]string{"status"},
	)

	// searchGeneratorCallsTotal counts generator dispatches by outcome.
	//
	// Labels:
	//   - outcome: "ok", "error", or "empty"
	searchGeneratorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "generator_calls_total",
			Help:      "Total generator calls by outcome",
		},
		[]string{"outcome"},
	)

	// searchGeneratorLatencySeconds measures generator call latency.
	searchGeneratorLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "generator_latency_seconds",
			Help:      "Generator call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// searchCandidatesDiscardedTotal counts candidates rejected before
	// node creation.
	//
	// Labels:
	//   - reason: "malformed" or "cycle"
	searchCandidatesDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "candidates_discarded_total",
			Help:      "Total candidates discarded before node creation by reason",
		},
		[]string{"reason"},
	)

	// searchNodesPrunedTotal counts pruner demotions.
	searchNodesPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "nodes_pruned_total",
			Help:      "Total nodes demoted by the pruner",
		},
	)

	// searchBacktracksTotal counts Exhausted nodes revived to Active.
	searchBacktracksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "backtracks_total",
			Help:      "Total exhausted nodes revived for another attempt",
		},
	)

	// searchActiveNodes tracks the current Active node count.
	searchActiveNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "active_nodes",
			Help:      "Current number of Active nodes",
		},
	)

	// searchRunDurationSeconds measures complete run duration by
	// termination reason.
	//
	// Labels:
	//   - reason: termination reason (closed set, see TerminationReason)
	searchRunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ponder",
			Subsystem: "search",
			Name:      "run_duration_seconds",
			Help:      "Search run duration in seconds by termination reason",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"reason"},
	)
)

// recordNodeCreated records a node creation metric.
//
// Thread Safety: Safe for concurrent use.
func recordNodeCreated(status Status) {
	switch status {
	case StatusActive, StatusSuccessful, StatusDeadEnd:
		searchNodesCreatedTotal.WithLabelValues(string(status)).Inc()
	default:
		searchNodesCreatedTotal.WithLabelValues("unknown").Inc()
	}
}

// recordGeneratorCall records one generator dispatch outcome and latency.
//
// Thread Safety: Safe for concurrent use.
func recordGeneratorCall(outcome string, seconds float64) {
	searchGeneratorCallsTotal.WithLabelValues(sanitizeLabel(knownGeneratorOutcomes, outcome)).Inc()
	searchGeneratorLatencySeconds.Observe(seconds)
}

// recordCandidateDiscarded records a rejected candidate.
//
// Thread Safety: Safe for concurrent use.
func recordCandidateDiscarded(reason string) {
	searchCandidatesDiscardedTotal.WithLabelValues(sanitizeLabel(knownDiscardReasons, reason)).Inc()
}

// recordNodePruned records a pruner demotion.
//
// Thread Safety: Safe for concurrent use.
func recordNodePruned() {
	searchNodesPrunedTotal.Inc()
}

// recordBacktrack records a node revival.
//
// Thread Safety: Safe for concurrent use.
func recordBacktrack() {
	searchBacktracksTotal.Inc()
}

// updateActiveNodes sets the Active node gauge.
//
// Thread Safety: Safe for concurrent use.
func updateActiveNodes(count int) {
	searchActiveNodes.Set(float64(count))
}

// recordRunComplete records a finished run.
//
// Thread Safety: Safe for concurrent use.
func recordRunComplete(reason TerminationReason, seconds float64) {
	label := string(reason)
	switch reason {
	case ReasonGoalReached, ReasonFrontierEmpty, ReasonBudgetExhausted, ReasonDeadlineExceeded, ReasonCanceled:
	default:
		label = "unknown"
	}
	searchRunDurationSeconds.WithLabelValues(label).Observe(seconds)
}
