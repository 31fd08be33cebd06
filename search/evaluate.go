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
	"math"
)

// SubScoreFunc computes one scoring dimension for a node, expected in
// [0,1]. Out-of-range and NaN results are clamped before weighting, so a
// misbehaving provider cannot push a node score outside the bound.
type SubScoreFunc func(n *Node) float64

// Weights are the evaluator's mixing weights. They must be non-negative
// and sum to 1, which keeps the weighted sum of [0,1] sub-scores in
// [0,1].
type Weights struct {
	Consistency float64 `yaml:"consistency" json:"consistency"`
	Progress    float64 `yaml:"progress" json:"progress"`
	Novelty     float64 `yaml:"novelty" json:"novelty"`
}

// DefaultWeights returns the default score mix.
func DefaultWeights() Weights {
	return Weights{Consistency: 0.4, Progress: 0.4, Novelty: 0.2}
}

// Validate checks the weight constraints.
func (w Weights) Validate() error {
	if w.Consistency < 0 || w.Progress < 0 || w.Novelty < 0 {
		return fmt.Errorf("%w: weights must be non-negative, got %+v", ErrInvalidConfig, w)
	}
	sum := w.Consistency + w.Progress + w.Novelty
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: weights must sum to 1, got %.6f", ErrInvalidConfig, sum)
	}
	return nil
}

// Heuristics bundles the pluggable sub-score providers. Nil fields fall
// back to the engine defaults (see DefaultHeuristics).
type Heuristics struct {
	Consistency SubScoreFunc
	Progress    SubScoreFunc
	Novelty     SubScoreFunc
}

// Evaluator computes node scores as the weighted sum of three sub-scores:
//
//	score = w1*consistency + w2*progress + w3*novelty
//
// The score is deterministic given identical sub-scores and always lands
// in [0,1].
type Evaluator struct {
	weights Weights
	h       Heuristics
}

// NewEvaluator creates an evaluator with validated weights. Nil heuristic
// fields are filled from defaults bound to the given store and depth
// ceiling.
//
// Inputs:
//   - weights: mixing weights, must pass Validate
//   - h: sub-score providers, nil fields defaulted
//   - store: arena used by the default novelty heuristic
//   - maxDepth: depth ceiling used by the default progress heuristic
//
// Outputs:
//   - *Evaluator: ready to score nodes
//   - error: weight validation failure
func NewEvaluator(weights Weights, h Heuristics, store *Store, maxDepth int) (*Evaluator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	defaults := DefaultHeuristics(store, maxDepth)
	if h.Consistency == nil {
		h.Consistency = defaults.Consistency
	}
	if h.Progress == nil {
		h.Progress = defaults.Progress
	}
	if h.Novelty == nil {
		h.Novelty = defaults.Novelty
	}
	return &Evaluator{weights: weights, h: h}, nil
}

// Score evaluates the node and records the score on it.
func (e *Evaluator) Score(n *Node) float64 {
	score := e.weights.Consistency*clamp01(e.h.Consistency(n)) +
		e.weights.Progress*clamp01(e.h.Progress(n)) +
		e.weights.Novelty*clamp01(e.h.Novelty(n))
	score = clamp01(score)
	n.setScore(score)
	return score
}

// Weights returns the evaluator's mixing weights.
func (e *Evaluator) Weights() Weights {
	return e.weights
}

// DefaultHeuristics returns domain-agnostic sub-score providers:
//
//   - consistency: constant 1. The engine cannot judge semantic
//     consistency of an opaque state; domains override this.
//   - progress: depth scaled against the ceiling. Deeper nodes have
//     accumulated more of the path.
//   - novelty: 1 minus the fraction of siblings sharing this node's
//     state hash. Duplicated proposals score low.
func DefaultHeuristics(store *Store, maxDepth int) Heuristics {
	return Heuristics{
		Consistency: func(n *Node) float64 { return 1.0 },
		Progress: func(n *Node) float64 {
			if maxDepth <= 0 {
				return 0
			}
			return float64(n.Depth) / float64(maxDepth)
		},
		Novelty: func(n *Node) float64 {
			if store == nil || n.ParentID == 0 {
				return 1.0
			}
			parent, ok := store.Get(n.ParentID)
			if !ok {
				return 1.0
			}
			siblings := parent.Children()
			if len(siblings) <= 1 {
				return 1.0
			}
			dupes := 0
			for _, id := range siblings {
				if id == n.ID {
					continue
				}
				sib, ok := store.Get(id)
				if ok && sib.StateHash == n.StateHash {
					dupes++
				}
			}
			return 1.0 - float64(dupes)/float64(len(siblings)-1)
		},
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
