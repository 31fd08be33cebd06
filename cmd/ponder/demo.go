// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/ponder/search"
)

// demoEpsilon is the tolerance for float comparisons in the demo
// domain. Division results make exact equality unreliable.
const demoEpsilon = 1e-6

// demoGenerator proposes moves for the countdown arithmetic demo.
// Each move picks two remaining numbers, applies an operator, and
// replaces the pair with the result. The generator is deterministic,
// so --demo runs exercise the whole engine without a model backend.
type demoGenerator struct{}

var _ search.Generator = (*demoGenerator)(nil)

func newDemoGenerator() *demoGenerator {
	return &demoGenerator{}
}

// Propose enumerates the pairwise combinations of the remaining
// numbers, ranks them by distance from the target, and returns the
// closest maxCandidates.
func (g *demoGenerator) Propose(ctx context.Context, state search.State, maxCandidates int) ([]search.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	numbers, err := stateNumbers(state)
	if err != nil {
		return nil, err
	}
	if len(numbers) < 2 {
		return nil, nil
	}
	target, _ := stateFloat(state, "target")
	expr, _ := state["expr"].(string)

	moves := demoMoves(numbers)
	sort.SliceStable(moves, func(i, j int) bool {
		di := math.Abs(moves[i].result - target)
		dj := math.Abs(moves[j].result - target)
		if di != dj {
			return di < dj
		}
		return moves[i].step < moves[j].step
	})
	if maxCandidates > 0 && len(moves) > maxCandidates {
		moves = moves[:maxCandidates]
	}

	out := make([]search.Candidate, 0, len(moves))
	for _, m := range moves {
		chain := m.step
		if expr != "" {
			chain = expr + "; " + m.step
		}
		out = append(out, search.Candidate{
			Thought: "combine " + m.step,
			Delta: search.State{
				"numbers": floatsToAny(m.remain),
				"expr":    chain,
			},
		})
	}
	return out, nil
}

// demoMove is one pairwise combination: the numbers left after
// applying it, the value it produced, and the step rendered as text.
type demoMove struct {
	step   string
	result float64
	remain []float64
}

// demoMoves builds every combination of two remaining numbers under
// the four operators. Mirrored steps that render identically, such as
// "3 - 3 = 0" from either operand order, appear once.
func demoMoves(numbers []float64) []demoMove {
	var moves []demoMove
	seen := make(map[string]bool)
	for i := 0; i < len(numbers); i++ {
		for j := i + 1; j < len(numbers); j++ {
			rest := make([]float64, 0, len(numbers)-2)
			for k := 0; k < len(numbers); k++ {
				if k != i && k != j {
					rest = append(rest, numbers[k])
				}
			}
			for _, c := range combinations(numbers[i], numbers[j]) {
				if seen[c.step] {
					continue
				}
				seen[c.step] = true
				remain := make([]float64, 0, len(rest)+1)
				remain = append(remain, rest...)
				remain = append(remain, c.result)
				moves = append(moves, demoMove{step: c.step, result: c.result, remain: remain})
			}
		}
	}
	return moves
}

type combination struct {
	step   string
	result float64
}

// combinations applies +, *, -, and / to a pair. Subtraction and
// division are tried in both operand orders; division by a value
// within demoEpsilon of zero is skipped.
func combinations(a, b float64) []combination {
	fa, fb := fmtNum(a), fmtNum(b)
	out := []combination{
		{fmt.Sprintf("%s + %s = %s", fa, fb, fmtNum(a+b)), a + b},
		{fmt.Sprintf("%s * %s = %s", fa, fb, fmtNum(a*b)), a * b},
		{fmt.Sprintf("%s - %s = %s", fa, fb, fmtNum(a-b)), a - b},
		{fmt.Sprintf("%s - %s = %s", fb, fa, fmtNum(b-a)), b - a},
	}
	if math.Abs(b) > demoEpsilon {
		out = append(out, combination{fmt.Sprintf("%s / %s = %s", fa, fb, fmtNum(a/b)), a / b})
	}
	if math.Abs(a) > demoEpsilon {
		out = append(out, combination{fmt.Sprintf("%s / %s = %s", fb, fa, fmtNum(b/a)), b / a})
	}
	return out
}

// demoGoal reports success when a single number within tolerance of
// the target remains.
func demoGoal(target float64) search.GoalFunc {
	return func(s search.State) bool {
		numbers, err := stateNumbers(s)
		if err != nil || len(numbers) != 1 {
			return false
		}
		return math.Abs(numbers[0]-target) < demoEpsilon
	}
}

// demoHeuristics scores demo nodes. Progress tracks how many numbers
// have been consumed relative to the starting count; consistency
// tracks how close the closest remaining number is to the target.
func demoHeuristics(target float64, initialCount int) search.Heuristics {
	scale := math.Abs(target)
	if scale < 1 {
		scale = 1
	}
	return search.Heuristics{
		Consistency: func(n *search.Node) float64 {
			numbers, err := stateNumbers(n.State)
			if err != nil || len(numbers) == 0 {
				return 0
			}
			best := math.Abs(numbers[0] - target)
			for _, v := range numbers[1:] {
				if d := math.Abs(v - target); d < best {
					best = d
				}
			}
			return 1 / (1 + best/scale)
		},
		Progress: func(n *search.Node) float64 {
			if initialCount <= 1 {
				return 1
			}
			numbers, err := stateNumbers(n.State)
			if err != nil {
				return 0
			}
			done := float64(initialCount - len(numbers))
			return math.Min(1, math.Max(0, done/float64(initialCount-1)))
		},
	}
}

// demoInitialState builds the root state for a demo run.
func demoInitialState(numbers []float64, target float64) search.State {
	return search.State{
		"numbers": floatsToAny(numbers),
		"target":  target,
		"expr":    "",
	}
}

// parseNumbers parses a comma separated list such as "2,3,4".
func parseNumbers(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out = append(out, f)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("need at least two numbers, got %d", len(out))
	}
	return out, nil
}

// stateNumbers pulls the remaining numbers out of a demo state. JSON
// round trips turn numeric slices into []any, so both layouts are
// accepted.
func stateNumbers(state search.State) ([]float64, error) {
	raw, ok := state["numbers"]
	if !ok {
		return nil, fmt.Errorf("demo state missing %q", "numbers")
	}
	switch vals := raw.(type) {
	case []float64:
		out := make([]float64, len(vals))
		copy(out, vals)
		return out, nil
	case []any:
		out := make([]float64, 0, len(vals))
		for _, v := range vals {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("demo state: non-numeric entry %v", v)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("demo state: numbers has unexpected type %T", raw)
	}
}

func stateFloat(state search.State, key string) (float64, bool) {
	return toFloat(state[key])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func floatsToAny(numbers []float64) []any {
	out := make([]any, len(numbers))
	for i, v := range numbers {
		out[i] = v
	}
	return out
}

// fmtNum renders a float without trailing zeros, so "6" not "6.000000".
func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
