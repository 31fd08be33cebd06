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
	"context"
	"fmt"
	"sync"
)

// Candidate is one proposed continuation of a state: the thought text
// that becomes the child's rationale and the delta merged into the
// parent state to form the child state.
type Candidate struct {
	Thought string `json:"thought"`
	Delta   State  `json:"delta"`
}

// Generator proposes candidate continuations for a state. This is the
// engine's only nondeterministic collaborator, typically an LLM call,
// but any producer of candidates works. It is also the engine's only
// suspension point; everything else is synchronous bookkeeping.
//
// Propose returns between 0 and maxCandidates candidates, or an error.
// Errors and malformed candidates are isolated to the requesting node
// and never abort the run.
//
// Thread Safety: implementations must be safe for concurrent use; the
// engine dispatches up to the configured concurrency limit of calls at
// once.
type Generator interface {
	Propose(ctx context.Context, state State, maxCandidates int) ([]Candidate, error)
}

// MockGenerator is a test implementation of Generator.
//
// Thread Safety: Safe for concurrent use.
type MockGenerator struct {
	// Candidates to return on every call (capped at maxCandidates).
	Candidates []Candidate

	// Err to return (if set).
	Err error

	// ProposeFn allows custom candidate generation. If set, it takes
	// precedence over Candidates and Err.
	ProposeFn func(ctx context.Context, state State, maxCandidates int) ([]Candidate, error)

	mu    sync.Mutex
	calls int
}

// NewMockGenerator creates a mock generator producing count generic
// candidates per call, each extending the state under a distinct key.
func NewMockGenerator(count int) *MockGenerator {
	candidates := make([]Candidate, count)
	for i := range candidates {
		candidates[i] = Candidate{
			Thought: fmt.Sprintf("alternative %d", i+1),
			Delta:   State{fmt.Sprintf("step_%d", i+1): true},
		}
	}
	return &MockGenerator{Candidates: candidates}
}

// Propose implements Generator for testing.
func (m *MockGenerator) Propose(ctx context.Context, state State, maxCandidates int) ([]Candidate, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ProposeFn != nil {
		return m.ProposeFn(ctx, state, maxCandidates)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	out := m.Candidates
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	// Copy so callers cannot mutate the script between calls.
	cp := make([]Candidate, len(out))
	copy(cp, out)
	return cp, nil
}

// Calls returns how many times Propose was invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
