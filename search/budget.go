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
	"sync/atomic"
	"time"
)

// BudgetConfig contains the run-wide resource limits.
type BudgetConfig struct {
	MaxNodes  int           // Maximum nodes in the store (0 = unlimited)
	TimeLimit time.Duration // Wall clock limit (0 = unlimited)
}

// Budget tracks resource consumption during a search run. Limits are
// checked before a dispatch batch goes out; work already in flight when a
// limit trips is still applied, which is why the node count may finish
// slightly above MaxNodes.
//
// Thread Safety: Safe for concurrent use.
type Budget struct {
	config    BudgetConfig
	startTime time.Time

	// Atomic counters
	nodesCreated   int64
	generatorCalls int64

	mu          sync.RWMutex
	exhausted   bool
	exhaustedBy string // Which limit was hit
}

// NewBudget creates a budget tracker. The clock starts immediately.
//
// Inputs:
//   - config: Budget configuration
//
// Outputs:
//   - *Budget: Budget tracker, ready to use
//
// Thread Safety: The returned budget is safe for concurrent use.
func NewBudget(config BudgetConfig) *Budget {
	return &Budget{
		config:    config,
		startTime: time.Now(),
	}
}

// Config returns the budget configuration.
func (b *Budget) Config() BudgetConfig {
	return b.config
}

// NodesCreated returns the number of nodes recorded so far.
func (b *Budget) NodesCreated() int64 {
	return atomic.LoadInt64(&b.nodesCreated)
}

// RecordNodeCreated records one node creation and returns the new total.
func (b *Budget) RecordNodeCreated() int64 {
	return atomic.AddInt64(&b.nodesCreated, 1)
}

// GeneratorCalls returns the number of generator calls recorded so far.
func (b *Budget) GeneratorCalls() int64 {
	return atomic.LoadInt64(&b.generatorCalls)
}

// RecordGeneratorCall records one generator call and returns the new
// total.
func (b *Budget) RecordGeneratorCall() int64 {
	return atomic.AddInt64(&b.generatorCalls, 1)
}

// Elapsed returns time elapsed since the budget was created.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.startTime)
}

// CheckDispatch checks all limits ahead of a dispatch batch.
//
// Outputs:
//   - error: ErrTimeLimitExceeded or ErrNodeLimitExceeded when a limit
//     is reached, nil while dispatching may continue
func (b *Budget) CheckDispatch() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exhausted {
		return b.exhaustedErr()
	}

	// Time limit
	if b.config.TimeLimit > 0 && time.Since(b.startTime) >= b.config.TimeLimit {
		b.exhausted = true
		b.exhaustedBy = "time"
		return ErrTimeLimitExceeded
	}

	// Node limit
	if b.config.MaxNodes > 0 && atomic.LoadInt64(&b.nodesCreated) >= int64(b.config.MaxNodes) {
		b.exhausted = true
		b.exhaustedBy = "nodes"
		return ErrNodeLimitExceeded
	}

	return nil
}

// exhaustedErr maps the recorded limit back to its sentinel. Callers must
// hold mu.
func (b *Budget) exhaustedErr() error {
	switch b.exhaustedBy {
	case "time":
		return ErrTimeLimitExceeded
	case "nodes":
		return ErrNodeLimitExceeded
	default:
		return ErrBudgetExhausted
	}
}

// Exhausted returns whether the budget has been exhausted.
func (b *Budget) Exhausted() bool {
	b.mu.RLock()
	if b.exhausted {
		b.mu.RUnlock()
		return true
	}
	b.mu.RUnlock()

	return b.CheckDispatch() != nil
}

// ExhaustedBy returns which limit caused exhaustion (empty if not
// exhausted).
func (b *Budget) ExhaustedBy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exhaustedBy
}

// Remaining returns the remaining budget as a struct. Values can go
// negative once a limit has been overshot by in-flight work.
func (b *Budget) Remaining() BudgetRemaining {
	return BudgetRemaining{
		Nodes: b.config.MaxNodes - int(b.NodesCreated()),
		Time:  b.config.TimeLimit - b.Elapsed(),
	}
}

// BudgetRemaining contains remaining budget values.
type BudgetRemaining struct {
	Nodes int           `json:"nodes"`
	Time  time.Duration `json:"time"`
}

// String returns a human-readable budget status.
func (b *Budget) String() string {
	exhaustedStatus := ""
	if b.Exhausted() {
		exhaustedStatus = fmt.Sprintf(" [EXHAUSTED by %s]", b.ExhaustedBy())
	}

	return fmt.Sprintf("Budget{nodes=%d/%d, time=%v/%v, generator_calls=%d}%s",
		b.NodesCreated(), b.config.MaxNodes,
		b.Elapsed().Round(time.Millisecond), b.config.TimeLimit,
		b.GeneratorCalls(),
		exhaustedStatus)
}

// UsageReport contains a snapshot of budget consumption.
type UsageReport struct {
	Elapsed        time.Duration   `json:"elapsed"`
	NodesCreated   int64           `json:"nodes_created"`
	GeneratorCalls int64           `json:"generator_calls"`
	Exhausted      bool            `json:"exhausted"`
	ExhaustedBy    string          `json:"exhausted_by,omitempty"`
	Remaining      BudgetRemaining `json:"remaining"`
}

// Report generates a usage report.
func (b *Budget) Report() UsageReport {
	return UsageReport{
		Elapsed:        b.Elapsed(),
		NodesCreated:   b.NodesCreated(),
		GeneratorCalls: b.GeneratorCalls(),
		Exhausted:      b.Exhausted(),
		ExhaustedBy:    b.ExhaustedBy(),
		Remaining:      b.Remaining(),
	}
}

// Reset resets the counters and the clock but keeps the configuration.
func (b *Budget) Reset() {
	atomic.StoreInt64(&b.nodesCreated, 0)
	atomic.StoreInt64(&b.generatorCalls, 0)

	b.mu.Lock()
	b.exhausted = false
	b.exhaustedBy = ""
	b.startTime = time.Now()
	b.mu.Unlock()
}
