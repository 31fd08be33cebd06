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

import "errors"

// Sentinel errors returned by the search engine. Callers should match
// with errors.Is; most are wrapped with run context before returning.
var (
	// ErrInvalidConfig indicates the run configuration failed validation.
	ErrInvalidConfig = errors.New("invalid search config")

	// ErrUnknownStrategy indicates an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown search strategy")

	// ErrBudgetExhausted indicates a resource budget was consumed.
	ErrBudgetExhausted = errors.New("search budget exhausted")

	// ErrNodeLimitExceeded indicates the node budget was reached.
	ErrNodeLimitExceeded = errors.New("node limit exceeded")

	// ErrTimeLimitExceeded indicates the wall clock limit was reached.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")

	// ErrNoViablePath indicates selection found zero successful and zero
	// active nodes. Recovery is the caller's responsibility.
	ErrNoViablePath = errors.New("no viable path")

	// ErrNodeNotFound indicates a node id does not resolve in the store.
	ErrNodeNotFound = errors.New("node not found")

	// ErrRunFinished indicates Run was invoked twice on the same engine.
	// Each engine instance owns exactly one store and one frontier.
	ErrRunFinished = errors.New("run already finished")
)
