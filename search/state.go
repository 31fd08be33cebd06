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
	"fmt"
)

// State is the opaque, caller-defined payload accumulated along a path:
// the facts and conclusions that make a node what it is. The engine never
// inspects keys or values; it only merges deltas and hashes states for
// cycle detection.
type State map[string]any

// Clone returns a shallow copy of the state. A nil state clones to an
// empty, non-nil map so callers can always write to the result.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new state combining the receiver with delta; delta keys
// overwrite. Neither input is mutated, so parent states stay immutable
// once a node is committed.
func (s State) Merge(delta State) State {
	out := s.Clone()
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// StateHasher computes a stable digest over a state. Equal states must
// hash equal; the engine compares hashes against every ancestor to detect
// cycles before committing a child.
//
// Implementations must be safe for concurrent use.
type StateHasher interface {
	Hash(s State) (string, error)
}

// jsonStateHasher hashes the canonical JSON encoding of a state.
// encoding/json sorts map keys, which makes the digest order-independent
// for any JSON-representable state.
type jsonStateHasher struct{}

// NewJSONStateHasher returns the default state hasher: SHA-256 over the
// canonical JSON encoding. States containing values that cannot be
// marshaled to JSON produce an error; callers with such states should
// supply their own StateHasher.
func NewJSONStateHasher() StateHasher {
	return jsonStateHasher{}
}

// Hash implements StateHasher.
func (jsonStateHasher) Hash(s State) (string, error) {
	if s == nil {
		s = State{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("hash state: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// shortHash truncates a state hash for logs and tree rendering.
func shortHash(h string) string {
	if len(h) <= 8 {
		return h
	}
	return h[:8]
}
