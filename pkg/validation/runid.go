// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database keys, file paths, or subprocess calls. Using these validators
// prevents injection attacks (key injection, command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// runIDPattern matches valid run identifiers.
// Allows: letters, digits, hyphens (UUID style), underscores, dots.
// Max length: 64 characters (a UUID is 36)
var runIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]{0,63}$`)

// ValidateRunID validates a run identifier before it is used as a
// storage key or embedded in a file name.
//
// Valid run ids:
//   - 1-64 characters
//   - Letters a-z, A-Z and digits 0-9
//   - Hyphens (-) as produced by UUID generation
//   - Underscores (_) and dots (.) for human-assigned names
//   - Must start with a letter or digit
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateRunID(runID); err != nil {
//	    return nil, fmt.Errorf("invalid run id: %w", err)
//	}
//	// Safe to use as a Badger key segment
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("invalid run id format: %q (must be 1-64 alphanumeric chars, hyphens, underscores, or dots)", id)
	}

	return nil
}

// ValidateRunIDs validates multiple run identifiers.
// Returns an error listing all invalid ids if any fail validation.
func ValidateRunIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateRunID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid run ids: %v", invalid)
	}
	return nil
}

// SanitizeRunID normalizes and validates a run identifier.
// Returns the lowercase id if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeID, err := validation.SanitizeRunID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is lowercase and validated
func SanitizeRunID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateRunID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
