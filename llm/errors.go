// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import "errors"

var (
	// ErrMissingAPIKey indicates no API key was found in the config,
	// environment, or container secret.
	ErrMissingAPIKey = errors.New("openai api key not configured")

	// ErrMalformedResponse indicates the model reply could not be
	// parsed into candidates.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrCircuitOpen indicates the circuit breaker rejected the call.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrNoChoices indicates the API returned an empty choice list.
	ErrNoChoices = errors.New("model returned no choices")
)
