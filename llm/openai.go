// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm adapts a hosted chat-completion model to the search
// engine's generator interface.
//
// The adapter owns everything between the engine and the wire: prompt
// construction, rate limiting, circuit breaking, and parsing the model
// reply back into candidates. The engine stays transport-agnostic.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ponder/search"
)

// secretPath is where container runtimes mount the API key secret.
const secretPath = "/run/secrets/openai_api_key"

// defaultSystemPrompt frames the model as a step proposer. Callers
// with domain knowledge should override it via Config.SystemPrompt.
const defaultSystemPrompt = "You are a careful problem solver. You work step by step, " +
	"proposing several distinct continuations at each point and describing " +
	"exactly how each one changes the working state."

// proposalTemplate is the user message. The reply contract is a JSON
// array so the parser has one shape to recognize.
const proposalTemplate = `Current state:
%s

Propose up to %d distinct next steps from this state.

Respond with a JSON array, one element per step:
[{"thought": "<one sentence describing the step>", "delta": {<only the state keys this step changes, with their new values>}}]

Rules:
- Each thought must be a concrete, different continuation.
- Each delta must change the state; an empty delta is useless.
- Respond with the JSON array only, no commentary.`

// Config configures the OpenAI-backed generator.
type Config struct {
	// APIKey overrides environment and secret lookup. Intended for
	// tests; production deployments use OPENAI_API_KEY or the
	// container secret.
	APIKey string

	// Model selects the chat model. Defaults to OPENAI_MODEL, then
	// "gpt-4o-mini".
	Model string

	// BaseURL overrides the API endpoint, for tests and
	// OpenAI-compatible gateways.
	BaseURL string

	// SystemPrompt replaces the default proposer framing.
	SystemPrompt string

	// Temperature for sampling. Zero means the API default.
	Temperature float32

	// MaxTokens caps each completion. Zero means no explicit cap.
	MaxTokens int

	// RequestsPerMinute throttles proposal calls. Zero disables
	// throttling.
	RequestsPerMinute int

	// Burst is the rate limiter burst size. Defaults to 4, one
	// default-sized dispatch batch.
	Burst int

	// Breaker configures failure protection. Zero value takes
	// DefaultCircuitBreakerConfig.
	Breaker CircuitBreakerConfig
}

// Generator proposes search candidates by prompting a chat model.
//
// Thread Safety: Safe for concurrent use; the engine dispatches
// overlapping Propose calls from its worker pool.
type Generator struct {
	client  *openai.Client
	model   string
	system  string
	temp    float32
	maxTok  int
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

var _ search.Generator = (*Generator)(nil)

// NewGenerator creates a generator backed by the OpenAI chat API.
//
// The API key is resolved from Config.APIKey, then the OPENAI_API_KEY
// environment variable, then the container secret file. Returns
// ErrMissingAPIKey when none is present.
func NewGenerator(cfg Config) (*Generator, error) {
	apiKey, err := resolveAPIKey(cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("no model configured, defaulting to gpt-4o-mini")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 4
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg = DefaultCircuitBreakerConfig()
	}

	slog.Info("initializing OpenAI generator", "model", model,
		"rate_limit_rpm", cfg.RequestsPerMinute)
	return &Generator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		system:  system,
		temp:    cfg.Temperature,
		maxTok:  cfg.MaxTokens,
		limiter: limiter,
		breaker: NewCircuitBreaker(breakerCfg),
	}, nil
}

// resolveAPIKey finds the API key, preferring an explicit value over
// the environment over the container secret.
func resolveAPIKey(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(secretPath)
	if err == nil {
		slog.Info("read OpenAI API key from container secret")
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("%w: set OPENAI_API_KEY or provide %s", ErrMissingAPIKey, secretPath)
}

// Propose implements search.Generator.
//
// The call is throttled by the rate limiter, guarded by the circuit
// breaker, and the reply is parsed into at most maxCandidates
// candidates. A reply the parser cannot recognize returns
// ErrMalformedResponse, which the engine treats like any other
// generator failure.
func (g *Generator) Propose(ctx context.Context, state search.State, maxCandidates int) ([]search.Candidate, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	prompt, err := g.buildPrompt(state, maxCandidates)
	if err != nil {
		return nil, err
	}

	var content string
	err = g.breaker.Execute(ctx, func() error {
		var callErr error
		content, callErr = g.complete(ctx, prompt)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	candidates, err := parseCandidates(content, maxCandidates)
	if err != nil {
		slog.Warn("model reply did not parse", "error", err)
		return nil, err
	}
	slog.Debug("model proposed candidates", "count", len(candidates))
	return candidates, nil
}

// BreakerStats exposes circuit breaker statistics for run reporting.
func (g *Generator) BreakerStats() CircuitBreakerStats {
	return g.breaker.Stats()
}

// buildPrompt renders the state as indented JSON under the proposal
// instructions. Map marshaling sorts keys, so the same state always
// produces the same prompt.
func (g *Generator) buildPrompt(state search.State, maxCandidates int) (string, error) {
	stateJSON, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return fmt.Sprintf(proposalTemplate, stateJSON, maxCandidates), nil
}

// complete performs one chat completion round trip.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if g.temp != 0 {
		req.Temperature = g.temp
	}
	if g.maxTok != 0 {
		req.MaxCompletionTokens = g.maxTok
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	slog.Debug("received completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// wireCandidate is the reply element shape.
type wireCandidate struct {
	Thought string         `json:"thought"`
	Delta   map[string]any `json:"delta"`
}

// parseCandidates converts a model reply into candidates.
//
// Accepts a bare JSON array, a fenced code block containing one, or a
// single JSON object (treated as a one-element array). Anything else
// is ErrMalformedResponse.
func parseCandidates(content string, maxCandidates int) ([]search.Candidate, error) {
	var wire []wireCandidate

	trimmed := strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		// Models wrap JSON in markdown fences despite instructions.
		cleaned := extractJSON(trimmed)
		if cleaned == "" {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, snippet(trimmed))
		}
		if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
			var single wireCandidate
			if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, snippet(trimmed))
			}
			wire = []wireCandidate{single}
		}
	}

	if len(wire) > maxCandidates {
		wire = wire[:maxCandidates]
	}

	candidates := make([]search.Candidate, 0, len(wire))
	for _, w := range wire {
		candidates = append(candidates, search.Candidate{
			Thought: w.Thought,
			Delta:   search.State(w.Delta),
		})
	}
	return candidates, nil
}

// extractJSON pulls a JSON payload out of a markdown-fenced or chatty
// reply. Returns "" when nothing plausible is found.
func extractJSON(response string) string {
	// Look for ```json blocks
	startMarkers := []string{"```json\n", "```json\r\n", "```\n", "```\r\n"}
	endMarker := "```"

	for _, startMarker := range startMarkers {
		startIdx := strings.Index(response, startMarker)
		if startIdx == -1 {
			continue
		}

		contentStart := startIdx + len(startMarker)
		remaining := response[contentStart:]
		endIdx := strings.Index(remaining, endMarker)
		if endIdx == -1 {
			continue
		}

		return strings.TrimSpace(remaining[:endIdx])
	}

	// Try to find a bare JSON array
	startIdx := strings.Index(response, "[")
	endIdx := strings.LastIndex(response, "]")
	if startIdx != -1 && endIdx > startIdx {
		return response[startIdx : endIdx+1]
	}

	// Fall back to a bare JSON object
	startIdx = strings.Index(response, "{")
	endIdx = strings.LastIndex(response, "}")
	if startIdx != -1 && endIdx > startIdx {
		return response[startIdx : endIdx+1]
	}

	return ""
}

// snippet truncates a reply for error messages.
func snippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
