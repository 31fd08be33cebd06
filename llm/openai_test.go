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

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ponder/search"
)

// completionReply wraps assistant content in a chat completion
// response body.
func completionReply(content string) string {
	quoted, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"chatcmpl-test","object":"chat.completion","created":1700000000,"model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, quoted)
}

// contentServer returns a test server whose model always replies with
// the given assistant content.
func contentServer(content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionReply(content))
	}))
}

// newTestGenerator builds a generator pointed at a test server.
func newTestGenerator(t *testing.T, baseURL string) *Generator {
	t.Helper()
	gen, err := NewGenerator(Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: baseURL + "/v1",
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return gen
}

func TestNewGenerator_MissingAPIKey(t *testing.T) {
	oldKey := os.Getenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", oldKey)
	os.Unsetenv("OPENAI_API_KEY")

	_, err := NewGenerator(Config{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("NewGenerator error = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewGenerator_Defaults(t *testing.T) {
	oldModel := os.Getenv("OPENAI_MODEL")
	defer os.Setenv("OPENAI_MODEL", oldModel)
	os.Unsetenv("OPENAI_MODEL")

	gen, err := NewGenerator(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	if gen.model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", gen.model)
	}
	if gen.system != defaultSystemPrompt {
		t.Errorf("system prompt = %q, want default", gen.system)
	}
	if gen.limiter != nil {
		t.Error("limiter should be nil when RequestsPerMinute is 0")
	}
	if gen.breaker == nil {
		t.Error("breaker should always be configured")
	}
}

func TestNewGenerator_ModelFromEnv(t *testing.T) {
	oldModel := os.Getenv("OPENAI_MODEL")
	defer os.Setenv("OPENAI_MODEL", oldModel)
	os.Setenv("OPENAI_MODEL", "gpt-4.1")

	gen, err := NewGenerator(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if gen.model != "gpt-4.1" {
		t.Errorf("model = %q, want gpt-4.1", gen.model)
	}
}

func TestNewGenerator_RateLimiter(t *testing.T) {
	gen, err := NewGenerator(Config{
		APIKey:            "test-key",
		RequestsPerMinute: 120,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	if gen.limiter == nil {
		t.Fatal("limiter should be configured")
	}
	if got := gen.limiter.Limit(); got != rate.Limit(2.0) {
		t.Errorf("limiter rate = %v, want 2/s", got)
	}
	if got := gen.limiter.Burst(); got != 4 {
		t.Errorf("limiter burst = %d, want 4", got)
	}
}

func TestGenerator_Propose_ParsesArray(t *testing.T) {
	server := contentServer(`[
		{"thought": "add 2 and 3", "delta": {"expr": "2+3"}},
		{"thought": "multiply 2 by 3", "delta": {"expr": "2*3"}}
	]`)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)
	state := search.State{"expr": "", "target": 6}

	candidates, err := gen.Propose(context.Background(), state, 4)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Thought != "add 2 and 3" {
		t.Errorf("Thought = %q", candidates[0].Thought)
	}
	if candidates[0].Delta["expr"] != "2+3" {
		t.Errorf("Delta[expr] = %v, want 2+3", candidates[0].Delta["expr"])
	}
}

func TestGenerator_Propose_CapsAtMaxCandidates(t *testing.T) {
	server := contentServer(`[
		{"thought": "a", "delta": {"x": 1}},
		{"thought": "b", "delta": {"x": 2}},
		{"thought": "c", "delta": {"x": 3}}
	]`)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	candidates, err := gen.Propose(context.Background(), search.State{"x": 0}, 2)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[1].Thought != "b" {
		t.Errorf("second candidate = %q, want b", candidates[1].Thought)
	}
}

func TestGenerator_Propose_FencedReply(t *testing.T) {
	server := contentServer("Here are the steps:\n```json\n[{\"thought\": \"try the door\", \"delta\": {\"room\": \"hall\"}}]\n```\nGood luck!")
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	candidates, err := gen.Propose(context.Background(), search.State{"room": "cell"}, 3)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Delta["room"] != "hall" {
		t.Errorf("Delta[room] = %v, want hall", candidates[0].Delta["room"])
	}
}

func TestGenerator_Propose_SingleObjectReply(t *testing.T) {
	server := contentServer(`{"thought": "only move", "delta": {"step": "forward"}}`)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	candidates, err := gen.Propose(context.Background(), search.State{"step": ""}, 3)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Thought != "only move" {
		t.Errorf("Thought = %q, want only move", candidates[0].Thought)
	}
}

func TestGenerator_Propose_MalformedReply(t *testing.T) {
	server := contentServer("I cannot help with that request.")
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	_, err := gen.Propose(context.Background(), search.State{"x": 1}, 3)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Propose error = %v, want ErrMalformedResponse", err)
	}
	if !strings.Contains(err.Error(), "cannot help") {
		t.Errorf("error should carry a reply snippet, got: %v", err)
	}
}

func TestGenerator_Propose_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-test","object":"chat.completion","choices":[]}`)
	}))
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	_, err := gen.Propose(context.Background(), search.State{"x": 1}, 3)
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("Propose error = %v, want ErrNoChoices", err)
	}
}

func TestGenerator_Propose_RequestShape(t *testing.T) {
	var gotPath atomic.Value
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionReply("[]"))
	}))
	defer server.Close()

	gen, err := NewGenerator(Config{
		APIKey:       "test-key",
		Model:        "test-model",
		BaseURL:      server.URL + "/v1",
		SystemPrompt: "You are a calculator.",
		Temperature:  0.7,
		MaxTokens:    128,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	candidates, err := gen.Propose(context.Background(), search.State{"expr": "", "target": 24}, 3)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates from empty array, want 0", len(candidates))
	}

	if path := gotPath.Load(); path != "/v1/chat/completions" {
		t.Errorf("request path = %v, want /v1/chat/completions", path)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("Model = %q, want test-model", gotReq.Model)
	}
	if gotReq.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", gotReq.Temperature)
	}
	if gotReq.MaxCompletionTokens != 128 {
		t.Errorf("MaxCompletionTokens = %d, want 128", gotReq.MaxCompletionTokens)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "You are a calculator." {
		t.Errorf("system message = %+v", gotReq.Messages[0])
	}
	user := gotReq.Messages[1]
	if user.Role != "user" {
		t.Errorf("second message role = %q, want user", user.Role)
	}
	if !strings.Contains(user.Content, `"target": 24`) {
		t.Errorf("user message should embed the state, got: %s", user.Content)
	}
	if !strings.Contains(user.Content, "up to 3") {
		t.Errorf("user message should pass the candidate cap, got: %s", user.Content)
	}
}

func TestGenerator_Propose_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	gen, err := NewGenerator(Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL + "/v1",
		Breaker: CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			OpenDuration:     time.Hour,
			HalfOpenMax:      1,
		},
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	state := search.State{"expr": "1+1"}
	for i := 0; i < 2; i++ {
		if _, err := gen.Propose(context.Background(), state, 3); err == nil {
			t.Fatalf("call %d should fail against a broken backend", i)
		}
	}

	_, err = gen.Propose(context.Background(), state, 3)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Propose error = %v, want ErrCircuitOpen", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("backend hit %d times, want 2 (open breaker must not call out)", got)
	}

	stats := gen.BreakerStats()
	if stats.State != "open" {
		t.Errorf("breaker state = %s, want open", stats.State)
	}
	if stats.TotalRejections != 1 {
		t.Errorf("TotalRejections = %d, want 1", stats.TotalRejections)
	}
}

func TestGenerator_Propose_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be hit with a canceled context")
	}))
	defer server.Close()

	gen, err := NewGenerator(Config{
		APIKey:            "test-key",
		Model:             "test-model",
		BaseURL:           server.URL + "/v1",
		RequestsPerMinute: 60,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = gen.Propose(ctx, search.State{"x": 1}, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Propose error = %v, want context.Canceled", err)
	}
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    int
		wantErr bool
	}{
		{
			name:    "bare array",
			content: `[{"thought":"a","delta":{"x":1}},{"thought":"b","delta":{"x":2}}]`,
			max:     4,
			want:    2,
		},
		{
			name:    "capped at max",
			content: `[{"thought":"a","delta":{"x":1}},{"thought":"b","delta":{"x":2}},{"thought":"c","delta":{"x":3}}]`,
			max:     2,
			want:    2,
		},
		{
			name:    "fenced json block",
			content: "```json\n[{\"thought\":\"a\",\"delta\":{\"x\":1}}]\n```",
			max:     4,
			want:    1,
		},
		{
			name:    "plain fence",
			content: "```\n[{\"thought\":\"a\",\"delta\":{\"x\":1}}]\n```",
			max:     4,
			want:    1,
		},
		{
			name:    "array inside prose",
			content: `Sure thing: [{"thought":"a","delta":{"x":1}}] hope that helps`,
			max:     4,
			want:    1,
		},
		{
			name:    "single object",
			content: `{"thought":"a","delta":{"x":1}}`,
			max:     4,
			want:    1,
		},
		{
			name:    "empty array",
			content: `[]`,
			max:     4,
			want:    0,
		},
		{
			name:    "no json at all",
			content: "sorry, I refuse",
			max:     4,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, err := parseCandidates(tt.content, tt.max)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCandidates: %v", err)
			}
			if len(candidates) != tt.want {
				t.Errorf("got %d candidates, want %d", len(candidates), tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "json fence",
			response: "```json\n[1, 2]\n```",
			want:     "[1, 2]",
		},
		{
			name:     "plain fence",
			response: "```\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "bare array in prose",
			response: `preamble [{"x":1}] trailer`,
			want:     `[{"x":1}]`,
		},
		{
			name:     "bare object in prose",
			response: `result: {"a": 1} done`,
			want:     `{"a": 1}`,
		},
		{
			name:     "nothing json-like",
			response: "plain refusal text",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.response); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	gen := &Generator{}
	state := search.State{"b": 2, "a": 1, "c": 3}

	first, err := gen.buildPrompt(state, 5)
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	second, err := gen.buildPrompt(state, 5)
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}

	if first != second {
		t.Error("identical states must render identical prompts")
	}
	if !strings.Contains(first, `"a": 1`) {
		t.Errorf("prompt missing state key: %s", first)
	}
}
