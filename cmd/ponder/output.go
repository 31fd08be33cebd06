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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/ponder/pkg/logging"
	"github.com/AleutianAI/ponder/pkg/ux"
	"github.com/AleutianAI/ponder/search"
	storage "github.com/AleutianAI/ponder/storage/badger"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess    = 0 // Run completed with a viable path
	CLIExitIncomplete = 1 // Run finished without one: over budget or no viable leaf
	CLIExitError      = 2 // The command itself failed
)

// CommandResult wraps --json command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OutputJSON writes structured data as indented JSON to stdout.
func OutputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputResult emits the JSON envelope for a finished command.
func OutputResult(cmd string, start time.Time, data any, err error) {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    cmd,
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
		Data:       data,
	}
	if err != nil {
		result.Error = err.Error()
	}
	if encErr := OutputJSON(result); encErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
	}
}

// buildLogger assembles the CLI logger. Machine personality keeps
// stderr quiet so stdout stays parseable.
func buildLogger() *logging.Logger {
	level := logging.LevelInfo
	if verboseFlag {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  logDirFlag,
		Service: "cli",
		Quiet:   ux.GetPersonality().Level == ux.PersonalityMachine && !verboseFlag,
	})
}

// storeDir resolves the artifact store location: the --store flag,
// then $PONDER_STORE, then ~/.ponder/runs.
func storeDir() string {
	if storePath != "" {
		return storePath
	}
	if env := os.Getenv("PONDER_STORE"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ponder", "runs")
	}
	return filepath.Join(home, ".ponder", "runs")
}

// openStore opens the artifact store.
func openStore(logger *logging.Logger) (*storage.Store, error) {
	cfg := storage.DefaultConfig()
	cfg.Path = storeDir()
	if logger != nil {
		cfg.Logger = logger.Slog()
	}
	return storage.Open(cfg)
}

// buildArtifact packages a finished run for the store.
func buildArtifact(engine *search.Engine, result *search.Result) (storage.Artifact, error) {
	snapshot, err := search.NewReporter(engine.Store()).WithPath(result.Path).Snapshot()
	if err != nil {
		return storage.Artifact{}, fmt.Errorf("building snapshot: %w", err)
	}
	art := storage.Artifact{
		RunID:      result.RunID,
		Reason:     string(result.Reason),
		Incomplete: result.Incomplete,
		Config:     engine.Config(),
		Stats:      result.Stats,
		Snapshot:   snapshot,
	}
	if result.Path != nil {
		art.BestScore = result.Path.Score
	}
	return art, nil
}

// printRunResult renders the outcome of a search run for a human.
func printRunResult(result *search.Result, engine *search.Engine, showTree bool) {
	fmt.Println()
	switch {
	case result.Path != nil && !result.Incomplete:
		ux.Title("Search complete")
	case result.Path != nil:
		ux.Title("Search stopped early")
	default:
		ux.Title("Search found no viable path")
	}
	ux.Info(fmt.Sprintf("run %s finished: %s", result.RunID, result.Reason))
	ux.Info(fmt.Sprintf("explored %d nodes to depth %d in %s",
		result.Stats.TotalNodes, result.Stats.MaxDepth,
		result.Usage.Elapsed.Round(time.Millisecond)))
	if result.Path != nil {
		ux.Info(fmt.Sprintf("best path %s scored %s",
			formatPath(result.Path), ux.ScoreBadge(result.Path.Score)))
	}
	if n := engine.AuditLog().Len(); n > 0 {
		if engine.AuditLog().Verify() {
			ux.Muted(fmt.Sprintf("audit chain verified (%d entries)", n))
		} else {
			ux.Warning("audit chain verification failed")
		}
	}
	if showTree {
		fmt.Println()
		fmt.Println(search.NewReporter(engine.Store()).WithPath(result.Path).Format())
	}
	ux.Summary(result.Stats.StatusCounts[search.StatusSuccessful],
		result.Stats.StatusCounts[search.StatusPruned],
		result.Stats.TotalNodes)
}

// formatPath renders a path's node ids like "1 → 4 → 9".
func formatPath(p *search.Path) string {
	parts := make([]string, len(p.NodeIDs))
	for i, id := range p.NodeIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, " "+string(ux.IconArrow)+" ")
}

// exitCodeFor maps a run outcome to the CLI exit code.
func exitCodeFor(result *search.Result) int {
	if result.Path != nil && !result.Incomplete {
		return CLIExitSuccess
	}
	return CLIExitIncomplete
}
