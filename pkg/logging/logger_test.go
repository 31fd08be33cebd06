// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "engine",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("file handle should be open when LogDir is set")
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected 1 log file, got %d", len(files))
	}
	name := files[0].Name()
	if !strings.HasPrefix(name, "engine_") || !strings.HasSuffix(name, ".log") {
		t.Errorf("Log file name = %q, want engine_{date}.log", name)
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) != 1 {
		t.Fatalf("Expected 1 log file, got %d", len(files))
	}
	if !strings.HasPrefix(files[0].Name(), "ponder_") {
		t.Errorf("Default service name should be ponder, got %q", files[0].Name())
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// A path under a regular file cannot be created; the logger should
	// degrade to stderr-only rather than fail.
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("file handle should be nil when LogDir cannot be created")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "ponder" {
		t.Errorf("Default service = %q, want ponder", logger.config.Service)
	}
}

// =============================================================================
// Logging Method Tests
// =============================================================================

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("filtered")
	logger.Info("filtered")
	logger.Warn("kept")
	logger.Error("kept")
	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 exported entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Message != "kept" {
			t.Errorf("Unexpected entry exported: %q", e.Message)
		}
	}
}

func TestLogger_ExportCarriesAttrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "engine",
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Info("round complete", "round", 3, "nodes", 12)
	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Service != "engine" {
		t.Errorf("Service = %q, want engine", e.Service)
	}
	if e.Attrs["round"] != 3 || e.Attrs["nodes"] != 12 {
		t.Errorf("Attrs = %v, want round=3 nodes=12", e.Attrs)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestLogger_With(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	child := logger.With("node_id", int64(42))
	if child == logger {
		t.Error("With() should return a new logger")
	}
	if child.slog == logger.slog {
		t.Error("Child logger should have its own slog instance")
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	child := logger.With("key", "value")
	if child.file != logger.file {
		t.Error("Child logger should share the file handle")
	}
}

func TestLogger_ForRun(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: tmpDir, Quiet: true})

	runLogger := logger.ForRun("3f8a9c2e")
	runLogger.Info("search started")
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("No log file created")
	}
	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "\"run_id\":\"3f8a9c2e\"") {
		t.Error("Run-scoped entries should carry the run_id attribute")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() != logger.slog {
		t.Error("Slog() should expose the underlying slog.Logger")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent log", "n", n)
		}(i)
	}
	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 100 {
		t.Errorf("Expected 100 entries, got %d", len(entries))
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})

	logger.Info("before close")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestLogger_Close_ExporterError(t *testing.T) {
	exporter := &errorExporter{flushErr: errors.New("flush failed")}
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})

	err := logger.Close()
	if err == nil {
		t.Error("Expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("Error should mention 'flush exporter': %v", err)
	}
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	debugOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	warnOpts := &slog.HandlerOptions{Level: slog.LevelWarn}

	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, warnOpts),
		slog.NewTextHandler(&b, debugOpts),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled should be true when any handler accepts the level")
	}
}

func TestMultiHandler_Handle_LevelFiltering(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h)

	logger.Info("info only")

	if !strings.Contains(infoBuf.String(), "info only") {
		t.Error("Info handler should receive the record")
	}
	if warnBuf.Len() != 0 {
		t.Error("Warn handler should filter out the info record")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var a, b bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, opts),
		slog.NewJSONHandler(&b, opts),
	}}

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "test")}))
	logger.Info("hello")

	if !strings.Contains(a.String(), "service=test") {
		t.Error("Text handler should carry the added attribute")
	}
	if !strings.Contains(b.String(), "\"service\":\"test\"") {
		t.Error("JSON handler should carry the added attribute")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("UserHomeDir unavailable: %v", err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"tilde", "~/.ponder/logs", filepath.Join(home, ".ponder/logs")},
		{"absolute", "/var/log", "/var/log"},
		{"relative", "relative/path", "relative/path"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandPath(tt.path)
			if got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "key2", 123})
	if got["key1"] != "value1" || got["key2"] != 123 {
		t.Errorf("argsToMap() = %v", got)
	}

	// Odd trailing arg is dropped
	got = argsToMap([]any{"key1", "value1", "dangling"})
	if len(got) != 1 {
		t.Errorf("argsToMap() with dangling key = %v, want 1 entry", got)
	}

	// Non-string keys are skipped
	got = argsToMap([]any{42, "value"})
	if len(got) != 0 {
		t.Errorf("argsToMap() with int key = %v, want empty", got)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	exporter := NewBufferedExporter()
	_ = exporter.Export(context.Background(), LogEntry{Message: "original"})

	entries := exporter.Entries()
	entries[0].Message = "mutated"

	fresh := exporter.Entries()
	if fresh[0].Message != "original" {
		t.Error("Entries() should return a copy")
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "run complete",
		Attrs:     map[string]any{"nodes": 13},
	}
	if err := exporter.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "run complete") {
		t.Errorf("Export output = %q", out)
	}
}

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{}); err != nil {
		t.Errorf("Export() error = %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// File Output Tests
// =============================================================================

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "file-test",
		Quiet:   true,
	})

	logger.Info("test message", "key", "value")
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("No log file created")
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	// File logs are always JSON
	if !strings.Contains(string(content), "test message") {
		t.Error("Log file should contain 'test message'")
	}
	if !strings.Contains(string(content), "\"key\":\"value\"") {
		t.Error("Log file should contain key-value pair in JSON format")
	}
	if !strings.Contains(string(content), "\"service\":\"file-test\"") {
		t.Error("Log file should carry the service attribute")
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

// errorExporter is a test exporter that returns errors
type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error {
	return e.exportErr
}

func (e *errorExporter) Flush(ctx context.Context) error {
	return e.flushErr
}

func (e *errorExporter) Close() error {
	return e.closeErr
}
