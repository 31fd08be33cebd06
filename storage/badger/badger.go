// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists run artifacts in an embedded BadgerDB.
//
// Each run is stored under the key "run:<run id>" as a single JSON
// value: run metadata plus the snapshot bytes. Embedded storage keeps
// the report and list commands working offline, with no external
// service to stand up.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/ponder/pkg/validation"
	"github.com/AleutianAI/ponder/search"
)

// ErrNotFound is returned when no artifact exists for a run id.
var ErrNotFound = errors.New("run artifact not found")

// keyPrefix namespaces artifact keys so future record kinds can share
// the database.
const keyPrefix = "run:"

// Config holds configuration for the artifact store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC. Ignored for in-memory stores.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file. Defaults to 0.5.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and a
// five-minute GC cadence.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// Artifact is one persisted run.
//
// Snapshot holds the raw snapshot bytes; search.LoadSnapshot rebuilds
// the tree from them. The remaining fields duplicate just enough
// metadata to list runs without decoding snapshots. Config echoes the
// settings the run was started with.
type Artifact struct {
	RunID      string        `json:"run_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Reason     string        `json:"reason"`
	Incomplete bool          `json:"incomplete"`
	Config     search.Config `json:"config"`
	Stats      search.Stats  `json:"stats"`
	BestScore  float64       `json:"best_score"`
	Snapshot   []byte        `json:"snapshot"`
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store reads and writes run artifacts.
//
// Thread Safety: Safe for concurrent use. BadgerDB serializes
// conflicting writes internally.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open creates or opens the artifact store.
//
// Inputs:
//   - cfg: store configuration. Path is required unless InMemory.
//
// Outputs:
//   - *Store: the opened store. Caller must call Close when done.
//   - error: invalid configuration or BadgerDB open failure.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio > 1 {
		cfg.GCDiscardRatio = 0.5
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// gcLoop periodically rewrites the value log to reclaim space from
// deleted runs.
func (s *Store) gcLoop(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing to collect, not a failure.
			err := s.db.RunValueLogGC(ratio)
			if err == nil {
				if s.logger != nil {
					s.logger.Debug("artifact store GC completed")
				}
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				if s.logger != nil {
					s.logger.Warn("artifact store GC error", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Close stops garbage collection and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.gcStop != nil {
			close(s.gcStop)
			<-s.gcDone
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Save stores a run artifact, overwriting any previous artifact for
// the same run id. A zero CreatedAt is stamped with the current time.
//
// Inputs:
//   - ctx: checked before the write starts.
//   - art: artifact to store. RunID must validate.
//
// Outputs:
//   - error: invalid run id, encoding failure, or write failure.
func (s *Store) Save(ctx context.Context, art Artifact) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateRunID(art.RunID); err != nil {
		return err
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", art.RunID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+art.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", art.RunID, err)
	}
	if s.logger != nil {
		s.logger.Debug("saved run artifact",
			slog.String("run_id", art.RunID),
			slog.Int("bytes", len(data)))
	}
	return nil
}

// Load retrieves the artifact for a run id.
//
// Outputs:
//   - *Artifact: the stored artifact.
//   - error: ErrNotFound when no artifact exists for the id.
func (s *Store) Load(ctx context.Context, runID string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateRunID(runID); err != nil {
		return nil, err
	}

	var art Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &art)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return &art, nil
}

// List returns all stored artifacts, newest first.
func (s *Store) List(ctx context.Context) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var artifacts []Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var art Artifact
				if err := json.Unmarshal(val, &art); err != nil {
					return fmt.Errorf("decode artifact %s: %w", it.Item().Key(), err)
				}
				artifacts = append(artifacts, art)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].RunID < artifacts[j].RunID
	})
	return artifacts, nil
}

// Delete removes the artifact for a run id.
//
// Outputs:
//   - error: ErrNotFound when no artifact exists for the id.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateRunID(runID); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(keyPrefix + runID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}
