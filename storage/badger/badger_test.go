// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ponder/search"
)

// newMemStore opens an in-memory store and closes it with the test.
func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestOpen_RequiresPath verifies that persistent mode needs a path.
func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestStore_SaveAndLoad verifies the artifact round trip.
func TestStore_SaveAndLoad(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	art := Artifact{
		RunID:      "overnight-sweep",
		Reason:     "goal_reached",
		Incomplete: false,
		Config:     search.DefaultConfig(),
		Stats:      search.Stats{TotalNodes: 13, MaxDepth: 3, MeanScore: 0.71},
		BestScore:  0.9,
		Snapshot:   []byte(`{"id":1}` + "\n"),
	}
	require.NoError(t, s.Save(ctx, art))

	got, err := s.Load(ctx, "overnight-sweep")
	require.NoError(t, err)

	assert.Equal(t, art.RunID, got.RunID)
	assert.Equal(t, art.Reason, got.Reason)
	assert.Equal(t, art.Config, got.Config)
	assert.Equal(t, art.Stats, got.Stats)
	assert.Equal(t, art.BestScore, got.BestScore)
	assert.Equal(t, art.Snapshot, got.Snapshot)
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt should be stamped on save")
}

// TestStore_Save_KeepsExplicitCreatedAt verifies timestamps survive.
func TestStore_Save_KeepsExplicitCreatedAt(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	stamp := time.Date(2025, 11, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, Artifact{RunID: "r1", CreatedAt: stamp}))

	got, err := s.Load(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, stamp.Equal(got.CreatedAt))
}

// TestStore_Save_Overwrites verifies saving twice keeps the last write.
func TestStore_Save_Overwrites(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Artifact{RunID: "r1", Reason: "canceled"}))
	require.NoError(t, s.Save(ctx, Artifact{RunID: "r1", Reason: "goal_reached"}))

	got, err := s.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "goal_reached", got.Reason)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestStore_Load_NotFound verifies the sentinel for unknown runs.
func TestStore_Load_NotFound(t *testing.T) {
	s := newMemStore(t)

	_, err := s.Load(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStore_RejectsInvalidRunID verifies run id validation on every op.
func TestStore_RejectsInvalidRunID(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	err := s.Save(ctx, Artifact{RunID: "../../etc/passwd"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run id")

	_, err = s.Load(ctx, "run;rm -rf /")
	assert.Error(t, err)

	err = s.Delete(ctx, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

// TestStore_List_NewestFirst verifies ordering by creation time.
func TestStore_List_NewestFirst(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	base := time.Date(2025, 11, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, Artifact{RunID: "middle", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Save(ctx, Artifact{RunID: "oldest", CreatedAt: base}))
	require.NoError(t, s.Save(ctx, Artifact{RunID: "newest", CreatedAt: base.Add(2 * time.Hour)}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].RunID)
	assert.Equal(t, "middle", all[1].RunID)
	assert.Equal(t, "oldest", all[2].RunID)
}

// TestStore_List_Empty verifies listing an empty store.
func TestStore_List_Empty(t *testing.T) {
	s := newMemStore(t)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

// TestStore_Delete verifies removal and the not-found sentinel.
func TestStore_Delete(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Artifact{RunID: "r1"}))
	require.NoError(t, s.Delete(ctx, "r1"))

	_, err := s.Load(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStore_Persistence verifies artifacts survive close and reopen.
func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Artifact{RunID: "durable", Reason: "frontier_empty"}))
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "frontier_empty", got.Reason)
}

// TestStore_GCLoop verifies the GC goroutine starts and stops cleanly.
func TestStore_GCLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.GCInterval = 10 * time.Millisecond
	cfg.SyncWrites = false

	s, err := Open(cfg)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "second close should be a no-op")
}

// TestStore_ContextCancelled verifies cancelled contexts stop each op.
func TestStore_ContextCancelled(t *testing.T) {
	s := newMemStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Save(ctx, Artifact{RunID: "r1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")

	_, err = s.Load(ctx, "r1")
	assert.Error(t, err)

	_, err = s.List(ctx)
	assert.Error(t, err)

	err = s.Delete(ctx, "r1")
	assert.Error(t, err)
}

// TestStore_SnapshotRoundTrip verifies a stored snapshot rebuilds into
// a tree.
func TestStore_SnapshotRoundTrip(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	tree := search.NewStore()
	root, err := tree.Add(0, search.State{"n": 1}, "hash-root", "")
	require.NoError(t, err)
	_, err = tree.Add(root.ID, search.State{"n": 2}, "hash-child", "double it")
	require.NoError(t, err)

	reporter := search.NewReporter(tree)
	snapshot, err := reporter.Snapshot()
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, Artifact{
		RunID:    "snap",
		Stats:    reporter.Stats(),
		Snapshot: snapshot,
	}))

	got, err := s.Load(ctx, "snap")
	require.NoError(t, err)

	rebuilt, summary, err := search.LoadSnapshot(got.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, rebuilt.Len())
	assert.Equal(t, 2, summary.Stats.TotalNodes)

	child, ok := rebuilt.Get(2)
	require.True(t, ok)
	assert.Equal(t, "double it", child.Rationale)
}
