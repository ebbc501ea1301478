package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := st.Latest(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := st.Save(ctx, sampleSnapshot("exec-1", SnapshotCheckpoint, base)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Save(ctx, sampleSnapshot("exec-1", SnapshotPause, base.Add(time.Minute))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := st.Latest(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if snap.SnapshotType != SnapshotPause {
		t.Errorf("type = %s, want pause", snap.SnapshotType)
	}
	if snap.NodeOutputs["wait"].(map[string]any)["status"] != "waiting" {
		t.Errorf("node outputs = %v", snap.NodeOutputs)
	}
	if snap.Progress != 50 {
		t.Errorf("progress = %d, want 50", snap.Progress)
	}

	snaps, err := st.List(ctx, "exec-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("list = %d, want 2", len(snaps))
	}
	if snaps[0].SnapshotType != SnapshotCheckpoint {
		t.Errorf("list order wrong: first = %s", snaps[0].SnapshotType)
	}
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := st.Save(ctx, sampleSnapshot("exec-1", SnapshotFinal, base)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	snap, err := reopened.Latest(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Latest after reopen failed: %v", err)
	}
	if snap.SnapshotType != SnapshotFinal {
		t.Errorf("type = %s, want final", snap.SnapshotType)
	}
}

func TestSQLiteStoreClosed(t *testing.T) {
	st := newTestSQLiteStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := st.Save(context.Background(), Snapshot{ExecutionID: "x"}); err == nil {
		t.Error("Save on closed store should fail")
	}
	if _, err := st.Latest(context.Background(), "x"); err == nil {
		t.Error("Latest on closed store should fail")
	}
}
