package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cevalogistics/launcher/internal/history"
)

func events(runID string) []history.Event {
	now := time.Now().UTC()
	return []history.Event{
		{RunID: runID, Type: history.EventTransition, From: "idle", To: "checking_backend", Status: "Checking backend status...", OccurredAt: now},
		{RunID: runID, Type: history.EventTransition, From: "checking_devices", To: "starting_frontend", Status: "Found 2 robots and 1 camera", Robots: 2, Cameras: 1, OccurredAt: now},
		{RunID: runID, Type: history.EventOpen, To: "ready", Status: "Dashboard ready", Ready: true, OccurredAt: now},
	}
}

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	for _, e := range events("run-1") {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send event: %v", err)
		}
	}
	n, err := sink.Count(ctx, "run-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 events, got %d", n)
	}

	// reopening keeps existing rows
	again, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()
	if n, _ := again.Count(ctx, "run-1"); n != 3 {
		t.Fatalf("expected 3 events after reopen, got %d", n)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.Send(ctx, events("mem")[0]); err != nil {
		t.Fatalf("send: %v", err)
	}
	var from, to string
	if err := sink.db.QueryRowContext(ctx, `SELECT from_state, to_state FROM launch_history WHERE run_id = ?`, "mem").Scan(&from, &to); err != nil {
		t.Fatalf("query: %v", err)
	}
	if from != "idle" || to != "checking_backend" {
		t.Fatalf("unexpected row %s -> %s", from, to)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
