package workflow

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAuditStore(t *testing.T) {
	store := NewMemoryAuditStore()
	ctx := context.Background()
	for i, status := range []string{"completed", "failed"} {
		ev := AuditEvent{WorkflowID: "wf-1", Name: "demo", Step: i + 1, AgentID: "zilla", Status: status, StartedAt: time.Now().UTC()}
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	_ = store.Record(ctx, AuditEvent{WorkflowID: "wf-2", Step: 1, Status: "completed"})

	events, err := store.List(ctx, AuditFilter{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].Step != 1 || events[1].Status != "failed" {
		t.Fatalf("unexpected events %+v", events)
	}
	if events, _ := store.List(ctx, AuditFilter{Status: "completed", Limit: 1}); len(events) != 1 {
		t.Fatalf("limit not applied: %+v", events)
	}
}

func TestSQLiteAuditStore(t *testing.T) {
	store, err := OpenSQLiteAuditStore("file:workflow_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)
	events := []AuditEvent{
		{WorkflowID: "wf-1", RunID: "run-1", Name: "demo", Step: 1, AgentID: "zilla", Status: "completed",
			Output: map[string]any{"bytes": 42}, StartedAt: started, FinishedAt: started.Add(time.Second)},
		{WorkflowID: "wf-1", RunID: "run-1", Name: "demo", Step: 2, AgentID: "gonza", Status: "failed",
			Error: "File exists but is empty", StartedAt: started, FinishedAt: started.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.List(ctx, AuditFilter{WorkflowID: "wf-1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].AgentID != "zilla" || got[0].RunID != "run-1" || got[1].Error != "File exists but is empty" {
		t.Fatalf("unexpected events %+v", got)
	}
	if !got[1].FinishedAt.Equal(started.Add(2 * time.Second)) {
		t.Errorf("finished_at round trip: got %v", got[1].FinishedAt)
	}
	out, ok := got[0].Output.(map[string]any)
	if !ok || out["bytes"] != float64(42) {
		t.Fatalf("unexpected output %#v", got[0].Output)
	}

	failed, err := store.List(ctx, AuditFilter{Status: "failed"})
	if err != nil || len(failed) != 1 || failed[0].Step != 2 {
		t.Fatalf("unexpected failed events %+v (%v)", failed, err)
	}
}
