package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentarena.ai/internal/behavior"
)

func TestActionLogger_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewActionLogger(dir, nil)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	l.BehaviorEvent(behavior.ActionEvent{ActionID: "a1", AgentID: "ag", Behavior: "help-build", Success: true, Timestamp: clock})
	l.BehaviorEvent(behavior.ActionEvent{ActionID: "a2", AgentID: "ag", Behavior: "hoard-resources", Timestamp: clock})
	clock = clock.Add(2 * time.Minute)
	l.BehaviorEvent(behavior.ActionEvent{ActionID: "a3", AgentID: "ag", Behavior: "wander-randomly", Timestamp: clock})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.w.Lines() != 3 {
		t.Fatalf("lines = %d", l.w.Lines())
	}

	first, err := ReadActions(filepath.Join(dir, "actions", "actions-2026-03-01-10.jsonl.zst"))
	if err != nil {
		t.Fatalf("read first hour: %v", err)
	}
	if len(first) != 2 || first[0].ActionID != "a1" || !first[0].Success || first[1].Behavior != "hoard-resources" {
		t.Fatalf("first hour = %+v", first)
	}
	second, err := ReadActions(filepath.Join(dir, "actions", "actions-2026-03-01-11.jsonl.zst"))
	if err != nil {
		t.Fatalf("read second hour: %v", err)
	}
	if len(second) != 1 || second[0].ActionID != "a3" {
		t.Fatalf("second hour = %+v", second)
	}
}

func TestActionLogger_WriteErrorDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	// A file where the actions directory should be makes MkdirAll fail.
	if err := os.WriteFile(filepath.Join(dir, "actions"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewActionLogger(dir, nil)
	l.BehaviorEvent(behavior.ActionEvent{ActionID: "a1"})
	if err := l.WriteAction(behavior.ActionEvent{ActionID: "a2"}); err == nil {
		t.Fatalf("expected write error")
	}
	_ = l.Close()
}
