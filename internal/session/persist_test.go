package session

import (
	"os"
	"path/filepath"
	"testing"
)

func withTempStateDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	_ = os.MkdirAll(filepath.Join(dir, "wcgw", "bash_state"), 0o755)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	withTempStateDir(t)

	s := NewState("thread-1")
	s.Mode = CodeWriter([]string{"*.go"}, CommandScope{Prefixes: []string{"git"}})
	s.Workspace = "/workspace"
	s.Initialized = true
	s.Whitelist("main.go", HashContent([]byte("package main")), stampTime(), 13, ReadRange{Start: 1, End: 1}, true)
	s.NextSeq()

	if err := s.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored, err := Restore("thread-1")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored == nil {
		t.Fatalf("expected a restored session, got nil")
	}
	if restored.Workspace != s.Workspace {
		t.Fatalf("workspace mismatch: got %q want %q", restored.Workspace, s.Workspace)
	}
	if restored.Mode.Kind != ModeCodeWriter {
		t.Fatalf("mode kind mismatch: got %q", restored.Mode.Kind)
	}
	if len(restored.Mode.WriteGlobs) != 1 || restored.Mode.WriteGlobs[0] != "*.go" {
		t.Fatalf("write globs not restored: %#v", restored.Mode.WriteGlobs)
	}
	entry, ok := restored.WhitelistEntryFor("main.go")
	if !ok || !entry.WholeFile {
		t.Fatalf("expected restored whitelist entry for main.go")
	}
	if restored.OperationSeq != 1 {
		t.Fatalf("expected operation seq 1, got %d", restored.OperationSeq)
	}
}

func TestRestoreMissingCheckpointReturnsNil(t *testing.T) {
	withTempStateDir(t)

	restored, err := Restore("does-not-exist")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored != nil {
		t.Fatalf("expected nil for a missing checkpoint")
	}
}

func TestManagerInitializeFreshAndResume(t *testing.T) {
	withTempStateDir(t)

	m := NewManager()
	s, err := m.Initialize("thread-2", "/ws", Wcgw(), true)
	if err != nil {
		t.Fatalf("Initialize (fresh): %v", err)
	}
	if !s.Initialized {
		t.Fatalf("expected fresh session to be initialized")
	}
	if err := s.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	got, ok := m.Get("thread-2")
	if !ok || got != s {
		t.Fatalf("expected Get to return the same live session")
	}

	m2 := NewManager()
	resumed, err := m2.Initialize("thread-2", "/ws-new", Architect(), true)
	if err != nil {
		t.Fatalf("Initialize (resume): %v", err)
	}
	if resumed.Workspace != "/ws" {
		t.Fatalf("expected resumed workspace from checkpoint, got %q", resumed.Workspace)
	}
}
