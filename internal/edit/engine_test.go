package edit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"wcgw/internal/ops"
	"wcgw/internal/session"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func whitelistWholeFile(t *testing.T, st *session.State, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	st.Whitelist(path, session.HashContent(data), info.ModTime(), info.Size(), session.ReadRange{Start: 1, End: 0}, true)
}

func TestEdit_RequiresReadFirst(t *testing.T) {
	path := writeTemp(t, "hello\nworld\n")
	st := session.NewState("t1")

	e := NewEngine(Config{})
	_, opErr := e.Edit(st, path, "<<<<<<< SEARCH\nhello\n=======\nHELLO\n>>>>>>> REPLACE\n")
	if opErr == nil || opErr.Kind != ops.EditCoversUnreadLines {
		t.Fatalf("opErr = %v, want EditCoversUnreadLines", opErr)
	}
}

func TestEdit_SucceedsAfterRead(t *testing.T) {
	path := writeTemp(t, "hello\nworld\n")
	st := session.NewState("t1")
	whitelistWholeFile(t, st, path)

	e := NewEngine(Config{})
	res, opErr := e.Edit(st, path, "<<<<<<< SEARCH\nhello\n=======\nHELLO\n>>>>>>> REPLACE\n")
	if opErr != nil {
		t.Fatalf("Edit: %v", opErr)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "HELLO\nworld\n" {
		t.Errorf("file content = %q", string(data))
	}
	if res.Diff.Changed != 1 {
		t.Errorf("Diff.Changed = %d, want 1", res.Diff.Changed)
	}
}

func TestEdit_HashMismatchAfterExternalModification(t *testing.T) {
	path := writeTemp(t, "hello\nworld\n")
	st := session.NewState("t1")
	whitelistWholeFile(t, st, path)

	// Simulate an external modification after the read.
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("hello\nMODIFIED\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(Config{})
	_, opErr := e.Edit(st, path, "<<<<<<< SEARCH\nhello\n=======\nHELLO\n>>>>>>> REPLACE\n")
	if opErr == nil || opErr.Kind != ops.FileChangedOnDisk {
		t.Fatalf("opErr = %v, want FileChangedOnDisk", opErr)
	}
}

func TestEdit_PartialReadDoesNotCoverEditedLines(t *testing.T) {
	path := writeTemp(t, "line1\nline2\nline3\nline4\n")
	st := session.NewState("t1")

	data, _ := os.ReadFile(path)
	info, _ := os.Stat(path)
	// Only lines 1-2 were read.
	st.Whitelist(path, session.HashContent(data), info.ModTime(), info.Size(), session.ReadRange{Start: 1, End: 2}, false)

	e := NewEngine(Config{})
	_, opErr := e.Edit(st, path, "<<<<<<< SEARCH\nline3\n=======\nLINE3\n>>>>>>> REPLACE\n")
	if opErr == nil || opErr.Kind != ops.EditCoversUnreadLines {
		t.Fatalf("opErr = %v, want EditCoversUnreadLines (line 3 was never read)", opErr)
	}
}

func TestOverwrite_RoundTripByteIdentical(t *testing.T) {
	path := writeTemp(t, "old content\n")
	st := session.NewState("t1")
	whitelistWholeFile(t, st, path)

	newContent := "brand new file\nwith multiple lines\n"
	e := NewEngine(Config{})
	_, opErr := e.Overwrite(st, path, newContent)
	if opErr != nil {
		t.Fatalf("Overwrite: %v", opErr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != newContent {
		t.Errorf("round trip mismatch: got %q, want %q", string(data), newContent)
	}
}

func TestEdit_NoPartialWriteOnRejectedBlock(t *testing.T) {
	path := writeTemp(t, "alpha\nbeta\ngamma\n")
	st := session.NewState("t1")
	whitelistWholeFile(t, st, path)

	e := NewEngine(Config{})
	_, opErr := e.Edit(st, path, "<<<<<<< SEARCH\nalpha\n=======\nALPHA\n>>>>>>> REPLACE\n"+
		"<<<<<<< SEARCH\nnonexistent text\n=======\nX\n>>>>>>> REPLACE\n")
	if opErr == nil {
		t.Fatal("expected SearchBlockUnmatched")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "alpha\nbeta\ngamma\n" {
		t.Errorf("file was modified despite rejected edit: %q", string(data))
	}
}
