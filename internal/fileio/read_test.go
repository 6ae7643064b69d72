package fileio

import (
	"os"
	"path/filepath"
	"testing"

	"wcgw/internal/session"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestParseRangeSpec(t *testing.T) {
	cases := []struct {
		in        string
		wantPath  string
		wantStart int
		wantEnd   int
	}{
		{"a.txt", "a.txt", 0, 0},
		{"a.txt:10-20", "a.txt", 10, 20},
		{"a.txt:10-", "a.txt", 10, 0},
		{"a.txt:-20", "a.txt", 1, 20},
	}
	for _, tc := range cases {
		spec, err := ParseRangeSpec(tc.in)
		if err != nil {
			t.Fatalf("ParseRangeSpec(%q): %v", tc.in, err)
		}
		if spec.Path != tc.wantPath || spec.Start != tc.wantStart || spec.End != tc.wantEnd {
			t.Errorf("ParseRangeSpec(%q) = %+v, want path=%s start=%d end=%d", tc.in, spec, tc.wantPath, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestReaderReadFilesWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", "line1\nline2\nline3\n")

	r := NewReader(Config{})
	state := session.NewState("t1")

	results, errs := r.ReadFiles(state, []string{path})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].StartLine != 1 || results[0].EndLine != 4 {
		t.Fatalf("unexpected range: %+v", results[0])
	}

	entry, ok := state.WhitelistEntryFor(path)
	if !ok || !entry.WholeFile {
		t.Fatalf("expected whole-file whitelist entry after reading with no range")
	}
}

func TestReaderReadFilesWithRange(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", "l1\nl2\nl3\nl4\nl5\n")

	r := NewReader(Config{})
	state := session.NewState("t1")

	results, errs := r.ReadFiles(state, []string{path + ":2-3"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if results[0].Content != "l2\nl3" {
		t.Fatalf("expected l2/l3, got %q", results[0].Content)
	}

	entry, _ := state.WhitelistEntryFor(path)
	if entry.WholeFile {
		t.Fatalf("expected a partial-range whitelist entry, not whole-file")
	}
	if !entry.CoversLines(2, 3) {
		t.Fatalf("expected lines 2-3 covered")
	}
	if entry.CoversLines(1, 1) {
		t.Fatalf("expected line 1 not covered")
	}
}

func TestReaderMissingFile(t *testing.T) {
	r := NewReader(Config{})
	state := session.NewState("t1")
	_, errs := r.ReadFiles(state, []string{"/does/not/exist.txt"})
	if len(errs) != 1 || errs[0].Kind != "path_not_found" {
		t.Fatalf("expected path_not_found, got %v", errs)
	}
}

func TestReaderBinaryFileRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.dat")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02, 'a', 'b'}, 0o644); err != nil {
		t.Fatalf("write binary file: %v", err)
	}

	r := NewReader(Config{})
	state := session.NewState("t1")
	_, errs := r.ReadFiles(state, []string{path})
	if len(errs) != 1 || errs[0].Kind != "path_is_binary" {
		t.Fatalf("expected path_is_binary, got %v", errs)
	}
}

func TestReaderFileTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(path, make([]byte, 1024), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r := NewReader(Config{MaxFileSize: 100})
	state := session.NewState("t1")
	_, errs := r.ReadFiles(state, []string{path})
	if len(errs) != 1 || errs[0].Kind != "file_too_large" {
		t.Fatalf("expected file_too_large, got %v", errs)
	}
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "pic.png", "not-a-real-png-but-bytes")

	r := NewReader(Config{})
	img, opErr := r.ReadImage(path, 0)
	if opErr != nil {
		t.Fatalf("ReadImage: %v", opErr)
	}
	if img.MimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", img.MimeType)
	}
	if img.Base64 == "" {
		t.Fatalf("expected non-empty base64 payload")
	}
}

func TestCacheInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "c.txt", "v1")

	r := NewReader(Config{})
	state := session.NewState("t1")
	r.ReadFiles(state, []string{path})

	r.cache.invalidate(path)
	if _, ok := r.cache.entries[cacheKey{}]; ok {
		t.Fatalf("sanity check: zero-value key should never be present")
	}
	for k := range r.cache.entries {
		if k.path == path {
			t.Fatalf("entry for %s still cached after invalidate", path)
		}
	}
}
