package edit

import (
	"strings"
	"testing"
)

func lns(s string) []string { return strings.Split(s, "\n") }

func TestFindMatch_Exact(t *testing.T) {
	content := lns("a\nb\nc\nd")
	m, ok := FindMatch(content, "b\nc", 0, 0.85)
	if !ok {
		t.Fatal("expected match")
	}
	if m.Level != LevelExact || m.StartLine != 1 || m.EndLine != 3 {
		t.Errorf("m = %+v", m)
	}
}

func TestFindMatch_TrailingWhitespace(t *testing.T) {
	content := lns("a\nb   \nc")
	m, ok := FindMatch(content, "b", 0, 0.85)
	if !ok {
		t.Fatal("expected match")
	}
	if m.Level != LevelTrailingWhitespace {
		t.Errorf("Level = %v, want LevelTrailingWhitespace", m.Level)
	}
}

func TestFindMatch_CollapsedWhitespace(t *testing.T) {
	content := lns("a\nfoo    bar\nc")
	m, ok := FindMatch(content, "foo bar", 0, 0.85)
	if !ok {
		t.Fatal("expected match")
	}
	if m.Level != LevelCollapsedWhitespace {
		t.Errorf("Level = %v, want LevelCollapsedWhitespace", m.Level)
	}
}

func TestFindMatch_ReindentedDiffersByUniformPrefix(t *testing.T) {
	content := lns("func f() {\n\t\tif x {\n\t\t\treturn\n\t\t}\n}")
	m, ok := FindMatch(content, "if x {\n\treturn\n}", 0, 0.85)
	if !ok {
		t.Fatal("expected match via reindent tolerance")
	}
	if m.Level != LevelReindented {
		t.Errorf("Level = %v, want LevelReindented", m.Level)
	}
}

func TestFindMatch_Fuzzy(t *testing.T) {
	content := lns("a\nthe quick brown fox\nc")
	m, ok := FindMatch(content, "the quikc brown fox", 0, 0.85)
	if !ok {
		t.Fatal("expected fuzzy match")
	}
	if m.Level != LevelFuzzy {
		t.Errorf("Level = %v, want LevelFuzzy", m.Level)
	}
}

func TestFindMatch_BelowFuzzyThresholdFails(t *testing.T) {
	content := lns("a\ncompletely unrelated text\nc")
	_, ok := FindMatch(content, "something else entirely different", 0, 0.85)
	if ok {
		t.Fatal("expected no match below threshold")
	}
}

func TestFindMatch_MinLineEnforcesOrdering(t *testing.T) {
	content := lns("x\nneedle\ny\nneedle\nz")
	m, ok := FindMatch(content, "needle", 2, 0.85)
	if !ok {
		t.Fatal("expected match")
	}
	if m.StartLine != 3 {
		t.Errorf("StartLine = %d, want 3 (the later occurrence)", m.StartLine)
	}
}
