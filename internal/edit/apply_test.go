package edit

import "testing"

func TestApplyBlocks_OrderingInvariant(t *testing.T) {
	// "needle" appears twice; the second block's SEARCH also reads "needle"
	// and must resolve to the *second* occurrence, never re-matching the
	// first block's already-edited position.
	content := "needle\nmiddle\nneedle\n"
	blocks := []Block{
		{Search: "needle\nmiddle", Replace: "ONE\nmiddle"},
		{Search: "needle", Replace: "TWO"},
	}
	after, applied, opErr := ApplyBlocks(content, blocks, 0.85)
	if opErr != nil {
		t.Fatalf("ApplyBlocks: %v", opErr)
	}
	want := "ONE\nmiddle\nTWO\n"
	if after != want {
		t.Errorf("after = %q, want %q", after, want)
	}
	if len(applied) != 2 {
		t.Fatalf("len(applied) = %d, want 2", len(applied))
	}
	if applied[1].Match.StartLine < applied[0].Match.StartLine+1 {
		t.Errorf("ordering invariant violated: block 2 matched at or before block 1's replacement end")
	}
}

func TestApplyBlocks_UnmatchedBlockRejectsWhole(t *testing.T) {
	content := "a\nb\nc\n"
	blocks := []Block{
		{Search: "a", Replace: "A"},
		{Search: "totally absent text", Replace: "X"},
	}
	_, _, opErr := ApplyBlocks(content, blocks, 0.85)
	if opErr == nil {
		t.Fatal("expected SearchBlockUnmatched")
	}
}

func TestApplyBlocks_OrigLineMappingTracksShift(t *testing.T) {
	content := "one\ntwo\nthree\nfour\nfive\n"
	blocks := []Block{
		{Search: "two", Replace: "TWO-A\nTWO-B"}, // grows the file by one line
		{Search: "four", Replace: "FOUR"},
	}
	_, applied, opErr := ApplyBlocks(content, blocks, 0.85)
	if opErr != nil {
		t.Fatalf("ApplyBlocks: %v", opErr)
	}
	// "four" is line 4 in the pre-edit file regardless of the earlier growth.
	if applied[1].OrigStartLine != 4 || applied[1].OrigEndLine != 4 {
		t.Errorf("second block orig range = [%d,%d], want [4,4]", applied[1].OrigStartLine, applied[1].OrigEndLine)
	}
}

func TestApplyBlocks_ReindentsOnLevel4Match(t *testing.T) {
	content := "func f() {\n\t\tif x {\n\t\t\treturn\n\t\t}\n}\n"
	blocks := []Block{
		{Search: "if x {\n\treturn\n}", Replace: "if x {\n\treturn 1\n}"},
	}
	after, _, opErr := ApplyBlocks(content, blocks, 0.85)
	if opErr != nil {
		t.Fatalf("ApplyBlocks: %v", opErr)
	}
	want := "func f() {\n\t\tif x {\n\t\t\treturn 1\n\t\t}\n}\n"
	if after != want {
		t.Errorf("after = %q, want %q", after, want)
	}
}
